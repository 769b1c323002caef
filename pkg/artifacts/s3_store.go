package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

// S3Store implements Store against an S3 bucket. The immutable contract is
// enforced with conditional puts (If-None-Match: *), so two writers racing
// the same key resolve to exactly one observable byte sequence.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional key prefix
}

// NewS3Store creates an S3-backed truth store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("artifacts: load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) key(path string) string { return s.prefix + path }

// PutImmutable establishes bytes at an immutable key.
func (s *S3Store) PutImmutable(ctx context.Context, path string, data []byte) (WriteResult, error) {
	candSHA := canonicalize.HashBytes(data)

	existing, err := s.get(ctx, path)
	switch {
	case err == nil:
		exSHA := canonicalize.HashBytes(existing)
		if exSHA == candSHA {
			return WriteResult{Path: path, SHA256: candSHA, Action: ActionSkippedIdentical}, nil
		}
		return WriteResult{}, &ConflictError{Path: path, ExistingSHA: exSHA, CandidateSHA: candSHA}
	case !errors.Is(err, ErrNotFound):
		return WriteResult{}, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			// Lost the race: another writer created the key between our
			// read and put. Divergent bytes are a conflict, not a retry.
			winner, rerr := s.get(ctx, path)
			if rerr != nil {
				return WriteResult{}, fmt.Errorf("artifacts: re-read after lost race: %w", rerr)
			}
			exSHA := canonicalize.HashBytes(winner)
			if exSHA == candSHA {
				return WriteResult{Path: path, SHA256: candSHA, Action: ActionSkippedIdentical}, nil
			}
			return WriteResult{}, &ConflictError{Path: path, ExistingSHA: exSHA, CandidateSHA: candSHA}
		}
		return WriteResult{}, fmt.Errorf("artifacts: s3 put %s: %w", path, err)
	}
	return WriteResult{Path: path, SHA256: candSHA, BytesWritten: len(data), Action: ActionWritten}, nil
}

// PutMutablePointer replaces a pointer key. S3 object replacement is atomic
// at the key level; readers observe either the old or the new bytes.
func (s *S3Store) PutMutablePointer(ctx context.Context, path string, data []byte) (WriteResult, error) {
	candSHA := canonicalize.HashBytes(data)

	existing, err := s.get(ctx, path)
	if err == nil && canonicalize.HashBytes(existing) == candSHA {
		return WriteResult{Path: path, SHA256: candSHA, Action: ActionSkippedIdentical}, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return WriteResult{}, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("artifacts: s3 put pointer %s: %w", path, err)
	}
	return WriteResult{Path: path, SHA256: candSHA, BytesWritten: len(data), Action: ActionWritten}, nil
}

// Read returns the bytes at path or ErrNotFound.
func (s *S3Store) Read(ctx context.Context, path string) ([]byte, error) {
	return s.get(ctx, path)
}

func (s *S3Store) get(ctx context.Context, path string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("artifacts: s3 get %s: %w", path, err)
	}
	defer out.Body.Close() //nolint:errcheck // best-effort close

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("artifacts: s3 read body %s: %w", path, err)
	}
	return data, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
