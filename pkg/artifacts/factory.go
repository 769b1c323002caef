package artifacts

import (
	"context"
	"fmt"
	"os"
)

// StoreType selects the storage backend for the truth namespace.
type StoreType string

const (
	StoreTypeFS StoreType = "fs"
	StoreTypeS3 StoreType = "s3"
)

// NewStoreFromEnv creates a truth store from environment variables.
//
//   - TRUTH_STORAGE_TYPE: "fs" (default) or "s3"
//   - TRUTH_ROOT: base directory for the filesystem store (default "truth")
//
// For S3:
//   - AWS_REGION or TRUTH_S3_REGION
//   - TRUTH_S3_BUCKET (required)
//   - TRUTH_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - TRUTH_S3_PREFIX (optional)
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storeType := StoreType(os.Getenv("TRUTH_STORAGE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		root := os.Getenv("TRUTH_ROOT")
		if root == "" {
			root = "truth"
		}
		return NewFileStore(root)

	case StoreTypeS3:
		bucket := os.Getenv("TRUTH_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("artifacts: TRUTH_S3_BUCKET is required for s3 storage")
		}
		region := os.Getenv("TRUTH_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:   bucket,
			Region:   region,
			Endpoint: os.Getenv("TRUTH_S3_ENDPOINT"),
			Prefix:   os.Getenv("TRUTH_S3_PREFIX"),
		})

	default:
		return nil, fmt.Errorf("artifacts: unknown storage type %q", storeType)
	}
}
