// Package artifacts implements the immutable, day-keyed truth store.
//
// Two write disciplines exist and must never be mixed:
//
//   - PutImmutable: write-once. Re-writing identical bytes is a no-op
//     success; re-writing different bytes is a hard conflict and the
//     original bytes always survive.
//   - PutMutablePointer: atomic replace, for latest-pointer files only.
//
// Both disciplines go through temp file + rename so a crash never leaves
// partially written bytes observable.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

// Sentinel errors for store outcomes.
var (
	// ErrImmutableConflict is returned when an immutable path already holds
	// different bytes. Never caught and defaulted; callers escalate.
	ErrImmutableConflict = errors.New("artifacts: refusing overwrite of immutable path")

	// ErrNotAFile is returned when a pointer path is occupied by something
	// other than a regular file.
	ErrNotAFile = errors.New("artifacts: target is not a regular file")

	// ErrNotFound is returned by Read for absent paths.
	ErrNotFound = errors.New("artifacts: not found")
)

// ConflictError carries the divergence detail of an immutable conflict.
type ConflictError struct {
	Path         string
	ExistingSHA  string
	CandidateSHA string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artifacts: refusing overwrite (different bytes): %s existing_sha=%s candidate_sha=%s",
		e.Path, e.ExistingSHA, e.CandidateSHA)
}

func (e *ConflictError) Unwrap() error { return ErrImmutableConflict }

// Action describes what a write actually did.
type Action string

const (
	ActionWritten          Action = "WROTE"
	ActionSkippedIdentical Action = "SKIP_IDENTICAL"
)

// WriteResult is the durable identity of one artifact write.
type WriteResult struct {
	Path         string
	SHA256       string
	BytesWritten int
	Action       Action
}

// Store is the contract for the truth artifact namespace. Paths are
// relative, slash-separated, and a pure function of content-derived
// identity fields plus the day key.
type Store interface {
	PutImmutable(ctx context.Context, path string, data []byte) (WriteResult, error)
	PutMutablePointer(ctx context.Context, path string, data []byte) (WriteResult, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

// DayPath builds the canonical artifact location
// <family>/<DAY>/<artifact> under the store root.
func DayPath(family, day, artifact string) string {
	return family + "/" + day + "/" + artifact
}

// FileStore is the filesystem-backed Store.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a store rooted at root, creating it if absent.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// PutImmutable establishes bytes at an immutable path. The check-then-write
// runs under the store lock so concurrent writers racing the same path
// resolve to exactly one observable byte sequence.
func (s *FileStore) PutImmutable(ctx context.Context, path string, data []byte) (WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.abs(path)
	candSHA := canonicalize.HashBytes(data)

	fi, err := os.Lstat(target)
	if err == nil {
		if !fi.Mode().IsRegular() {
			return WriteResult{}, fmt.Errorf("%w: %s", ErrNotAFile, path)
		}
		existing, rerr := os.ReadFile(target)
		if rerr != nil {
			return WriteResult{}, fmt.Errorf("artifacts: read existing %s: %w", path, rerr)
		}
		exSHA := canonicalize.HashBytes(existing)
		if exSHA == candSHA {
			return WriteResult{Path: path, SHA256: candSHA, Action: ActionSkippedIdentical}, nil
		}
		return WriteResult{}, &ConflictError{Path: path, ExistingSHA: exSHA, CandidateSHA: candSHA}
	}
	if !os.IsNotExist(err) {
		return WriteResult{}, fmt.Errorf("artifacts: stat %s: %w", path, err)
	}

	if err := s.atomicWrite(target, data); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Path: path, SHA256: candSHA, BytesWritten: len(data), Action: ActionWritten}, nil
}

// PutMutablePointer atomically replaces a latest-pointer file. Identical
// bytes are skipped without touching the file.
func (s *FileStore) PutMutablePointer(ctx context.Context, path string, data []byte) (WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.abs(path)
	candSHA := canonicalize.HashBytes(data)

	fi, err := os.Lstat(target)
	if err == nil {
		if !fi.Mode().IsRegular() {
			return WriteResult{}, fmt.Errorf("%w: %s", ErrNotAFile, path)
		}
		existing, rerr := os.ReadFile(target)
		if rerr != nil {
			return WriteResult{}, fmt.Errorf("artifacts: read existing %s: %w", path, rerr)
		}
		if canonicalize.HashBytes(existing) == candSHA {
			return WriteResult{Path: path, SHA256: candSHA, Action: ActionSkippedIdentical}, nil
		}
	} else if !os.IsNotExist(err) {
		return WriteResult{}, fmt.Errorf("artifacts: stat %s: %w", path, err)
	}

	if err := s.atomicWrite(target, data); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Path: path, SHA256: candSHA, BytesWritten: len(data), Action: ActionWritten}, nil
}

// Read returns the bytes at path or ErrNotFound.
func (s *FileStore) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("artifacts: read %s: %w", path, err)
	}
	return data, nil
}

// atomicWrite writes via a temp file in the same directory, fsyncs, then
// renames. A crash before rename abandons the temp file; no partial state
// is ever observable at the target path.
func (s *FileStore) atomicWrite(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifacts: ensure dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp_write_")
	if err != nil {
		return fmt.Errorf("artifacts: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // abandoned temp on failure

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("artifacts: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return fmt.Errorf("artifacts: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifacts: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("artifacts: commit rename: %w", err)
	}
	return nil
}
