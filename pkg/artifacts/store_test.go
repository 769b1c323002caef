package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPutImmutable_WriteThenSkipIdentical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := DayPath("reports/consolidated_verdict_v1", "2025-03-14", "verdict.v1.json")
	data := []byte(`{"status":"PASS"}` + "\n")

	r1, err := s.PutImmutable(ctx, path, data)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Action != ActionWritten {
		t.Fatalf("first write: got %s, want %s", r1.Action, ActionWritten)
	}

	r2, err := s.PutImmutable(ctx, path, data)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Action != ActionSkippedIdentical {
		t.Fatalf("second write: got %s, want %s", r2.Action, ActionSkippedIdentical)
	}
	if r1.SHA256 != r2.SHA256 {
		t.Fatal("hashes must agree on identical bytes")
	}

	got, err := s.Read(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Fatal("bytes changed after identical rewrite")
	}
}

func TestPutImmutable_ConflictPreservesOriginal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := DayPath("reports/consolidated_verdict_v1", "2025-03-14", "verdict.v1.json")
	original := []byte(`{"status":"PASS"}` + "\n")
	mutated := []byte(`{"status":"FAIL"}` + "\n")

	if _, err := s.PutImmutable(ctx, path, original); err != nil {
		t.Fatal(err)
	}

	_, err := s.PutImmutable(ctx, path, mutated)
	if !errors.Is(err, ErrImmutableConflict) {
		t.Fatalf("expected ErrImmutableConflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected *ConflictError, got %T", err)
	}
	if conflict.ExistingSHA == conflict.CandidateSHA {
		t.Fatal("conflict must report divergent hashes")
	}

	got, err := s.Read(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(original) {
		t.Fatal("original bytes must survive a conflicting write")
	}
}

func TestPutMutablePointer_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := "reports/consolidated_verdict_v1/LATEST.json"

	if _, err := s.PutMutablePointer(ctx, path, []byte(`{"day":"2025-03-13"}`)); err != nil {
		t.Fatal(err)
	}
	r, err := s.PutMutablePointer(ctx, path, []byte(`{"day":"2025-03-14"}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Action != ActionWritten {
		t.Fatalf("pointer replace: got %s, want %s", r.Action, ActionWritten)
	}

	r2, err := s.PutMutablePointer(ctx, path, []byte(`{"day":"2025-03-14"}`))
	if err != nil {
		t.Fatal(err)
	}
	if r2.Action != ActionSkippedIdentical {
		t.Fatalf("identical pointer write: got %s, want %s", r2.Action, ActionSkippedIdentical)
	}

	got, err := s.Read(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"day":"2025-03-14"}` {
		t.Fatalf("unexpected pointer contents: %s", got)
	}
}

func TestPutMutablePointer_NotAFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(s.Root(), "pointers", "LATEST.json"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := s.PutMutablePointer(ctx, "pointers/LATEST.json", []byte("{}"))
	if !errors.Is(err, ErrNotAFile) {
		t.Fatalf("expected ErrNotAFile, got %v", err)
	}
}

func TestRead_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read(context.Background(), "missing/2025-03-14/x.json")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutImmutable_ConcurrentWritersOneWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	path := DayPath("evidence_v1", "2025-03-14", "intent.v1.json")
	data := []byte(`{"k":"v"}`)

	const n = 16
	var wg sync.WaitGroup
	results := make([]WriteResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.PutImmutable(ctx, path, data)
		}(i)
	}
	wg.Wait()

	written := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d failed: %v", i, errs[i])
		}
		if results[i].Action == ActionWritten {
			written++
		}
	}
	if written != 1 {
		t.Fatalf("exactly one writer must observe WROTE, got %d", written)
	}
}

func TestDayPath(t *testing.T) {
	got := DayPath("monitoring_v1/regime_snapshot_v3", "2025-03-14", "regime_snapshot.v3.json")
	want := "monitoring_v1/regime_snapshot_v3/2025-03-14/regime_snapshot.v3.json"
	if got != want {
		t.Fatalf("DayPath = %q, want %q", got, want)
	}
}
