package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *SubmissionIndex {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "attempts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func sampleAttempt() Attempt {
	return Attempt{
		SubmissionID: "a8f3c2d1b4e59607",
		Day:          "2025-03-14",
		Boundary:     "SUBMIT",
		State:        "ALLOWED",
		RecordHash:   "deadbeef",
		ArtifactPath: "execution_evidence_v1/submissions/2025-03-14/a8f3c2d1b4e59607/submission_record.v1.json",
	}
}

func TestRecordAttempt_RoundTrip(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	a := sampleAttempt()
	a.ReasonCodes = []string{"FRESHNESS_CERT_INVALID_OR_EXPIRED", "MISSING_REQUIRED_CHAIN_SNAPSHOT"}
	require.NoError(t, idx.RecordAttempt(ctx, a))

	got, err := idx.Get(ctx, a.SubmissionID, a.Day, a.Boundary)
	require.NoError(t, err)
	assert.Equal(t, a, *got)
}

func TestRecordAttempt_ReplayIsIdempotent(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	a := sampleAttempt()
	require.NoError(t, idx.RecordAttempt(ctx, a))
	// A rebuild from artifacts replays the identical row.
	require.NoError(t, idx.RecordAttempt(ctx, a))

	attempts, err := idx.Attempts(ctx, a.Day)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
}

func TestRecordAttempt_UpsertsTerminalState(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	a := sampleAttempt()
	a.State = "PENDING"
	require.NoError(t, idx.RecordAttempt(ctx, a))
	a.State = "VETOED"
	a.ReasonCodes = []string{"DEFINED_RISK_STRUCTURE_REQUIRED"}
	require.NoError(t, idx.RecordAttempt(ctx, a))

	got, err := idx.Get(ctx, a.SubmissionID, a.Day, a.Boundary)
	require.NoError(t, err)
	assert.Equal(t, "VETOED", got.State)
	assert.Equal(t, []string{"DEFINED_RISK_STRUCTURE_REQUIRED"}, got.ReasonCodes)
}

func TestAttempts_StableOrderByDayScope(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	for _, id := range []string{"bbb", "aaa", "ccc"} {
		a := sampleAttempt()
		a.SubmissionID = id
		require.NoError(t, idx.RecordAttempt(ctx, a))
	}
	other := sampleAttempt()
	other.Day = "2025-03-15"
	require.NoError(t, idx.RecordAttempt(ctx, other))

	attempts, err := idx.Attempts(ctx, "2025-03-14")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, "aaa", attempts[0].SubmissionID)
	assert.Equal(t, "bbb", attempts[1].SubmissionID)
	assert.Equal(t, "ccc", attempts[2].SubmissionID)
}

func TestGet_NotIndexed(t *testing.T) {
	idx := openTestIndex(t)
	_, err := idx.Get(context.Background(), "missing", "2025-03-14", "SUBMIT")
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestRecordAttempt_RejectsIncompleteKey(t *testing.T) {
	idx := openTestIndex(t)
	err := idx.RecordAttempt(context.Background(), Attempt{Day: "2025-03-14", Boundary: "SUBMIT"})
	require.Error(t, err)
}
