package artifacts

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteLatestPointer_AdvancesMonotonically(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	family := "monitoring_v1/regime_snapshot_v3"
	first := WriteResult{Path: DayPath(family, "2025-03-14", "regime_snapshot.v3.json"), SHA256: strings.Repeat("aa", 32)}
	wr, err := WriteLatestPointer(ctx, store, family, "2025-03-14", first)
	require.NoError(t, err)
	assert.Equal(t, ActionWritten, wr.Action)

	data, err := store.Read(ctx, LatestPointerPath(family))
	require.NoError(t, err)
	var ptr map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &ptr))
	assert.Equal(t, "2025-03-14", ptr["day_utc"])
	assert.Equal(t, first.Path, ptr["path"])
	assert.Equal(t, first.SHA256, ptr["sha256"])

	// A newer day advances the pointer.
	second := WriteResult{Path: DayPath(family, "2025-03-17", "regime_snapshot.v3.json"), SHA256: strings.Repeat("bb", 32)}
	wr, err = WriteLatestPointer(ctx, store, family, "2025-03-17", second)
	require.NoError(t, err)
	assert.Equal(t, ActionWritten, wr.Action)

	// Replaying an older day never rolls it back.
	wr, err = WriteLatestPointer(ctx, store, family, "2025-03-14", first)
	require.NoError(t, err)
	assert.Equal(t, ActionSkippedStale, wr.Action)

	data, err = store.Read(ctx, LatestPointerPath(family))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ptr))
	assert.Equal(t, "2025-03-17", ptr["day_utc"])
}

func TestWriteLatestPointer_IdenticalReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	res := WriteResult{Path: "reports/gate_stack_verdict_v1/2025-03-14/gate_stack_verdict.v1.json", SHA256: strings.Repeat("cd", 32)}
	_, err = WriteLatestPointer(ctx, store, "reports/gate_stack_verdict_v1", "2025-03-14", res)
	require.NoError(t, err)

	wr, err := WriteLatestPointer(ctx, store, "reports/gate_stack_verdict_v1", "2025-03-14", res)
	require.NoError(t, err)
	assert.Equal(t, ActionSkippedIdentical, wr.Action)
}

func TestWriteLatestPointer_RejectsBadDayKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = WriteLatestPointer(context.Background(), store, "f", "03/14/2025", WriteResult{})
	assert.ErrorIs(t, err, ErrBadDayKey)
}
