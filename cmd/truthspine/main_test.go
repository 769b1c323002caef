package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marrow-labs/truthspine/pkg/canonicalize"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"truthspine"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func setupTruthEnv(t *testing.T) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("TRUTH_STORAGE_TYPE", "fs")
	t.Setenv("TRUTH_ROOT", filepath.Join(root, "truth"))
	t.Setenv("TRUTH_INDEX_PATH", filepath.Join(root, "attempts.db"))

	profilePath := filepath.Join(root, "profile_test.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte("name: test\n"), 0o644))
	t.Setenv("TRUTH_PROFILE", profilePath)
	t.Setenv("TRUTH_REPO", "truthspine")
	t.Setenv("TRUTH_GIT_SHA", "deadbeef")
	t.Setenv("LOG_LEVEL", "ERROR")
}

func writeInputsFile(t *testing.T) string {
	t.Helper()
	snapshot := map[string]interface{}{
		"underlying":   "SPY",
		"observed_utc": "2025-03-14T15:25:00Z",
		"quotes": []interface{}{
			map[string]interface{}{"strike": "575.000000", "bid": "1.150000", "ask": "1.200000"},
		},
	}
	snapHash, err := canonicalize.Hash(snapshot)
	require.NoError(t, err)

	inputs := map[string]interface{}{
		"eval_time_utc":  "2025-03-14T15:30:00Z",
		"tick_size":      "0.050000",
		"chain_snapshot": snapshot,
		"freshness_certificate": map[string]interface{}{
			"snapshot_hash":   snapHash,
			"valid_from_utc":  "2025-03-14T15:00:00Z",
			"valid_until_utc": "2025-03-14T16:00:00Z",
		},
		"intent": map[string]interface{}{
			"underlying": "SPY",
			"strategy": map[string]interface{}{
				"structure": "VERTICAL_SPREAD",
				"legs": []interface{}{
					map[string]interface{}{"side": "SELL", "strike": "580.000000", "expiry": "2025-03-21"},
					map[string]interface{}{"side": "BUY", "strike": "575.000000", "expiry": "2025-03-21"},
				},
			},
			"risk_proof":  map[string]interface{}{"max_loss_usd": "250.000000"},
			"exit_policy": map[string]interface{}{"profit_target_pct": "0.500000"},
		},
	}
	raw, err := json.Marshal(inputs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "inputs.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestRun_UsageAndUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage:")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage:")

	code, _, stderr = runCLI(t, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command")
}

func TestPreflight_FullAttemptThenVerify(t *testing.T) {
	setupTruthEnv(t)
	inputs := writeInputsFile(t)

	var submissionID string
	for _, b := range []string{"INTENT", "MAPPING", "SUBMIT"} {
		code, stdout, stderr := runCLI(t, "preflight", "--day", "2025-03-14", "--boundary", b, "--inputs", inputs)
		require.Equal(t, 0, code, "boundary %s: %s", b, stderr)

		var summary map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
		assert.Equal(t, "ALLOWED", summary["state"], "boundary %s", b)
		submissionID, _ = summary["submission_id"].(string)
		require.NotEmpty(t, submissionID)
	}

	code, stdout, stderr := runCLI(t, "verify", "--day", "2025-03-14", "--submission", submissionID)
	require.Equal(t, 0, code, stderr)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, true, summary["verified"])
	assert.Equal(t, float64(4), summary["records"])
}

func TestPreflight_MissingFlags(t *testing.T) {
	code, _, stderr := runCLI(t, "preflight", "--day", "2025-03-14")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "required")
}

func TestRegime_WritesSnapshotAndExitsZeroWhileBlocking(t *testing.T) {
	setupTruthEnv(t)

	signals := map[string]interface{}{
		"drawdown_pct":                     "-0.160000",
		"engine_risk_budget_ledger_status": "OK",
		"capital_risk_envelope_status":     "PASS",
	}
	raw, err := json.Marshal(signals)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signals.json")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	code, stdout, stderr := runCLI(t, "regime", "--day", "2025-03-14", "--signals", path)
	require.Equal(t, 0, code, stderr)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "CRASH", summary["regime_label"])
	assert.Equal(t, "0.25", summary["risk_multiplier"])
	assert.Equal(t, true, summary["blocking"])
}

func TestRegime_RefusesBrokenProfile(t *testing.T) {
	setupTruthEnv(t)

	dir := t.TempDir()
	signalsPath := filepath.Join(dir, "signals.json")
	require.NoError(t, os.WriteFile(signalsPath, []byte(`{"drawdown_pct":"0.000000"}`), 0o644))
	profilePath := filepath.Join(dir, "profile_bad.yaml")
	bad := "regime_thresholds:\n  high_risk: \"-5e-2\"\n  stress: \"-0.10\"\n  crash: \"-0.15\"\n"
	require.NoError(t, os.WriteFile(profilePath, []byte(bad), 0o644))

	code, _, stderr := runCLI(t, "regime",
		"--day", "2025-03-14", "--signals", signalsPath, "--profile", profilePath)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "profile")

	code, _, stderr = runCLI(t, "regime",
		"--day", "2025-03-14", "--signals", signalsPath,
		"--profile", filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "profile")
}

func TestVerdict_FailsClosedOnMissingRequiredGates(t *testing.T) {
	setupTruthEnv(t)

	profile := `
name: test
gates:
  - gate_id: chain_integrity
    gate_class: CLASS1_HARD_STOP
    required: true
    blocking: true
    artifact_path: reports/chain_integrity_v1/{DAY}/chain_integrity.v1.json
    pass_status_values: [OK]
`
	profilePath := filepath.Join(t.TempDir(), "profile_test.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte(profile), 0o644))

	code, stdout, stderr := runCLI(t, "verdict", "--day", "2025-03-14", "--profile", profilePath)
	require.Equal(t, 1, code, stderr)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, "FAIL", summary["status"])
	assert.Equal(t, "CLASS1_HARD_STOP", summary["blocking_class"])
}
