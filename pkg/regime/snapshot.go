package regime

import (
	"context"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/audit"
)

// SnapshotFamily is the artifact family of regime snapshots.
const SnapshotFamily = "monitoring_v1/regime_snapshot_v3"

// Snapshot is one day's sealed regime classification.
type Snapshot struct {
	Day            string
	Classification Classification
	Write          artifacts.WriteResult
}

// Writer persists regime snapshots as immutable day artifacts.
type Writer struct {
	store      artifacts.Store
	producer   artifacts.Producer
	auditor    audit.Logger
	thresholds Thresholds
}

func NewWriter(store artifacts.Store, producer artifacts.Producer, auditor audit.Logger, th Thresholds) *Writer {
	if auditor == nil {
		auditor = audit.Nop()
	}
	return &Writer{store: store, producer: producer, auditor: auditor, thresholds: th}
}

// WriteSnapshot classifies the day's signals and writes the immutable
// regime snapshot. Identical reruns skip; divergent reruns conflict.
func (w *Writer) WriteSnapshot(ctx context.Context, day string, sig Signals, manifest []artifacts.ManifestEntry) (*Snapshot, error) {
	if err := artifacts.ValidateDayKey(day); err != nil {
		return nil, err
	}

	cls := Classify(sig, w.thresholds)

	entries := make([]interface{}, 0, len(manifest))
	for _, m := range manifest {
		entries = append(entries, map[string]interface{}{
			"type": m.Type, "path": m.Path, "sha256": m.SHA256,
		})
	}

	record := map[string]interface{}{
		"schema_id":       "regime_snapshot",
		"schema_version":  "v3",
		"day_utc":         day,
		"produced_utc":    artifacts.ProducedUTC(day),
		"producer":        map[string]interface{}{"repo": w.producer.Repo, "git_sha": w.producer.GitSHA, "module": w.producer.Module},
		"status":          "OK",
		"regime_label":    string(cls.Label),
		"risk_multiplier": cls.Multiplier,
		"blocking":        cls.Blocking,
		"reason_codes":    append([]string(nil), cls.ReasonCodes...),
		"input_manifest":  entries,
		"evidence": map[string]interface{}{
			"drawdown_pct":                            sig.DrawdownPct,
			"engine_risk_budget_ledger_status":        sig.RiskLedgerStatus,
			"capital_risk_envelope_v2_status":         sig.CapitalEnvelopeStatus,
			"capital_risk_envelope_v2_severe_failure": sig.CapitalEnvelopeSevere,
			"submissions_present":                     sig.SubmissionsPresent,
			"broker_manifest_present":                 sig.BrokerManifestPresent,
			"broker_manifest_status":                  sig.BrokerManifestStatus,
		},
	}

	payload, _, err := artifacts.Seal(record)
	if err != nil {
		return nil, err
	}
	wr, err := w.store.PutImmutable(ctx, artifacts.DayPath(SnapshotFamily, day, "regime_snapshot.v3.json"), payload)
	if err != nil {
		return nil, err
	}
	if _, err := artifacts.WriteLatestPointer(ctx, w.store, SnapshotFamily, day, wr); err != nil {
		return nil, err
	}

	//nolint:errcheck // audit failures never alter the snapshot
	w.auditor.Record(ctx, audit.EventRegime, "snapshot", SnapshotFamily, day, map[string]interface{}{
		"regime_label":    string(cls.Label),
		"risk_multiplier": cls.Multiplier,
		"blocking":        cls.Blocking,
	})

	return &Snapshot{Day: day, Classification: cls, Write: wr}, nil
}
