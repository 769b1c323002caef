package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/audit"
	"github.com/marrow-labs/truthspine/pkg/config"
	"github.com/marrow-labs/truthspine/pkg/regime"
)

// regimeSignals is the JSON shape accepted by --signals.
type regimeSignals struct {
	DrawdownPct           string `json:"drawdown_pct"`
	RiskLedgerStatus      string `json:"engine_risk_budget_ledger_status"`
	CapitalEnvelopeStatus string `json:"capital_risk_envelope_status"`
	CapitalEnvelopeSevere bool   `json:"capital_risk_envelope_severe_failure"`
	SubmissionsPresent    bool   `json:"submissions_present"`
	BrokerManifestPresent bool   `json:"broker_manifest_present"`
	BrokerManifestStatus  string `json:"broker_manifest_status"`

	Manifest []artifacts.ManifestEntry `json:"input_manifest"`
}

func runRegimeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("regime", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		day         string
		signalsPath string
		profilePath string
	)
	cmd.StringVar(&day, "day", "", "UTC day key YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&signalsPath, "signals", "", "Path to day signals JSON (REQUIRED)")
	cmd.StringVar(&profilePath, "profile", "", "Operating profile YAML (default from TRUTH_PROFILE)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if day == "" || signalsPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --day and --signals are required")
		return 2
	}

	cfg := config.Load()
	if profilePath == "" {
		profilePath = cfg.ProfilePath
	}
	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: load profile: %v\n", err)
		return 2
	}
	thresholds, err := profile.RegimeThresholds()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: profile thresholds: %v\n", err)
		return 2
	}

	raw, err := os.ReadFile(signalsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read signals: %v\n", err)
		return 2
	}
	var rs regimeSignals
	if err := json.Unmarshal(raw, &rs); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse signals: %v\n", err)
		return 2
	}

	ctx := context.Background()
	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	writer := regime.NewWriter(store, producerFor(cfg, "cmd/truthspine/regime"), audit.NewLoggerWithWriter(stderr), thresholds)
	snap, err := writer.WriteSnapshot(ctx, day, regime.Signals{
		DrawdownPct:           rs.DrawdownPct,
		RiskLedgerStatus:      rs.RiskLedgerStatus,
		CapitalEnvelopeStatus: rs.CapitalEnvelopeStatus,
		CapitalEnvelopeSevere: rs.CapitalEnvelopeSevere,
		SubmissionsPresent:    rs.SubmissionsPresent,
		BrokerManifestPresent: rs.BrokerManifestPresent,
		BrokerManifestStatus:  rs.BrokerManifestStatus,
	}, rs.Manifest)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	summary := map[string]interface{}{
		"day":             snap.Day,
		"regime_label":    string(snap.Classification.Label),
		"risk_multiplier": snap.Classification.Multiplier,
		"blocking":        snap.Classification.Blocking,
		"reason_codes":    snap.Classification.ReasonCodes,
		"artifact":        snap.Write.Path,
		"sha256":          snap.Write.SHA256,
		"action":          string(snap.Write.Action),
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
	return 0
}
