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
	"github.com/marrow-labs/truthspine/pkg/boundary"
	"github.com/marrow-labs/truthspine/pkg/config"
	"github.com/marrow-labs/truthspine/pkg/index"
)

// preflightInputs is the JSON shape accepted by --inputs.
type preflightInputs struct {
	EvalTime    string                 `json:"eval_time_utc"`
	TickSize    string                 `json:"tick_size"`
	Intent      map[string]interface{} `json:"intent"`
	Snapshot    map[string]interface{} `json:"chain_snapshot"`
	Certificate map[string]interface{} `json:"freshness_certificate"`
	Pointers    []string               `json:"pointers"`
}

func runPreflightCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("preflight", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		day        string
		boundaryID string
		inputsPath string
	)
	cmd.StringVar(&day, "day", "", "UTC day key YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&boundaryID, "boundary", "", "INTENT, MAPPING, or SUBMIT (REQUIRED)")
	cmd.StringVar(&inputsPath, "inputs", "", "Path to candidate inputs JSON (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if day == "" || boundaryID == "" || inputsPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --day, --boundary, and --inputs are required")
		return 2
	}

	cfg := config.Load()
	logger := newLogger(stderr, cfg)
	ctx := context.Background()

	raw, err := os.ReadFile(inputsPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read inputs: %v\n", err)
		return 2
	}
	var pin preflightInputs
	if err := json.Unmarshal(raw, &pin); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse inputs: %v\n", err)
		return 2
	}

	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	validator := boundary.NewValidator(store, producerFor(cfg, "cmd/truthspine/preflight"), audit.NewLoggerWithWriter(stderr))
	outcome, err := validator.Evaluate(ctx, boundary.Boundary(boundaryID), &boundary.Inputs{
		Day:         day,
		EvalTime:    pin.EvalTime,
		TickSize:    pin.TickSize,
		Intent:      pin.Intent,
		Snapshot:    pin.Snapshot,
		Certificate: pin.Certificate,
		Pointers:    pin.Pointers,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := indexOutcome(ctx, cfg, day, outcome); err != nil {
		// The index is a derived view; losing an update never blocks the
		// terminal outcome, but it is worth surfacing.
		logger.Warn("index update failed", "error", err)
	}

	summary := map[string]interface{}{
		"boundary":      string(outcome.Boundary),
		"state":         string(outcome.State),
		"submission_id": outcome.SubmissionID,
		"reason_codes":  outcome.ReasonCodes(),
		"record_hash":   outcome.RecordHash,
		"artifacts":     artifactPaths(outcome),
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	if outcome.State == boundary.HardFailed {
		return 1
	}
	return 0
}

func indexOutcome(ctx context.Context, cfg *config.Config, day string, outcome *boundary.Outcome) error {
	idx, err := index.Open(cfg.IndexPath)
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	path := ""
	if n := len(outcome.Artifacts); n > 0 {
		path = outcome.Artifacts[n-1].Path
	}
	return idx.RecordAttempt(ctx, index.Attempt{
		SubmissionID: nonEmptyID(outcome.SubmissionID),
		Day:          day,
		Boundary:     string(outcome.Boundary),
		State:        string(outcome.State),
		RecordHash:   outcome.RecordHash,
		ArtifactPath: path,
		ReasonCodes:  outcome.ReasonCodes(),
	})
}

func artifactPaths(outcome *boundary.Outcome) []string {
	paths := make([]string, 0, len(outcome.Artifacts))
	for _, a := range outcome.Artifacts {
		paths = append(paths, a.Path)
	}
	return paths
}

func nonEmptyID(id string) string {
	if id == "" {
		return "unidentified"
	}
	return id
}
