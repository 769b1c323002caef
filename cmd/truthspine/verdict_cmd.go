package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/audit"
	"github.com/marrow-labs/truthspine/pkg/config"
	"github.com/marrow-labs/truthspine/pkg/gates"
)

func runVerdictCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verdict", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		day         string
		profilePath string
	)
	cmd.StringVar(&day, "day", "", "UTC day key YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&profilePath, "profile", "", "Operating profile YAML (default from TRUTH_PROFILE)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if day == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --day is required")
		return 2
	}

	cfg := config.Load()
	if profilePath == "" {
		profilePath = cfg.ProfilePath
	}
	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	registry, err := profile.GateRegistry()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	evaluator := gates.NewEvaluator(store, producerFor(cfg, "cmd/truthspine/verdict"), audit.NewLoggerWithWriter(stderr), registry)
	verdict, err := evaluator.Evaluate(ctx, day)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	summary := map[string]interface{}{
		"day":            verdict.Day,
		"status":         verdict.Status,
		"blocking_class": string(verdict.BlockingClass),
		"reason_codes":   verdict.ReasonCodes,
		"artifact":       verdict.Write.Path,
		"sha256":         verdict.Write.SHA256,
		"action":         string(verdict.Write.Action),
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	if verdict.Status != gates.VerdictPass {
		return 1
	}
	return 0
}
