package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/boundary"
	"github.com/marrow-labs/truthspine/pkg/evidence"
)

// chainArtifacts is the continuation-record order of one attempt.
var chainArtifacts = []string{
	"intent.v2.json",
	"order_plan.v1.json",
	"binding_record.v1.json",
	"submission_record.v1.json",
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		day          string
		submissionID string
	)
	cmd.StringVar(&day, "day", "", "UTC day key YYYY-MM-DD (REQUIRED)")
	cmd.StringVar(&submissionID, "submission", "", "Submission id to verify (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if day == "" || submissionID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --day and --submission are required")
		return 2
	}
	if err := artifacts.ValidateDayKey(day); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	store, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	chain := make([]*evidence.Record, 0, len(chainArtifacts))
	paths := make([]string, 0, len(chainArtifacts))
	for _, name := range chainArtifacts {
		path := artifacts.DayPath(boundary.SubmissionsFamily, day, submissionID+"/"+name)
		data, err := store.Read(ctx, path)
		if err != nil {
			if errors.Is(err, artifacts.ErrNotFound) {
				// A vetoed or partial attempt has a shorter chain; verify
				// what exists.
				break
			}
			_, _ = fmt.Fprintf(stderr, "Error: read %s: %v\n", path, err)
			return 1
		}
		rec, err := evidence.Decode(data)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: decode %s: %v\n", path, err)
			return 1
		}
		chain = append(chain, rec)
		paths = append(paths, path)
	}
	if len(chain) == 0 {
		_, _ = fmt.Fprintf(stderr, "Error: no chain artifacts for %s/%s\n", day, submissionID)
		return 1
	}

	verifyErr := evidence.VerifyChain(chain)
	summary := map[string]interface{}{
		"day":           day,
		"submission_id": submissionID,
		"records":       len(chain),
		"artifacts":     paths,
		"verified":      verifyErr == nil,
	}
	var mismatch *evidence.ChainMismatchError
	if errors.As(verifyErr, &mismatch) {
		summary["broken_link"] = map[string]interface{}{
			"index": mismatch.Index,
			"kind":  string(mismatch.Kind),
			"field": mismatch.Field,
		}
	} else if verifyErr != nil {
		summary["error"] = verifyErr.Error()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	if verifyErr != nil {
		return 1
	}
	return 0
}
