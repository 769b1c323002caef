package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/marrow-labs/truthspine/pkg/artifacts"
	"github.com/marrow-labs/truthspine/pkg/config"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "preflight":
		return runPreflightCmd(args[2:], stdout, stderr)
	case "verdict":
		return runVerdictCmd(args[2:], stdout, stderr)
	case "regime":
		return runRegimeCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "truthspine - deterministic evidence and gate enforcement")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  truthspine preflight --day <YYYY-MM-DD> --boundary <INTENT|MAPPING|SUBMIT> --inputs <file>")
	fmt.Fprintln(w, "  truthspine verdict   --day <YYYY-MM-DD> [--profile <file>]")
	fmt.Fprintln(w, "  truthspine regime    --day <YYYY-MM-DD> --signals <file> [--profile <file>]")
	fmt.Fprintln(w, "  truthspine verify    --day <YYYY-MM-DD> --submission <id>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Exit codes: 0 on PASS/ALLOWED/VETOED, 1 on FAIL/HARD_FAILED, 2 on usage errors.")
	fmt.Fprintln(w, "")
}

func newLogger(stderr io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

func producerFor(cfg *config.Config, module string) artifacts.Producer {
	return artifacts.Producer{Repo: cfg.Repo, GitSHA: cfg.GitSHA, Module: module}
}
