// Package main implements the proofrun-adapter binary: a small sidecar
// that runs one direct adapter operation and speaks the stats contract on
// stdout. It exists so adapters can be exercised outside the pipeline,
// from shell scripts or remote wrappers, with exactly the same semantics
// as in-process execution.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proofrun/proofrun/pkg/adapters"
	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

const defaultTimeout = 10 * time.Minute

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var (
		mode      = flag.String("mode", "apply", "invocation mode: validate, apply, or check")
		spec      = flag.String("spec", "", "resource spec (inline, a file path, or '-' for stdin)")
		statePath = flag.String("state", "adapter_state.json", "state file path")
		timeout   = flag.Duration("timeout", defaultTimeout, "operation timeout")
		logLevel  = flag.String("log-level", "error", "log level for diagnostics on stderr")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <operation> <name>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs one adapter operation and prints a stats document on stdout.\n")
		fmt.Fprintf(os.Stderr, "The exit code is 0 when all targets succeeded and 1 otherwise.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// Missing or invalid required inputs are adapter failures, not usage
	// errors: the caller still gets exactly one stats document and exit 1.
	if flag.NArg() != 2 {
		flag.Usage()
		return emitFailure(os.Stdout)
	}
	operation, name := flag.Arg(0), flag.Arg(1)

	invMode := run.Mode(*mode)
	if err := invMode.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "proofrun-adapter: %v\n", err)
		return emitFailure(os.Stdout)
	}

	specText, err := resolveSpec(*spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "proofrun-adapter: %v\n", err)
		return emitFailure(os.Stdout)
	}

	// Diagnostics go to stderr; stdout carries exactly one stats document.
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  *logLevel,
		Format: "json",
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "proofrun-adapter: %v\n", err)
		return emitFailure(os.Stdout)
	}

	store, err := adapters.NewStateStore(*statePath)
	if err != nil {
		logger.WithError(err).Error("failed to open state store")
		return emitFailure(os.Stdout)
	}
	registry := adapters.DefaultRegistry(store)

	adapter, err := registry.Get(operation)
	if err != nil {
		logger.WithError(err).Error("unknown operation")
		return emitFailure(os.Stdout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	doc, err := adapter.Invoke(ctx, invMode, name, specText)
	if err != nil {
		logger.WithError(err).WithAdapter(operation, string(invMode)).Error("adapter invocation failed")
		return emitFailure(os.Stdout)
	}

	if err := contract.Emit(os.Stdout, doc); err != nil {
		logger.WithError(err).Error("failed to emit stats document")
		return 2
	}
	return doc.ExitCode()
}

// emitFailure writes a failed=1 control-point document to w and returns
// its exit code. Only a broken writer escalates past exit 1.
func emitFailure(w io.Writer) int {
	doc := contract.New(contract.ControlPoint, run.TargetStats{Failed: true})
	if err := contract.Emit(w, doc); err != nil {
		return 2
	}
	return doc.ExitCode()
}

// resolveSpec loads the resource spec from the flag value: "-" reads
// stdin, an existing file path reads that file, anything else is taken
// as the literal spec.
func resolveSpec(value string) (string, error) {
	switch {
	case value == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read spec from stdin: %w", err)
		}
		return string(data), nil
	case value == "":
		return "", nil
	default:
		if info, err := os.Stat(value); err == nil && info.Mode().IsRegular() {
			data, err := os.ReadFile(value)
			if err != nil {
				return "", fmt.Errorf("failed to read spec file %s: %w", value, err)
			}
			return string(data), nil
		}
		return value, nil
	}
}
