// Package executor unifies heterogeneous execution backends behind one
// capability: invoke a stage against a target set and come back with
// normalized per-target stats, an exit code, and a captured log. The stage
// runner never branches on whether the backend is a configuration-management
// engine driving an inventory or a direct adapter acting on a control point.
package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/proofrun/proofrun/pkg/run"
)

// DefaultTimeout bounds a single stage invocation when the caller does not
// configure one. An executor that never exits is an operational hazard.
const DefaultTimeout = 30 * time.Minute

// Invocation describes one stage execution request.
type Invocation struct {
	// Stage selects the executor mode: validate, apply, or check.
	Stage run.Stage

	// LogPath is where the raw executor output is persisted.
	LogPath string

	// Timeout bounds the invocation. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Executor runs one stage of the verification cycle. Implementations are
// bound to their artifact and target set at construction time.
type Executor interface {
	// Kind names the backend, e.g. "engine" or "adapter".
	Kind() string

	// Invoke executes the stage. The returned StageResult is complete
	// even on failure; errors are reserved for invocation-level problems
	// (log file not writable), never for target-level outcomes.
	Invoke(ctx context.Context, inv Invocation) (run.StageResult, error)
}

// writeLog persists raw executor output for the evidence bundle.
func writeLog(path string, output []byte) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, output, 0644); err != nil {
		return fmt.Errorf("failed to write stage log %s: %w", path, err)
	}
	return nil
}

// boundedContext applies the invocation timeout.
func boundedContext(ctx context.Context, inv Invocation) (context.Context, context.CancelFunc) {
	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
