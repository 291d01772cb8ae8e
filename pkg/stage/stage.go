// Package stage drives the verification cycle for a single run: syntax
// check, apply, and idempotency re-check, in that order, to the depth the
// caller requested.
package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/proofrun/proofrun/pkg/executor"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// State represents the runner's position in the verification cycle.
type State string

const (
	// StateIdle is the initial state before any stage has started.
	StateIdle State = "idle"

	// StateSyntaxCheck means the validate-only stage is executing.
	StateSyntaxCheck State = "syntax_check"

	// StateApply means the mutating stage is executing.
	StateApply State = "apply"

	// StateIdempotency means the dry-run re-check is executing.
	StateIdempotency State = "idempotency"

	// StateDone means the cycle ran to the requested depth.
	StateDone State = "done"

	// StateAborted means the cycle stopped early on a validation failure.
	StateAborted State = "aborted"
)

// IsTerminal returns true for states with no outgoing transitions.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateAborted
}

// stateFor maps a stage to its executing state.
func stateFor(stage run.Stage) State {
	switch stage {
	case run.StageSyntaxCheck:
		return StateSyntaxCheck
	case run.StageApply:
		return StateApply
	case run.StageIdempotency:
		return StateIdempotency
	}
	return StateIdle
}

// Observer receives stage lifecycle notifications. All methods are called
// synchronously from the runner; implementations must not block.
type Observer interface {
	// StageStarted fires when a stage begins executing.
	StageStarted(ctx context.Context, stage run.Stage)

	// StageCompleted fires after a stage's result has been recorded.
	StageCompleted(ctx context.Context, result run.StageResult)
}

// LogPaths resolves the log file location for each stage.
type LogPaths interface {
	LogPath(stage run.Stage) string
}

// Config assembles a Runner.
type Config struct {
	// Executor performs the actual stage invocations.
	Executor executor.Executor

	// Depth selects which stages run. Defaults to run.DepthAll.
	Depth run.Depth

	// Timeouts overrides the bounded wait per stage. Stages without an
	// entry use executor.DefaultTimeout.
	Timeouts map[run.Stage]time.Duration

	// Logs resolves stage log destinations. Optional; without it stages
	// execute with no log file.
	Logs LogPaths

	// Observer receives stage lifecycle events. Optional.
	Observer Observer

	// Logger is the component logger. Required.
	Logger *telemetry.Logger
}

// Runner is the finite state machine that executes one verification
// cycle. A Runner is single-use: Run may be called exactly once.
type Runner struct {
	executor executor.Executor
	depth    run.Depth
	timeouts map[run.Stage]time.Duration
	logs     LogPaths
	observer Observer
	logger   *telemetry.Logger

	state State
}

// NewRunner validates the configuration and returns an idle Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, run.NewValidationError("stage runner requires an executor", nil)
	}
	if cfg.Logger == nil {
		return nil, run.NewValidationError("stage runner requires a logger", nil)
	}
	if cfg.Depth == "" {
		cfg.Depth = run.DepthAll
	}
	if err := cfg.Depth.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		executor: cfg.Executor,
		depth:    cfg.Depth,
		timeouts: cfg.Timeouts,
		logs:     cfg.Logs,
		observer: cfg.Observer,
		logger:   cfg.Logger.NewComponentLogger("stage-runner"),
		state:    StateIdle,
	}, nil
}

// State returns the runner's current state.
func (r *Runner) State() State {
	return r.state
}

// Run executes the cycle and returns the recorded stage results plus
// whether the cycle aborted on a syntax failure. Execution failures are
// captured in the results, never returned as errors; the error return is
// reserved for runner misuse and unrecoverable infrastructure faults
// where no stage evidence exists.
func (r *Runner) Run(ctx context.Context) ([]run.StageResult, bool, error) {
	if r.state != StateIdle {
		return nil, false, fmt.Errorf("stage runner already ran (state %s)", r.state)
	}

	results := make([]run.StageResult, 0, 3)

	// Syntax check always runs first. A failure here means the artifact
	// must never touch a target.
	result := r.execute(ctx, run.StageSyntaxCheck)
	results = append(results, result)
	if result.Failed() {
		r.transition(StateAborted)
		return results, true, nil
	}

	if !r.depth.Includes(run.StageApply) {
		r.transition(StateDone)
		return results, false, nil
	}

	result = r.execute(ctx, run.StageApply)
	results = append(results, result)

	// A failed or interrupted apply is recorded and carried into the
	// summary, but re-checking idempotency of a change that did not
	// land would prove nothing.
	if !result.Failed() && r.depth.Includes(run.StageIdempotency) {
		results = append(results, r.execute(ctx, run.StageIdempotency))
	}

	r.transition(StateDone)
	return results, false, nil
}

// execute runs one stage through the executor and records its result.
func (r *Runner) execute(ctx context.Context, stage run.Stage) run.StageResult {
	r.transition(stateFor(stage))
	if r.observer != nil {
		r.observer.StageStarted(ctx, stage)
	}

	inv := executor.Invocation{
		Stage:   stage,
		Timeout: r.timeouts[stage],
	}
	if r.logs != nil {
		inv.LogPath = r.logs.LogPath(stage)
	}

	result, err := r.executor.Invoke(ctx, inv)
	if err != nil {
		// The executor could not produce a stats document; the stage
		// still gets a recorded, failed result so the evidence trail
		// stays complete.
		r.logger.WithField("stage", string(stage)).WithError(err).
			Error("stage invocation failed")
		if result.Stage == "" {
			result.Stage = stage
		}
		if result.ExitCode == 0 {
			result.ExitCode = 1
		}
	}

	if result.PerTarget == nil {
		result.PerTarget = map[string]run.TargetStats{}
	}

	r.logger.WithField("stage", string(stage)).
		WithField("exit_code", result.ExitCode).
		Infof("stage completed in %s", result.Duration)

	if r.observer != nil {
		r.observer.StageCompleted(ctx, result)
	}
	return result
}

// transition moves the machine to the next state.
func (r *Runner) transition(next State) {
	r.logger.Debugf("state %s -> %s", r.state, next)
	r.state = next
}
