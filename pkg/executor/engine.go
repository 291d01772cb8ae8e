package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// EngineConfig binds an engine executor to one artifact and inventory.
type EngineConfig struct {
	// Binary is the engine entry point. Defaults to "ansible-playbook".
	Binary string

	// ArtifactPath is the playbook to execute.
	ArtifactPath string

	// InventoryPath is the resolved inventory file.
	InventoryPath string

	// ExtraVarsPath, when set, is passed through as an @-referenced
	// variables file.
	ExtraVarsPath string

	// Limit restricts execution to a host subset.
	Limit string

	// Tags restricts execution to tagged tasks.
	Tags []string

	// WorkDir is the directory the engine runs in.
	WorkDir string

	// EngineLogPath, when set, makes the engine write its human-readable
	// trace to this file. With the JSON stdout callback that trace is
	// otherwise lost. The path is on the host the engine runs on.
	EngineLogPath string
}

// EngineExecutor drives a configuration-management engine process. Stats
// come from the engine's JSON callback recap, normalized into the adapter
// contract shape per inventory host.
type EngineExecutor struct {
	config EngineConfig
	runner CommandRunner
	logger *telemetry.Logger
}

// NewEngineExecutor creates an engine-backed executor.
func NewEngineExecutor(cfg EngineConfig, runner CommandRunner, logger *telemetry.Logger) (*EngineExecutor, error) {
	if cfg.ArtifactPath == "" {
		return nil, fmt.Errorf("engine executor requires an artifact path")
	}
	if cfg.InventoryPath == "" {
		return nil, fmt.Errorf("engine executor requires an inventory path")
	}
	if cfg.Binary == "" {
		cfg.Binary = "ansible-playbook"
	}
	if runner == nil {
		runner = LocalRunner{}
	}
	return &EngineExecutor{
		config: cfg,
		runner: runner,
		logger: logger.NewComponentLogger("engine-executor"),
	}, nil
}

// Kind implements Executor.
func (e *EngineExecutor) Kind() string {
	return "engine"
}

// Invoke implements Executor.
func (e *EngineExecutor) Invoke(ctx context.Context, inv Invocation) (run.StageResult, error) {
	result := run.StageResult{
		Stage:     inv.Stage,
		LogPath:   inv.LogPath,
		StartedAt: time.Now(),
	}

	ctx, cancel := boundedContext(ctx, inv)
	defer cancel()

	cmd := Command{
		Program: e.config.Binary,
		Args:    e.args(run.ModeFor(inv.Stage)),
		Env: []string{
			"ANSIBLE_STDOUT_CALLBACK=json",
			"ANSIBLE_HOST_KEY_CHECKING=False",
			"ANSIBLE_RETRY_FILES_ENABLED=False",
		},
		Dir: e.config.WorkDir,
	}
	if e.config.EngineLogPath != "" {
		cmd.Env = append(cmd.Env, "ANSIBLE_LOG_PATH="+e.config.EngineLogPath)
	}

	e.logger.WithField("stage", string(inv.Stage)).
		Debugf("invoking %s %v", cmd.Program, cmd.Args)

	exitCode, output, err := e.runner.Run(ctx, cmd)
	result.Duration = time.Since(result.StartedAt)
	result.ExitCode = exitCode

	// The log is evidence; persist it before deciding anything else.
	if logErr := writeLog(inv.LogPath, output); logErr != nil {
		return result, logErr
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			result.Interrupted = true
			result.PerTarget = map[string]run.TargetStats{}
			return result, nil
		}
		return result, run.NewExecutionError("engine invocation failed", err).WithStage(inv.Stage)
	}
	if ctx.Err() != nil {
		result.Interrupted = true
		result.PerTarget = map[string]run.TargetStats{}
		return result, nil
	}

	result.PerTarget = e.normalize(inv.Stage, exitCode, output)
	return result, nil
}

// args builds the engine command line for one mode.
func (e *EngineExecutor) args(mode run.Mode) []string {
	args := []string{"-i", e.config.InventoryPath}
	switch mode {
	case run.ModeValidate:
		args = append(args, "--syntax-check")
	case run.ModeCheck:
		args = append(args, "--check", "--diff")
	}
	if e.config.ExtraVarsPath != "" {
		args = append(args, "-e", "@"+e.config.ExtraVarsPath)
	}
	if e.config.Limit != "" {
		args = append(args, "--limit", e.config.Limit)
	}
	for _, tag := range e.config.Tags {
		args = append(args, "--tags", tag)
	}
	return append(args, e.config.ArtifactPath)
}

// normalize extracts per-target stats from the engine output. A syntax
// check emits no recap; its outcome is carried by the exit code alone.
// Apply and idempotency always produce one, so a missing recap there is a
// stage failure: the idempotency re-check exits 0 even with changes, and
// treating absent stats as clean would hide exactly those changes.
func (e *EngineExecutor) normalize(stage run.Stage, exitCode int, output []byte) map[string]run.TargetStats {
	stats, err := contract.Normalize(output)
	if err == nil {
		return stats
	}

	if stage == run.StageSyntaxCheck {
		if exitCode == 0 {
			return map[string]run.TargetStats{contract.ControlPoint: {}}
		}
		return map[string]run.TargetStats{contract.ControlPoint: {Failed: true}}
	}

	e.logger.WithField("stage", string(stage)).
		Warnf("no stats recap in engine output: %v", err)
	return map[string]run.TargetStats{contract.ControlPoint: {Failed: true}}
}
