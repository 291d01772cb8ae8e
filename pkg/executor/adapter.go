package executor

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/proofrun/proofrun/pkg/adapters"
	"github.com/proofrun/proofrun/pkg/contract"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// AdapterConfig binds an adapter executor to one operation and its two
// positional inputs.
type AdapterConfig struct {
	// Operation is the adapter name, e.g. "network.ensure".
	Operation string

	// ResourceName is the first positional input: the resource identity.
	ResourceName string

	// ResourceSpec is the second positional input: the specification.
	ResourceSpec string
}

// AdapterExecutor runs a direct adapter in-process. Output and exit status
// follow the stats contract exactly, so the stage runner treats it the
// same as an engine process.
type AdapterExecutor struct {
	config   AdapterConfig
	registry *adapters.Registry
	logger   *telemetry.Logger
}

// NewAdapterExecutor creates an adapter-backed executor.
func NewAdapterExecutor(cfg AdapterConfig, registry *adapters.Registry, logger *telemetry.Logger) (*AdapterExecutor, error) {
	if cfg.Operation == "" {
		return nil, fmt.Errorf("adapter executor requires an operation")
	}
	if registry == nil {
		return nil, fmt.Errorf("adapter executor requires a registry")
	}
	if _, err := registry.Get(cfg.Operation); err != nil {
		return nil, err
	}
	return &AdapterExecutor{
		config:   cfg,
		registry: registry,
		logger:   logger.NewComponentLogger("adapter-executor"),
	}, nil
}

// Kind implements Executor.
func (e *AdapterExecutor) Kind() string {
	return "adapter"
}

// Invoke implements Executor.
func (e *AdapterExecutor) Invoke(ctx context.Context, inv Invocation) (run.StageResult, error) {
	result := run.StageResult{
		Stage:     inv.Stage,
		LogPath:   inv.LogPath,
		StartedAt: time.Now(),
	}

	ctx, cancel := boundedContext(ctx, inv)
	defer cancel()

	adapter, err := e.registry.Get(e.config.Operation)
	if err != nil {
		return result, run.NewExecutionError("adapter not available", err).WithStage(inv.Stage)
	}

	e.logger.WithField("stage", string(inv.Stage)).
		Debugf("invoking %s on %s", e.config.Operation, e.config.ResourceName)

	doc, invokeErr := adapter.Invoke(ctx, run.ModeFor(inv.Stage), e.config.ResourceName, e.config.ResourceSpec)
	result.Duration = time.Since(result.StartedAt)

	// The stage log records exactly what the standalone adapter binary
	// would have printed.
	var log bytes.Buffer
	if emitErr := contract.Emit(&log, doc); emitErr == nil {
		if logErr := writeLog(inv.LogPath, log.Bytes()); logErr != nil {
			return result, logErr
		}
	}

	if ctx.Err() != nil {
		result.Interrupted = true
		result.PerTarget = map[string]run.TargetStats{}
		return result, nil
	}
	if invokeErr != nil {
		result.ExitCode = 1
		result.PerTarget = doc.PerTarget()
		return result, run.NewExecutionError("adapter invocation failed", invokeErr).WithStage(inv.Stage)
	}

	result.ExitCode = doc.ExitCode()
	result.PerTarget = doc.PerTarget()
	return result, nil
}
