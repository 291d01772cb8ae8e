package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/proofrun/proofrun/pkg/adapters"
	"github.com/proofrun/proofrun/pkg/artifact"
	"github.com/proofrun/proofrun/pkg/config"
	"github.com/proofrun/proofrun/pkg/executor"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/runctx"
	"github.com/proofrun/proofrun/pkg/transports/ssh"
)

// adapterStateName is the state file direct adapters persist into the run
// directory.
const adapterStateName = "adapter_state.json"

// engineLogName is the engine's human-readable trace under logs/. On SSH
// runs it is written remotely and fetched back before remote cleanup.
const engineLogName = "engine.log"

// buildExecutor selects the execution backend for the artifact kind.
// Playbooks run through the engine, locally or over SSH; manifests and
// templates run through in-process adapters. The returned cleanup, when
// non-nil, tears down remote resources and must run after the stages.
func (p *Pipeline) buildExecutor(
	ctx context.Context,
	rc *runctx.RunContext,
	spec *config.RunSpec,
	art *artifact.Artifact,
	artifactPath string,
) (executor.Executor, func(), error) {
	switch art.Kind {
	case artifact.KindPlaybook:
		return p.buildEngineExecutor(ctx, rc, spec, artifactPath)
	case artifact.KindManifest:
		exec, err := p.buildAdapterExecutor(rc, "manifest.apply", art.Name, artifactPath)
		return exec, nil, err
	case artifact.KindTemplate:
		exec, err := p.buildAdapterExecutor(rc, "template.deploy", art.Name, artifactPath)
		return exec, nil, err
	default:
		return nil, nil, run.NewValidationError("no executor for artifact kind "+string(art.Kind), nil)
	}
}

func (p *Pipeline) buildAdapterExecutor(rc *runctx.RunContext, operation, name, specPath string) (executor.Executor, error) {
	registry := p.registry
	if registry == nil {
		store, err := adapters.NewStateStore(filepath.Join(rc.WorkDir, adapterStateName))
		if err != nil {
			return nil, run.NewExecutionError("failed to initialize adapter state", err)
		}
		registry = adapters.DefaultRegistry(store)
	}
	exec, err := executor.NewAdapterExecutor(executor.AdapterConfig{
		Operation:    operation,
		ResourceName: name,
		ResourceSpec: specPath,
	}, registry, p.tel.Logger)
	if err != nil {
		return nil, run.NewExecutionError("failed to build adapter executor", err)
	}
	return exec, nil
}

func (p *Pipeline) buildEngineExecutor(ctx context.Context, rc *runctx.RunContext, spec *config.RunSpec, artifactPath string) (executor.Executor, func(), error) {
	extraVarsPath := filepath.Join(rc.WorkDir, extraVarsName)
	if _, err := os.Stat(extraVarsPath); err != nil {
		extraVarsPath = ""
	}

	engineCfg := executor.EngineConfig{
		Binary:        p.cfg.Engine.Binary,
		ArtifactPath:  artifactPath,
		InventoryPath: rc.InventoryPath(),
		ExtraVarsPath: extraVarsPath,
		Limit:         spec.Limit,
		Tags:          spec.Tags,
		WorkDir:       rc.ProjectDir(),
		EngineLogPath: filepath.Join(rc.LogsDir(), engineLogName),
	}

	var (
		runner  executor.CommandRunner = executor.LocalRunner{}
		cleanup func()
	)
	if p.cfg.SSH.Enabled {
		remoteRunner, remoteCfg, remoteCleanup, err := p.setupRemote(ctx, rc, engineCfg, artifactPath, extraVarsPath)
		if err != nil {
			return nil, nil, err
		}
		runner, engineCfg, cleanup = remoteRunner, remoteCfg, remoteCleanup
	}

	exec, err := executor.NewEngineExecutor(engineCfg, runner, p.tel.Logger)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, run.NewExecutionError("failed to build engine executor", err)
	}
	return exec, cleanup, nil
}

// setupRemote connects to the configured control host, stages the run
// inputs under the remote base directory, and rewrites the engine paths to
// their remote counterparts. Remote paths are joined with path, not
// filepath: the control host is always POSIX.
func (p *Pipeline) setupRemote(
	ctx context.Context,
	rc *runctx.RunContext,
	engineCfg executor.EngineConfig,
	artifactPath, extraVarsPath string,
) (executor.CommandRunner, executor.EngineConfig, func(), error) {
	sshCfg := ssh.DefaultConfig(p.cfg.SSH.Host, p.cfg.SSH.User)
	if p.cfg.SSH.Port != 0 {
		sshCfg.Port = p.cfg.SSH.Port
	}
	if p.cfg.SSH.PrivateKeyFile != "" {
		sshCfg.PrivateKeyPath = p.cfg.SSH.PrivateKeyFile
	}
	if p.cfg.SSH.KnownHostsFile != "" {
		sshCfg.KnownHostsPath = p.cfg.SSH.KnownHostsFile
	}

	client, err := ssh.NewClient(sshCfg, p.tel.Logger)
	if err != nil {
		return nil, engineCfg, nil, run.NewExecutionError("invalid ssh transport configuration", err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, engineCfg, nil, run.NewExecutionError("failed to connect to control host", err)
	}

	remoteRun := path.Join(sshCfg.RemoteBaseDir, "run_"+rc.ID)
	remoteProject := path.Join(remoteRun, runctx.ProjectDirName)
	stager := ssh.NewStager(client)

	fail := func(msg string, cause error) (executor.CommandRunner, executor.EngineConfig, func(), error) {
		_ = client.Close()
		return nil, engineCfg, nil, run.NewExecutionError(msg, cause)
	}

	if err := stager.PushDir(ctx, rc.ProjectDir(), remoteProject); err != nil {
		return fail("failed to stage project directory", err)
	}
	remoteInventory := path.Join(remoteRun, runctx.InventoryName)
	if err := stager.PushFile(ctx, rc.InventoryPath(), remoteInventory, 0600); err != nil {
		return fail("failed to stage inventory", err)
	}

	engineCfg.ArtifactPath = path.Join(remoteProject, filepath.Base(artifactPath))
	engineCfg.InventoryPath = remoteInventory
	engineCfg.WorkDir = remoteProject
	remoteEngineLog := path.Join(remoteRun, engineLogName)
	engineCfg.EngineLogPath = remoteEngineLog
	if extraVarsPath != "" {
		remoteExtra := path.Join(remoteRun, extraVarsName)
		if err := stager.PushFile(ctx, extraVarsPath, remoteExtra, 0600); err != nil {
			return fail("failed to stage extra vars", err)
		}
		engineCfg.ExtraVarsPath = remoteExtra
	}

	cleanup := func() {
		// Best effort; the connection may already be gone. The engine
		// trace comes back first so it lands in the bundle.
		fetchCtx := context.Background()
		localEngineLog := filepath.Join(rc.LogsDir(), engineLogName)
		if err := stager.Fetch(fetchCtx, remoteEngineLog, localEngineLog); err != nil {
			p.logger.WithError(err).Warn("failed to fetch engine log from control host")
		}
		if err := stager.Cleanup(fetchCtx, remoteRun); err != nil {
			p.logger.WithError(err).Warn("failed to remove remote run directory")
		}
		_ = client.Close()
	}
	return ssh.NewRunner(client), engineCfg, cleanup, nil
}
