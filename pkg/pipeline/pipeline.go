// Package pipeline orchestrates one verification run end to end: inventory
// resolution, artifact acquisition, the policy gate, staged execution,
// aggregation, journaling, and evidence bundling. The pipeline owns the
// ordering contract; every step lives in its own package.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/proofrun/proofrun/pkg/adapters"
	"github.com/proofrun/proofrun/pkg/artifact"
	"github.com/proofrun/proofrun/pkg/bundle"
	"github.com/proofrun/proofrun/pkg/config"
	"github.com/proofrun/proofrun/pkg/inventory"
	"github.com/proofrun/proofrun/pkg/journal"
	"github.com/proofrun/proofrun/pkg/policy"
	"github.com/proofrun/proofrun/pkg/report"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/runctx"
	"github.com/proofrun/proofrun/pkg/stage"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// extraVarsName is the file extra vars are rendered to inside the run
// directory.
const extraVarsName = "extra_vars.yml"

// Deps are the injected collaborators. Telemetry is required; the rest
// default to config-derived implementations.
type Deps struct {
	// Telemetry provides logging, metrics, tracing, and events.
	Telemetry *telemetry.Telemetry

	// Generator produces artifact text for prompt-driven runs. Optional;
	// built from the generator config on first use when nil.
	Generator artifact.Generator

	// Registry holds the direct adapters. Optional; a run-scoped default
	// registry is created when nil.
	Registry *adapters.Registry
}

// Pipeline executes verification runs. Safe for sequential reuse; each
// Execute call owns one run directory.
type Pipeline struct {
	cfg       *config.Config
	tel       *telemetry.Telemetry
	logger    *telemetry.Logger
	gate      *policy.Gate
	generator artifact.Generator
	registry  *adapters.Registry
}

// New creates a pipeline. The policy gate is compiled once here; rule paths
// from the config are loaded on top of the built-in rules.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, run.NewValidationError("pipeline requires a configuration", nil)
	}
	if deps.Telemetry == nil {
		return nil, run.NewValidationError("pipeline requires telemetry", nil)
	}

	gate, err := policy.NewGate(deps.Telemetry.Logger)
	if err != nil {
		return nil, err
	}
	if len(cfg.Policy.RulePaths) > 0 {
		if err := gate.LoadRules(ctx, cfg.Policy.RulePaths); err != nil {
			return nil, err
		}
		if cfg.Policy.Watch {
			// Edited rule files take effect on the next run without a
			// restart. The watcher lives as long as ctx does.
			loader := policy.NewLoader(deps.Telemetry.Logger)
			if err := loader.Watch(ctx, cfg.Policy.RulePaths, gate.ApplyRules); err != nil {
				return nil, err
			}
		}
	}

	return &Pipeline{
		cfg:       cfg,
		tel:       deps.Telemetry,
		logger:    deps.Telemetry.Logger.NewComponentLogger("pipeline"),
		gate:      gate,
		generator: deps.Generator,
		registry:  deps.Registry,
	}, nil
}

// Execute runs one verification cycle for the given run spec and returns
// the aggregated summary. The summary is valid even when the run failed;
// an error return means the run could not be set up at all (bad spec,
// unresolvable inventory, policy denial) and no stages were executed.
func (p *Pipeline) Execute(ctx context.Context, spec *config.RunSpec) (*run.Summary, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	// A spec without an explicit depth inherits the configured default.
	depthName := spec.Depth
	if depthName == "" {
		depthName = p.cfg.Runs.Depth
	}
	depth, err := run.ParseDepth(depthName)
	if err != nil {
		return nil, err
	}
	timeouts, err := p.stageTimeouts(spec)
	if err != nil {
		return nil, err
	}

	// Inventory resolves before anything touches the filesystem: a run
	// that cannot name its targets leaves no run directory behind.
	inv, err := inventory.Resolve(inventory.Spec{
		Text:           spec.Targets,
		DefaultUser:    p.cfg.Inventory.DefaultUser,
		PrivateKeyFile: p.cfg.Inventory.PrivateKeyFile,
	})
	if err != nil {
		return nil, err
	}

	art, err := p.acquireArtifact(ctx, spec)
	if err != nil {
		return nil, err
	}

	// The gate also runs before the run directory exists: a denied run
	// produces no artifacts to audit, only the violation report.
	gateResult, err := p.evaluateGate(ctx, art, inv, depth)
	if err != nil {
		return nil, err
	}
	for _, w := range gateResult.Warnings {
		p.logger.WithField("rule", w.Rule).Warnf("policy warning: %s", w.Message)
	}

	rc, err := runctx.New(p.cfg.Runs.BaseDir)
	if err != nil {
		return nil, err
	}
	runLogger := p.logger.WithRunID(rc.ID)
	runLogger.WithField("depth", string(depth)).
		WithField("kind", string(art.Kind)).
		Info("run started")

	ctx = telemetry.WithRunContext(ctx, rc.ID, string(art.Kind), string(depth))

	summary, err := p.executeRun(ctx, rc, spec, art, inv, depth, timeouts)
	if err != nil {
		telemetry.EndRunContext(ctx, rc.ID, string(run.StatusFailed), err)
		return nil, err
	}

	telemetry.EndRunContext(ctx, rc.ID, string(summary.OverallStatus), nil)
	runLogger.WithField("status", string(summary.OverallStatus)).Info("run finished")
	return summary, nil
}

// executeRun performs everything that happens inside the run directory.
func (p *Pipeline) executeRun(
	ctx context.Context,
	rc *runctx.RunContext,
	spec *config.RunSpec,
	art *artifact.Artifact,
	inv *inventory.Inventory,
	depth run.Depth,
	timeouts map[run.Stage]time.Duration,
) (*run.Summary, error) {
	jnl, err := journal.Open(ctx, rc.JournalPath())
	if err != nil {
		return nil, err
	}
	if err := jnl.BeginRun(ctx, rc.ID, depth); err != nil {
		jnl.Close()
		return nil, err
	}

	artifactPath, err := p.materialize(rc, spec, art, inv)
	if err != nil {
		jnl.Close()
		return nil, err
	}

	exec, cleanup, err := p.buildExecutor(ctx, rc, spec, art, artifactPath)
	if err != nil {
		jnl.Close()
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	runner, err := stage.NewRunner(stage.Config{
		Executor: exec,
		Depth:    depth,
		Timeouts: timeouts,
		Logs:     rc,
		Observer: &journalObserver{journal: jnl, runID: rc.ID, tel: p.tel},
		Logger:   p.tel.Logger,
	})
	if err != nil {
		jnl.Close()
		return nil, err
	}

	// From here on the run completes unconditionally: cancellation and
	// stage failures are recorded outcomes, not reasons to skip the
	// summary or the bundle.
	stages, aborted, err := runner.Run(ctx)
	if err != nil {
		jnl.Close()
		return nil, err
	}

	summary := report.Aggregate(rc.ID, stages, aborted)
	summary.ArtifactPath = artifactPath

	if err := jnl.FinishRun(ctx, summary); err != nil {
		p.logger.WithError(err).Warn("failed to finalize run journal")
	}
	if err := jnl.Close(); err != nil {
		p.logger.WithError(err).Warn("failed to close run journal")
	}

	if err := report.Write(rc.SummaryPath(), summary); err != nil {
		return nil, err
	}

	p.seal(ctx, rc, &summary)
	return &summary, nil
}

// seal archives the run directory and optionally uploads it. Bundling
// failure never loses evidence: logs and summary stay on disk and the
// summary records the missing bundle.
func (p *Pipeline) seal(ctx context.Context, rc *runctx.RunContext, summary *run.Summary) {
	bundler := bundle.NewBundler(p.tel.Logger)
	if err := bundler.Create(rc.WorkDir, rc.BundlePath()); err != nil {
		p.tel.Metrics.RecordBundleCreated(false)
		p.logger.WithError(err).WithRunID(rc.ID).Error("bundling failed, evidence preserved on disk")
		return
	}
	p.tel.Metrics.RecordBundleCreated(true)
	_ = p.tel.Events.PublishBundleCreated(rc.ID, rc.BundlePath())

	summary.BundlePath = rc.BundlePath()
	if err := report.Write(rc.SummaryPath(), *summary); err != nil {
		p.logger.WithError(err).Warn("failed to rewrite summary with bundle path")
	}

	if !p.cfg.Upload.Enabled() {
		return
	}
	uploader, err := bundle.NewUploader(p.cfg.Upload, p.tel.Logger)
	if err != nil {
		p.tel.Metrics.RecordBundleUploaded(false)
		p.logger.WithError(err).Error("bundle upload setup failed")
		return
	}
	key, err := uploader.Upload(ctx, rc.ID, rc.BundlePath())
	if err != nil {
		p.tel.Metrics.RecordBundleUploaded(false)
		p.logger.WithError(err).Error("bundle upload failed")
		return
	}
	p.tel.Metrics.RecordBundleUploaded(true)
	_ = p.tel.Events.PublishBundleUploaded(rc.ID, key)
}

// materialize persists the inventory, artifact, and extra vars into the run
// directory and returns the artifact path.
func (p *Pipeline) materialize(rc *runctx.RunContext, spec *config.RunSpec, art *artifact.Artifact, inv *inventory.Inventory) (string, error) {
	if err := inv.WriteFile(rc.InventoryPath()); err != nil {
		return "", err
	}

	artifactPath, err := art.Write(rc.ProjectDir())
	if err != nil {
		return "", run.NewValidationError("failed to persist artifact", err)
	}

	if len(spec.ExtraVars) > 0 {
		data, err := yaml.Marshal(spec.ExtraVars)
		if err != nil {
			return "", run.NewValidationError("failed to render extra vars", err)
		}
		if err := os.WriteFile(filepath.Join(rc.WorkDir, extraVarsName), data, 0600); err != nil {
			return "", run.NewValidationError("failed to write extra vars file", err)
		}
	}
	return artifactPath, nil
}

// acquireArtifact reads the artifact from disk or generates it from the
// prompt, then sanitizes and shape-checks it.
func (p *Pipeline) acquireArtifact(ctx context.Context, spec *config.RunSpec) (*artifact.Artifact, error) {
	kind := artifact.Kind(spec.Kind)

	var content string
	switch {
	case spec.ArtifactFile != "":
		data, err := os.ReadFile(spec.ArtifactFile)
		if err != nil {
			return nil, run.NewValidationError(
				fmt.Sprintf("unreadable artifact file %s", spec.ArtifactFile), err)
		}
		content = string(data)
	default:
		gen, err := p.artifactGenerator()
		if err != nil {
			return nil, err
		}
		raw, err := gen.Generate(ctx, kind, spec.Prompt)
		if err != nil {
			return nil, run.NewValidationError("artifact generation failed", err)
		}
		content = artifact.Sanitize(raw)
	}

	art := &artifact.Artifact{
		Name:    artifact.Slugify(spec.Name),
		Kind:    kind,
		Content: content,
	}
	if err := art.CheckShape(); err != nil {
		return nil, err
	}
	return art, nil
}

// artifactGenerator returns the injected generator or builds one from the
// config.
func (p *Pipeline) artifactGenerator() (artifact.Generator, error) {
	if p.generator != nil {
		return p.generator, nil
	}
	gen, err := artifact.NewChatGenerator(artifact.ChatConfig{
		BaseURL: p.cfg.Generator.BaseURL,
		APIKey:  os.Getenv(p.cfg.Generator.APIKeyEnv),
		Model:   p.cfg.Generator.Model,
		Timeout: p.cfg.Generator.Timeout,
	})
	if err != nil {
		return nil, run.NewValidationError("generator not configured for prompt-driven runs", err)
	}
	p.generator = gen
	return gen, nil
}

// evaluateGate runs the policy gate over the artifact and targets.
func (p *Pipeline) evaluateGate(ctx context.Context, art *artifact.Artifact, inv *inventory.Inventory, depth run.Depth) (*policy.GateResult, error) {
	var document interface{}
	if err := yaml.Unmarshal([]byte(art.Content), &document); err != nil {
		document = nil
	}

	result, err := p.gate.Evaluate(ctx, policy.Input{
		Artifact: policy.ArtifactInput{
			Name:     art.Name,
			Kind:     string(art.Kind),
			Content:  art.Content,
			Document: document,
		},
		Targets:   inv.Hosts(),
		Depth:     string(depth),
		Timestamp: time.Now(),
	})
	if result != nil {
		p.tel.Metrics.RecordGateEvaluation(result.Allowed)
		for _, v := range result.Violations {
			p.tel.Metrics.RecordGateViolation(v.Rule, string(v.Severity))
			_ = p.tel.Events.PublishPolicyViolation("", v.Rule, v.Message)
		}
	}
	return result, err
}

// stageTimeouts merges spec-level timeout overrides over the configured
// per-stage defaults.
func (p *Pipeline) stageTimeouts(spec *config.RunSpec) (map[run.Stage]time.Duration, error) {
	merged := make(map[run.Stage]time.Duration)
	for name, d := range p.cfg.Runs.StageTimeouts {
		st := run.Stage(name)
		if err := st.Validate(); err != nil {
			return nil, run.NewValidationError(fmt.Sprintf("configured timeout for unknown stage %q", name), nil)
		}
		merged[st] = d
	}

	overrides, err := spec.StageTimeouts()
	if err != nil {
		return nil, err
	}
	for st, d := range overrides {
		merged[st] = d
	}
	return merged, nil
}
