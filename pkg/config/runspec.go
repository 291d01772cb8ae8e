package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/proofrun/proofrun/pkg/run"
)

// runSpecSchema constrains run spec documents before they reach the
// pipeline. The schema, not the Go struct, is the contract: a spec that
// unifies cleanly here decodes cleanly below.
const runSpecSchema = `
#RunSpec: {
	name: string & !=""
	kind: "config-playbook" | "cluster-manifest" | "stack-template"
	prompt?: string & !=""
	artifact_file?: string & !=""
	targets: string & !=""
	depth?: "all" | "none" | "syntax"
	limit?: string
	tags?: [...string]
	extra_vars?: {[string]: string}
	timeouts?: {
		syntax_check?: string
		apply?: string
		idempotency?: string
	}
}
`

// RunSpec describes one requested run.
type RunSpec struct {
	// Name labels the artifact and the run.
	Name string `json:"name"`

	// Kind is the artifact kind.
	Kind string `json:"kind"`

	// Prompt is the natural-language request handed to the generator.
	// Exactly one of Prompt and ArtifactFile must be set.
	Prompt string `json:"prompt,omitempty"`

	// ArtifactFile points at pre-written artifact content.
	ArtifactFile string `json:"artifact_file,omitempty"`

	// Targets is the raw inventory spec in any supported shape.
	Targets string `json:"targets"`

	// Depth is the verification depth for this run. Empty inherits the
	// configured default.
	Depth string `json:"depth,omitempty"`

	// Limit restricts execution to a host subset.
	Limit string `json:"limit,omitempty"`

	// Tags restricts execution to tagged tasks.
	Tags []string `json:"tags,omitempty"`

	// ExtraVars are passed to the engine as a variables file.
	ExtraVars map[string]string `json:"extra_vars,omitempty"`

	// Timeouts holds per-stage bounds as duration strings.
	Timeouts map[string]string `json:"timeouts,omitempty"`
}

// StageTimeouts parses the per-stage timeout strings.
func (s *RunSpec) StageTimeouts() (map[run.Stage]time.Duration, error) {
	if len(s.Timeouts) == 0 {
		return nil, nil
	}

	out := make(map[run.Stage]time.Duration, len(s.Timeouts))
	for name, raw := range s.Timeouts {
		stage := run.Stage(name)
		if err := stage.Validate(); err != nil {
			return nil, fmt.Errorf("unknown stage in timeouts: %s", name)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout for stage %s: %w", name, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("timeout for stage %s must be positive", name)
		}
		out[stage] = d
	}
	return out, nil
}

// Validate applies the constraints the schema cannot express.
func (s *RunSpec) Validate() error {
	if (s.Prompt == "") == (s.ArtifactFile == "") {
		return fmt.Errorf("run spec must set exactly one of prompt and artifact_file")
	}
	if _, err := s.StageTimeouts(); err != nil {
		return err
	}
	return nil
}

// LoadRunSpec reads a run spec from a .cue, .yaml, .yml, or .json file
// and checks it against the embedded schema.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run spec: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(runSpecSchema).LookupPath(cue.ParsePath("#RunSpec"))
	if schema.Err() != nil {
		return nil, fmt.Errorf("internal schema error: %w", schema.Err())
	}

	var value cue.Value
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue":
		value = ctx.CompileBytes(data)
	case ".yaml", ".yml", ".json":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse run spec: %w", err)
		}
		value = ctx.Encode(doc)
	default:
		return nil, fmt.Errorf("unsupported run spec format: %s", ext)
	}
	if value.Err() != nil {
		return nil, fmt.Errorf("failed to parse run spec: %w", value.Err())
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("run spec does not match schema: %s", cueerrors.Details(err, nil))
	}

	var spec RunSpec
	if err := unified.Decode(&spec); err != nil {
		return nil, fmt.Errorf("failed to decode run spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}
