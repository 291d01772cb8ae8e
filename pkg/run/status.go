package run

import (
	"encoding/json"
	"fmt"
)

// Stage identifies one phase of the verification cycle.
type Stage string

const (
	// StageSyntaxCheck validates the artifact without touching any target.
	StageSyntaxCheck Stage = "syntax_check"

	// StageApply executes the artifact against the resolved targets.
	StageApply Stage = "apply"

	// StageIdempotency re-runs the artifact in check mode and requires
	// zero reported changes.
	StageIdempotency Stage = "idempotency"
)

// Ordinal returns the execution order of the stage, starting at 1.
func (s Stage) Ordinal() int {
	switch s {
	case StageSyntaxCheck:
		return 1
	case StageApply:
		return 2
	case StageIdempotency:
		return 3
	default:
		return 0
	}
}

// LogName returns the log file name for the stage within a run directory,
// e.g. "01_syntax.log".
func (s Stage) LogName() string {
	switch s {
	case StageSyntaxCheck:
		return "01_syntax.log"
	case StageApply:
		return "02_apply.log"
	case StageIdempotency:
		return "03_idempotency.log"
	default:
		return fmt.Sprintf("%02d_unknown.log", s.Ordinal())
	}
}

// Validate checks if the stage is one of the known phases.
func (s Stage) Validate() error {
	switch s {
	case StageSyntaxCheck, StageApply, StageIdempotency:
		return nil
	default:
		return fmt.Errorf("invalid stage: %s", s)
	}
}

// Depth controls how far the verification cycle proceeds.
type Depth string

const (
	// DepthNone executes SyntaxCheck and Apply but skips Idempotency.
	DepthNone Depth = "none"

	// DepthSyntax stops after SyntaxCheck; nothing is applied.
	DepthSyntax Depth = "syntax"

	// DepthAll runs the full SyntaxCheck, Apply, Idempotency cycle.
	DepthAll Depth = "all"
)

// ParseDepth converts a string to a Depth, defaulting to DepthAll for the
// empty string.
func ParseDepth(s string) (Depth, error) {
	switch s {
	case "":
		return DepthAll, nil
	case string(DepthNone), string(DepthSyntax), string(DepthAll):
		return Depth(s), nil
	default:
		return "", fmt.Errorf("invalid verification depth: %q (want none, syntax, or all)", s)
	}
}

// Includes reports whether the given stage is executed at this depth.
func (d Depth) Includes(s Stage) bool {
	switch s {
	case StageSyntaxCheck:
		return true
	case StageApply:
		return d == DepthNone || d == DepthAll
	case StageIdempotency:
		return d == DepthAll
	default:
		return false
	}
}

// Validate checks if the depth is one of the supported values.
func (d Depth) Validate() error {
	switch d {
	case DepthNone, DepthSyntax, DepthAll:
		return nil
	default:
		return fmt.Errorf("invalid verification depth: %s", d)
	}
}

// Mode selects how an executor is invoked for a stage.
type Mode string

const (
	// ModeValidate permits no side effects on the target; only the
	// artifact itself is checked.
	ModeValidate Mode = "validate"

	// ModeApply mutates the target toward the artifact's declared state.
	ModeApply Mode = "apply"

	// ModeCheck is a dry run that reports what would change without
	// mutating anything.
	ModeCheck Mode = "check"
)

// ModeFor returns the executor mode used by each stage.
func ModeFor(s Stage) Mode {
	switch s {
	case StageApply:
		return ModeApply
	case StageIdempotency:
		return ModeCheck
	default:
		return ModeValidate
	}
}

// Validate checks if the mode is one of the supported invocation modes.
func (m Mode) Validate() error {
	switch m {
	case ModeValidate, ModeApply, ModeCheck:
		return nil
	default:
		return fmt.Errorf("invalid executor mode: %s", m)
	}
}

// Status represents the overall outcome of a run.
type Status string

const (
	// StatusSuccess indicates every executed stage passed, including a
	// clean idempotency re-check when one was requested.
	StatusSuccess Status = "success"

	// StatusFailed indicates a stage reported failures or the run aborted
	// after a syntax check failure.
	StatusFailed Status = "failed"

	// StatusPartialFailure indicates Apply succeeded but the idempotency
	// re-check still reported changes.
	StatusPartialFailure Status = "partial_failure"
)

// Passed returns true if the run ended without failures.
func (s Status) Passed() bool {
	return s == StatusSuccess
}

// Validate checks if the status is one of the known outcomes.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusFailed, StatusPartialFailure:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}
