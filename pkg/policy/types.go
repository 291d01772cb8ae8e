package policy

import (
	"time"
)

// Severity grades a rule violation.
type Severity string

const (
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"

	// SeverityWarning flags something worth reviewing without blocking
	// the run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run.
	SeverityError Severity = "error"

	// SeverityCritical blocks the run and demands immediate attention.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation at this severity denies the run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Rule is one gate rule with its Rego source.
type Rule struct {
	// Name uniquely identifies the rule.
	Name string `json:"name"`

	// Description is a human-readable summary.
	Description string `json:"description"`

	// Rego holds the rule source.
	Rego string `json:"rego"`

	// Severity is the default severity for this rule's violations.
	Severity Severity `json:"severity"`

	// Enabled gates whether the rule participates in evaluation.
	Enabled bool `json:"enabled"`

	// Tags label the rule for filtering.
	Tags []string `json:"tags,omitempty"`

	// Metadata carries extra rule information, e.g. the source file.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Violation is one finding from rule evaluation.
type Violation struct {
	// Rule names the rule that fired.
	Rule string `json:"rule"`

	// Message describes the finding.
	Message string `json:"message"`

	// Severity grades the finding.
	Severity Severity `json:"severity"`

	// DetectedAt is when the finding was produced.
	DetectedAt time.Time `json:"detected_at"`
}

// GateResult is the outcome of evaluating an artifact against the gate.
type GateResult struct {
	// Allowed is false when any blocking violation fired.
	Allowed bool `json:"allowed"`

	// Violations are blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are non-blocking findings.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedRules names the rules that ran.
	EvaluatedRules []string `json:"evaluated_rules"`

	// EvaluatedAt is when evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long evaluation took.
	Duration time.Duration `json:"duration"`
}

// ArtifactInput describes the artifact under evaluation.
type ArtifactInput struct {
	// Name is the artifact's logical name.
	Name string `json:"name"`

	// Kind is the artifact kind string.
	Kind string `json:"kind"`

	// Content is the raw artifact text.
	Content string `json:"content"`

	// Document is the parsed artifact, when it parses.
	Document interface{} `json:"document,omitempty"`
}

// Input is the evaluation input handed to every rule.
type Input struct {
	// Artifact is the document heading for the targets.
	Artifact ArtifactInput `json:"artifact"`

	// Targets are the resolved inventory hosts.
	Targets []string `json:"targets,omitempty"`

	// Depth is the requested verification depth.
	Depth string `json:"depth,omitempty"`

	// Timestamp is when the evaluation started.
	Timestamp time.Time `json:"timestamp"`
}
