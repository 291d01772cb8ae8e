package run

import (
	"time"
)

// TargetStats is the normalized per-target outcome of one stage invocation.
// Changed and failed are independent: a partially applied change reports
// both.
type TargetStats struct {
	// Changed indicates the executor mutated (or would mutate) the target.
	Changed bool `json:"changed"`

	// Failed indicates the operation failed on the target.
	Failed bool `json:"failed"`

	// Unreachable indicates the target could not be contacted at all.
	Unreachable bool `json:"unreachable"`
}

// StageResult records the outcome of one stage invocation. It is immutable
// once recorded; the pipeline never revisits a completed stage.
type StageResult struct {
	// Stage is the phase this result belongs to.
	Stage Stage `json:"stage"`

	// PerTarget maps hostname or logical target to its normalized stats.
	PerTarget map[string]TargetStats `json:"per_target"`

	// ExitCode is the raw exit status of the executor process.
	ExitCode int `json:"exit_code"`

	// LogPath is the path of the captured stage log inside the run directory.
	LogPath string `json:"log_path"`

	// StartedAt is when the executor was launched.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the executor ran.
	Duration time.Duration `json:"duration"`

	// Interrupted is set when the stage was cut short by cancellation or
	// a per-stage timeout.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Failed reports whether the stage failed: a nonzero exit, an interruption,
// or any target reporting failed or unreachable.
func (r StageResult) Failed() bool {
	if r.ExitCode != 0 || r.Interrupted {
		return true
	}
	for _, st := range r.PerTarget {
		if st.Failed || st.Unreachable {
			return true
		}
	}
	return false
}

// Changed reports whether any target reported a change.
func (r StageResult) Changed() bool {
	for _, st := range r.PerTarget {
		if st.Changed {
			return true
		}
	}
	return false
}

// Summary is the aggregated outcome of a run, computed once after the last
// executed stage and serialized into the run directory.
type Summary struct {
	// RunID is the run identity (timestamp plus random suffix).
	RunID string `json:"run_id"`

	// Stages holds the per-stage results in execution order.
	Stages []StageResult `json:"stages"`

	// OverallStatus is the aggregate pass/fail decision.
	OverallStatus Status `json:"overall_status"`

	// Aborted is set when the cycle stopped early after a syntax check
	// failure.
	Aborted bool `json:"aborted,omitempty"`

	// ArtifactPath is where the artifact was persisted inside the run
	// directory.
	ArtifactPath string `json:"artifact_path,omitempty"`

	// BundlePath is where the evidence archive was written. Empty when
	// bundling failed; the per-stage logs remain on disk either way.
	BundlePath string `json:"bundle_path,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last stage completed.
	FinishedAt time.Time `json:"finished_at"`
}

// ExitCode maps the overall status to the orchestrating process exit code.
// The caller sees the aggregate outcome, not any individual stage's exit.
func (s *Summary) ExitCode() int {
	if s.OverallStatus == StatusSuccess {
		return 0
	}
	return 1
}

// StageByName returns the recorded result for a stage, if it was executed.
func (s *Summary) StageByName(stage Stage) (StageResult, bool) {
	for _, r := range s.Stages {
		if r.Stage == stage {
			return r, true
		}
	}
	return StageResult{}, false
}
