// Package report turns recorded stage results into the run summary and
// decides the overall outcome.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/proofrun/proofrun/pkg/run"
)

// Status computes the overall outcome from an ordered stage sequence.
// This is a pure function of its inputs.
//
// Success requires every executed stage to report zero failures and the
// idempotency re-check, when executed, to report zero residual changes.
// A clean apply whose re-check still reports changes is a partial
// failure: the artifact landed but is not idempotent. Everything else,
// including an aborted cycle, is a failure.
func Status(stages []run.StageResult, aborted bool) run.Status {
	if aborted || len(stages) == 0 {
		return run.StatusFailed
	}

	for _, s := range stages {
		if s.Failed() {
			return run.StatusFailed
		}
	}

	for _, s := range stages {
		if s.Stage == run.StageIdempotency && s.Changed() {
			return run.StatusPartialFailure
		}
	}

	return run.StatusSuccess
}

// Aggregate builds the immutable run summary for one completed cycle.
// Artifact and bundle paths are attached by the caller once known.
func Aggregate(runID string, stages []run.StageResult, aborted bool) run.Summary {
	summary := run.Summary{
		RunID:         runID,
		Stages:        stages,
		OverallStatus: Status(stages, aborted),
		Aborted:       aborted,
		FinishedAt:    time.Now(),
	}

	if len(stages) > 0 {
		summary.StartedAt = stages[0].StartedAt
	} else {
		summary.StartedAt = summary.FinishedAt
	}

	return summary
}

// Write serializes the summary as indented JSON at path.
func Write(path string, summary run.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// Read loads a previously written summary.
func Read(path string) (run.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return run.Summary{}, fmt.Errorf("failed to read summary: %w", err)
	}
	var summary run.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return run.Summary{}, fmt.Errorf("failed to decode summary: %w", err)
	}
	return summary, nil
}
