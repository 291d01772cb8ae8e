package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/proofrun/proofrun/pkg/executor"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// scriptedExecutor returns canned per-target stats keyed by stage.
type scriptedExecutor struct {
	outcomes map[run.Stage]map[string]run.TargetStats
	errs     map[run.Stage]error
	invoked  []run.Stage
}

func (s *scriptedExecutor) Kind() string { return "scripted" }

func (s *scriptedExecutor) Invoke(ctx context.Context, inv executor.Invocation) (run.StageResult, error) {
	s.invoked = append(s.invoked, inv.Stage)
	if err := s.errs[inv.Stage]; err != nil {
		return run.StageResult{Stage: inv.Stage}, err
	}

	stats := s.outcomes[inv.Stage]
	result := run.StageResult{
		Stage:     inv.Stage,
		PerTarget: stats,
		LogPath:   inv.LogPath,
	}
	for _, st := range stats {
		if st.Failed || st.Unreachable {
			result.ExitCode = 1
		}
	}
	return result, nil
}

type recordingObserver struct {
	started   []run.Stage
	completed []run.Stage
}

func (r *recordingObserver) StageStarted(_ context.Context, stage run.Stage) {
	r.started = append(r.started, stage)
}

func (r *recordingObserver) StageCompleted(_ context.Context, result run.StageResult) {
	r.completed = append(r.completed, result.Stage)
}

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return logger
}

func ok() map[string]run.TargetStats {
	return map[string]run.TargetStats{"web1": {}}
}

func changed() map[string]run.TargetStats {
	return map[string]run.TargetStats{"web1": {Changed: true}}
}

func failed() map[string]run.TargetStats {
	return map[string]run.TargetStats{"web1": {Failed: true}}
}

func newRunner(t *testing.T, exec executor.Executor, depth run.Depth, obs Observer) *Runner {
	t.Helper()
	r, err := NewRunner(Config{
		Executor: exec,
		Depth:    depth,
		Observer: obs,
		Logger:   testLogger(t),
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func TestRunFullDepth(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[run.Stage]map[string]run.TargetStats{
		run.StageSyntaxCheck: ok(),
		run.StageApply:       changed(),
		run.StageIdempotency: ok(),
	}}
	obs := &recordingObserver{}
	r := newRunner(t, exec, run.DepthAll, obs)

	results, aborted, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if aborted {
		t.Error("Run() aborted a clean cycle")
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	wantOrder := []run.Stage{run.StageSyntaxCheck, run.StageApply, run.StageIdempotency}
	for i, stage := range wantOrder {
		if results[i].Stage != stage {
			t.Errorf("results[%d].Stage = %s, want %s", i, results[i].Stage, stage)
		}
		if obs.started[i] != stage || obs.completed[i] != stage {
			t.Errorf("observer order mismatch at %d", i)
		}
	}
	if r.State() != StateDone {
		t.Errorf("State() = %s, want %s", r.State(), StateDone)
	}
}

func TestRunSyntaxFailureAborts(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[run.Stage]map[string]run.TargetStats{
		run.StageSyntaxCheck: failed(),
	}}
	r := newRunner(t, exec, run.DepthAll, nil)

	results, aborted, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !aborted {
		t.Error("syntax failure did not abort")
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want only the syntax check", len(results))
	}
	if len(exec.invoked) != 1 {
		t.Errorf("executor invoked %d times after syntax failure", len(exec.invoked))
	}
	if r.State() != StateAborted {
		t.Errorf("State() = %s, want %s", r.State(), StateAborted)
	}
}

func TestRunApplyFailureStillCompletes(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[run.Stage]map[string]run.TargetStats{
		run.StageSyntaxCheck: ok(),
		run.StageApply:       failed(),
	}}
	r := newRunner(t, exec, run.DepthAll, nil)

	results, aborted, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if aborted {
		t.Error("apply failure must not abort")
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (no idempotency after a failed apply)", len(results))
	}
	if !results[1].Failed() {
		t.Error("apply result not recorded as failed")
	}
	if r.State() != StateDone {
		t.Errorf("State() = %s, want %s", r.State(), StateDone)
	}
}

func TestRunDepthSelection(t *testing.T) {
	tests := []struct {
		name       string
		depth      run.Depth
		wantStages []run.Stage
	}{
		{"syntax only", run.DepthSyntax, []run.Stage{run.StageSyntaxCheck}},
		{"no verification", run.DepthNone, []run.Stage{run.StageSyntaxCheck, run.StageApply}},
		{"full", run.DepthAll, []run.Stage{run.StageSyntaxCheck, run.StageApply, run.StageIdempotency}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &scriptedExecutor{outcomes: map[run.Stage]map[string]run.TargetStats{
				run.StageSyntaxCheck: ok(),
				run.StageApply:       ok(),
				run.StageIdempotency: ok(),
			}}
			r := newRunner(t, exec, tt.depth, nil)

			results, _, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(results) != len(tt.wantStages) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantStages))
			}
			for i, stage := range tt.wantStages {
				if results[i].Stage != stage {
					t.Errorf("results[%d].Stage = %s, want %s", i, results[i].Stage, stage)
				}
			}
		})
	}
}

func TestRunExecutorErrorRecorded(t *testing.T) {
	exec := &scriptedExecutor{
		outcomes: map[run.Stage]map[string]run.TargetStats{
			run.StageSyntaxCheck: ok(),
		},
		errs: map[run.Stage]error{
			run.StageApply: errors.New("engine binary not found"),
		},
	}
	r := newRunner(t, exec, run.DepthAll, nil)

	results, aborted, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if aborted {
		t.Error("infrastructure failure during apply must not abort")
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[1].Failed() {
		t.Error("executor error not recorded as a failed stage")
	}
}

func TestRunSingleUse(t *testing.T) {
	exec := &scriptedExecutor{outcomes: map[run.Stage]map[string]run.TargetStats{
		run.StageSyntaxCheck: ok(),
	}}
	r := newRunner(t, exec, run.DepthSyntax, nil)

	if _, _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, _, err := r.Run(context.Background()); err == nil {
		t.Error("second Run() on the same runner succeeded")
	}
}
