package report

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/proofrun/proofrun/pkg/run"
)

func stageResult(stage run.Stage, changed, failed bool) run.StageResult {
	exit := 0
	if failed {
		exit = 2
	}
	return run.StageResult{
		Stage: stage,
		PerTarget: map[string]run.TargetStats{
			"web1": {Changed: changed, Failed: failed},
		},
		ExitCode:  exit,
		StartedAt: time.Now(),
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name    string
		stages  []run.StageResult
		aborted bool
		want    run.Status
	}{
		{
			name: "clean full cycle",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, false),
				stageResult(run.StageApply, true, false),
				stageResult(run.StageIdempotency, false, false),
			},
			want: run.StatusSuccess,
		},
		{
			name: "residual changes on re-check",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, false),
				stageResult(run.StageApply, true, false),
				stageResult(run.StageIdempotency, true, false),
			},
			want: run.StatusPartialFailure,
		},
		{
			name: "apply failure",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, false),
				stageResult(run.StageApply, false, true),
			},
			want: run.StatusFailed,
		},
		{
			name: "aborted on syntax",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, true),
			},
			aborted: true,
			want:    run.StatusFailed,
		},
		{
			name: "failure beats residual changes",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, false),
				stageResult(run.StageApply, true, false),
				stageResult(run.StageIdempotency, true, true),
			},
			want: run.StatusFailed,
		},
		{
			name: "syntax only",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, false),
			},
			want: run.StatusSuccess,
		},
		{
			name: "interrupted apply",
			stages: []run.StageResult{
				stageResult(run.StageSyntaxCheck, false, false),
				{Stage: run.StageApply, Interrupted: true, PerTarget: map[string]run.TargetStats{}},
			},
			want: run.StatusFailed,
		},
		{
			name: "no stages",
			want: run.StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.stages, tt.aborted); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	stages := []run.StageResult{
		stageResult(run.StageSyntaxCheck, false, false),
		stageResult(run.StageApply, true, false),
		stageResult(run.StageIdempotency, false, false),
	}

	summary := Aggregate("20260115_093000-a1b2c3", stages, false)

	if summary.OverallStatus != run.StatusSuccess {
		t.Errorf("OverallStatus = %s, want success", summary.OverallStatus)
	}
	if summary.RunID != "20260115_093000-a1b2c3" {
		t.Errorf("RunID = %q", summary.RunID)
	}
	if !summary.StartedAt.Equal(stages[0].StartedAt) {
		t.Error("StartedAt not taken from the first stage")
	}
	if summary.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", summary.ExitCode())
	}

	aborted := Aggregate("x", stages[:1], true)
	if aborted.OverallStatus != run.StatusFailed || !aborted.Aborted {
		t.Errorf("aborted summary = %+v", aborted)
	}
	if aborted.ExitCode() == 0 {
		t.Error("aborted run must exit nonzero")
	}
}

func TestWriteRead(t *testing.T) {
	stages := []run.StageResult{
		stageResult(run.StageSyntaxCheck, false, false),
		stageResult(run.StageApply, true, false),
	}
	summary := Aggregate("20260115_093000-a1b2c3", stages, false)
	summary.ArtifactPath = "project/site.yml"

	path := filepath.Join(t.TempDir(), "summary.json")
	if err := Write(path, summary); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if loaded.RunID != summary.RunID || loaded.OverallStatus != summary.OverallStatus {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if !reflect.DeepEqual(loaded.Stages[1].PerTarget, summary.Stages[1].PerTarget) {
		t.Errorf("per-target stats mismatch: %+v", loaded.Stages[1].PerTarget)
	}
}
