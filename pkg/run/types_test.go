package run

import (
	"testing"
)

func TestStageResultFailed(t *testing.T) {
	tests := []struct {
		name   string
		result StageResult
		want   bool
	}{
		{
			name: "clean run",
			result: StageResult{
				Stage:     StageApply,
				PerTarget: map[string]TargetStats{"web1": {Changed: true}},
			},
			want: false,
		},
		{
			name: "nonzero exit",
			result: StageResult{
				Stage:    StageApply,
				ExitCode: 2,
			},
			want: true,
		},
		{
			name: "target failed",
			result: StageResult{
				Stage:     StageApply,
				PerTarget: map[string]TargetStats{"web1": {Failed: true}},
			},
			want: true,
		},
		{
			name: "target unreachable",
			result: StageResult{
				Stage:     StageApply,
				PerTarget: map[string]TargetStats{"web1": {Unreachable: true}},
			},
			want: true,
		},
		{
			name: "interrupted",
			result: StageResult{
				Stage:       StageApply,
				Interrupted: true,
			},
			want: true,
		},
		{
			name: "changed and failed are independent",
			result: StageResult{
				Stage:     StageApply,
				PerTarget: map[string]TargetStats{"net0": {Changed: true, Failed: true}},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Failed(); got != tt.want {
				t.Errorf("StageResult.Failed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStageResultChanged(t *testing.T) {
	r := StageResult{
		Stage: StageIdempotency,
		PerTarget: map[string]TargetStats{
			"web1": {},
			"web2": {Changed: true},
		},
	}
	if !r.Changed() {
		t.Error("StageResult.Changed() = false with a changed target")
	}

	r.PerTarget["web2"] = TargetStats{}
	if r.Changed() {
		t.Error("StageResult.Changed() = true with no changed targets")
	}
}

func TestSummaryExitCode(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusSuccess, 0},
		{StatusFailed, 1},
		{StatusPartialFailure, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			s := &Summary{OverallStatus: tt.status}
			if got := s.ExitCode(); got != tt.want {
				t.Errorf("Summary.ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSummaryStageByName(t *testing.T) {
	s := &Summary{
		Stages: []StageResult{
			{Stage: StageSyntaxCheck},
			{Stage: StageApply, ExitCode: 2},
		},
	}

	got, ok := s.StageByName(StageApply)
	if !ok || got.ExitCode != 2 {
		t.Errorf("StageByName(apply) = (%+v, %v), want recorded result", got, ok)
	}
	if _, ok := s.StageByName(StageIdempotency); ok {
		t.Error("StageByName(idempotency) found a stage that never ran")
	}
}
