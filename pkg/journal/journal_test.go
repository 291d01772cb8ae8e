package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/proofrun/proofrun/pkg/run"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	if err := j.BeginRun(ctx, "20260115_093000-a1b2c3", run.DepthAll); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}

	summary := run.Summary{
		RunID:         "20260115_093000-a1b2c3",
		OverallStatus: run.StatusSuccess,
		FinishedAt:    time.Now(),
	}
	if err := j.FinishRun(ctx, summary); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	events, err := j.Events(ctx)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want run start + finish", len(events))
	}
	if events[0].Type != EventRunStarted || events[1].Type != EventRunFinished {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	j := openJournal(t)

	err := j.FinishRun(context.Background(), run.Summary{RunID: "nope"})
	if err == nil {
		t.Error("FinishRun() for an unrecorded run succeeded")
	}
}

func TestRecordEventOrdering(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	for _, msg := range []string{"first", "second", "third"} {
		if err := j.Record(ctx, Event{Type: EventWarning, Message: msg}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	events, err := j.Events(ctx)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"first", "second", "third"} {
		if events[i].Message != want {
			t.Errorf("events[%d].Message = %q, want %q", i, events[i].Message, want)
		}
		if events[i].Level != "info" {
			t.Errorf("events[%d].Level = %q, want default info", i, events[i].Level)
		}
	}
}

func TestStageResultsRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	// Insert out of execution order; reads must come back ordered.
	stages := []run.StageResult{
		{
			Stage:     run.StageIdempotency,
			PerTarget: map[string]run.TargetStats{"web1": {}},
			StartedAt: time.Now(),
			Duration:  2 * time.Second,
			LogPath:   "logs/03_idempotency.log",
		},
		{
			Stage:     run.StageSyntaxCheck,
			PerTarget: map[string]run.TargetStats{"localhost": {}},
			StartedAt: time.Now(),
			Duration:  300 * time.Millisecond,
			LogPath:   "logs/01_syntax.log",
		},
		{
			Stage:       run.StageApply,
			PerTarget:   map[string]run.TargetStats{"web1": {Changed: true}},
			ExitCode:    0,
			StartedAt:   time.Now(),
			Duration:    5 * time.Second,
			LogPath:     "logs/02_apply.log",
			Interrupted: false,
		},
	}
	for _, s := range stages {
		if err := j.RecordStage(ctx, s); err != nil {
			t.Fatalf("RecordStage(%s) error = %v", s.Stage, err)
		}
	}

	results, err := j.StageResults(ctx)
	if err != nil {
		t.Fatalf("StageResults() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d stage results, want 3", len(results))
	}

	wantOrder := []run.Stage{run.StageSyntaxCheck, run.StageApply, run.StageIdempotency}
	for i, stage := range wantOrder {
		if results[i].Stage != stage {
			t.Errorf("results[%d].Stage = %s, want %s", i, results[i].Stage, stage)
		}
	}
	if !results[1].PerTarget["web1"].Changed {
		t.Error("apply per-target stats lost in round trip")
	}
	if results[1].Duration != 5*time.Second {
		t.Errorf("apply duration = %s, want 5s", results[1].Duration)
	}
}

func TestDuplicateStageRejected(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	result := run.StageResult{
		Stage:     run.StageApply,
		PerTarget: map[string]run.TargetStats{},
		StartedAt: time.Now(),
	}
	if err := j.RecordStage(ctx, result); err != nil {
		t.Fatalf("RecordStage() error = %v", err)
	}
	if err := j.RecordStage(ctx, result); err == nil {
		t.Error("recording the same stage twice succeeded")
	}
}
