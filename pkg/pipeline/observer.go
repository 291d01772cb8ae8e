package pipeline

import (
	"context"
	"fmt"

	"github.com/proofrun/proofrun/pkg/journal"
	"github.com/proofrun/proofrun/pkg/run"
	"github.com/proofrun/proofrun/pkg/telemetry"
)

// journalObserver records stage transitions into the run journal and
// mirrors them to telemetry. Journal write failures are logged through the
// event side only; observation never interrupts the run.
type journalObserver struct {
	journal *journal.Journal
	runID   string
	tel     *telemetry.Telemetry
}

func (o *journalObserver) StageStarted(ctx context.Context, st run.Stage) {
	_ = o.journal.Record(ctx, journal.Event{
		Type:    journal.EventStageStarted,
		Stage:   string(st),
		Level:   "info",
		Message: fmt.Sprintf("stage %s started", st),
	})
	_ = o.tel.Events.PublishStageStarted(o.runID, string(st))
}

func (o *journalObserver) StageCompleted(ctx context.Context, result run.StageResult) {
	_ = o.journal.RecordStage(ctx, result)

	level, status := "info", "passed"
	if result.Failed() {
		level, status = "error", "failed"
	}
	_ = o.journal.Record(ctx, journal.Event{
		Type:    journal.EventStageCompleted,
		Stage:   string(result.Stage),
		Level:   level,
		Message: fmt.Sprintf("stage %s %s (exit %d)", result.Stage, status, result.ExitCode),
	})
	o.tel.Metrics.RecordStageExecution(string(result.Stage), status, result.Duration)
	_ = o.tel.Events.PublishStageCompleted(o.runID, string(result.Stage), result.Failed(), result.Duration)
}
