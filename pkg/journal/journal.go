// Package journal keeps a per-run SQLite event log inside the run
// directory. The journal travels with the bundle; nothing outlives the
// run it belongs to.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/proofrun/proofrun/pkg/run"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Event is one journal entry.
type Event struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Type       string    `json:"type"`
	Stage      string    `json:"stage,omitempty"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
}

// Well-known event types.
const (
	EventRunStarted     = "run.started"
	EventRunFinished    = "run.finished"
	EventStageStarted   = "stage.started"
	EventStageCompleted = "stage.completed"
	EventWarning        = "warning"
)

// Journal is the per-run event log.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal at path and applies migrations.
// Use ":memory:" for an ephemeral journal.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// One run writes the journal; a pool buys nothing here and an
	// in-memory database must not span connections.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	j := &Journal{db: db, path: path}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (j *Journal) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(j.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// BeginRun records the run identity and requested depth.
func (j *Journal) BeginRun(ctx context.Context, runID string, depth run.Depth) error {
	query := `INSERT INTO run_meta (id, depth, started_at) VALUES (?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, runID, string(depth), time.Now()); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return j.Record(ctx, Event{Type: EventRunStarted, Level: "info", Message: "run started"})
}

// FinishRun records the final status against the run row.
func (j *Journal) FinishRun(ctx context.Context, summary run.Summary) error {
	query := `UPDATE run_meta SET status = ?, aborted = ?, finished_at = ? WHERE id = ?`
	result, err := j.db.ExecContext(ctx, query,
		string(summary.OverallStatus), summary.Aborted, summary.FinishedAt, summary.RunID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found in journal: %s", summary.RunID)
	}
	return j.Record(ctx, Event{
		Type:    EventRunFinished,
		Level:   "info",
		Message: fmt.Sprintf("run finished with status %s", summary.OverallStatus),
	})
}

// Record appends one event. A zero OccurredAt is stamped now.
func (j *Journal) Record(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if event.Level == "" {
		event.Level = "info"
	}

	query := `INSERT INTO events (occurred_at, event_type, stage, level, message) VALUES (?, ?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query,
		event.OccurredAt, event.Type, event.Stage, event.Level, event.Message); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecordStage persists one stage result.
func (j *Journal) RecordStage(ctx context.Context, result run.StageResult) error {
	perTarget, err := json.Marshal(result.PerTarget)
	if err != nil {
		return fmt.Errorf("failed to encode per-target stats: %w", err)
	}

	query := `
		INSERT INTO stage_results (stage, exit_code, interrupted, log_path, started_at, duration_ms, per_target)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := j.db.ExecContext(ctx, query,
		string(result.Stage),
		result.ExitCode,
		result.Interrupted,
		result.LogPath,
		result.StartedAt,
		result.Duration.Milliseconds(),
		string(perTarget),
	); err != nil {
		return fmt.Errorf("failed to record stage result: %w", err)
	}
	return nil
}

// Events returns all recorded events in order of occurrence.
func (j *Journal) Events(ctx context.Context) ([]Event, error) {
	query := `SELECT id, occurred_at, event_type, stage, level, message FROM events ORDER BY id`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Type, &e.Stage, &e.Level, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// StageResults returns the recorded stage results in execution order.
func (j *Journal) StageResults(ctx context.Context) ([]run.StageResult, error) {
	query := `SELECT stage, exit_code, interrupted, log_path, started_at, duration_ms, per_target FROM stage_results`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage results: %w", err)
	}
	defer rows.Close()

	results := []run.StageResult{}
	for rows.Next() {
		var (
			r          run.StageResult
			stage      string
			durationMS int64
			perTarget  string
		)
		if err := rows.Scan(&stage, &r.ExitCode, &r.Interrupted, &r.LogPath, &r.StartedAt, &durationMS, &perTarget); err != nil {
			return nil, fmt.Errorf("failed to scan stage result: %w", err)
		}
		r.Stage = run.Stage(stage)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(perTarget), &r.PerTarget); err != nil {
			return nil, fmt.Errorf("failed to decode per-target stats: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stage results: %w", err)
	}

	// Execution order is stage order.
	sort.Slice(results, func(i, k int) bool {
		return results[i].Stage.Ordinal() < results[k].Stage.Ordinal()
	})
	return results, nil
}
