// Package ledger keeps a local, append-only record of workflow runs:
// who asked for what, whether it succeeded, which stage failed, and
// what was charged. It backs the usage report and is the place a
// failed run's cause can be looked up by request id.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Entry is one workflow run.
type Entry struct {
	ID        string
	Timestamp time.Time
	RequestID string
	UserID    string
	Workflow  string // "new_story", "continue_story", "audio_story"
	Outcome   string
	// Stage is the stage that failed; empty on success.
	Stage string
	// Error is the internal failure cause. It is never shown to the
	// caller.
	Error    string
	StoryID  int64
	ThreadID string
	// Charged is the amount debited; zero when the debit failed.
	Charged  int64
	Duration time.Duration
}

// Summary aggregates entries.
type Summary struct {
	Runs      int
	Succeeded int
	Failed    int
	Charged   int64
	Duration  time.Duration
}

// Store is an append-only SQLite ledger. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the ledger at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS workflow_runs (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		request_id  TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		workflow    TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		stage       TEXT,
		error       TEXT,
		story_id    INTEGER,
		thread_id   TEXT,
		charged     INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON workflow_runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_user ON workflow_runs(user_id);
	CREATE INDEX IF NOT EXISTS idx_runs_request ON workflow_runs(request_id);
	`)
	return err
}

// Record appends e. A missing ID gets a UUIDv7 and a zero Timestamp
// becomes now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate ledger id: %w", err)
		}
		e.ID = id.String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs
			(id, timestamp, request_id, user_id, workflow, outcome, stage, error,
			 story_id, thread_id, charged, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.RequestID,
		e.UserID,
		e.Workflow,
		e.Outcome,
		e.Stage,
		e.Error,
		e.StoryID,
		e.ThreadID,
		e.Charged,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

const summaryColumns = `COUNT(*),
	COALESCE(SUM(outcome = 'ok'), 0),
	COALESCE(SUM(outcome <> 'ok'), 0),
	COALESCE(SUM(charged), 0),
	COALESCE(SUM(duration_ms), 0)`

func scanSummary(scan func(dest ...any) error, extra ...any) (*Summary, error) {
	var sum Summary
	var ms int64
	dest := append(extra, &sum.Runs, &sum.Succeeded, &sum.Failed, &sum.Charged, &ms)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	sum.Duration = time.Duration(ms) * time.Millisecond
	return &sum, nil
}

// Summary totals entries within [start, end).
func (s *Store) Summary(ctx context.Context, start, end time.Time) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM workflow_runs WHERE timestamp >= ? AND timestamp < ?`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	sum, err := scanSummary(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("query ledger summary: %w", err)
	}
	return sum, nil
}

// SummaryByWorkflow totals entries within [start, end) per workflow.
func (s *Store) SummaryByWorkflow(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy(ctx, "workflow", start, end)
}

// SummaryByUser totals entries within [start, end) per user.
func (s *Store) SummaryByUser(ctx context.Context, start, end time.Time) (map[string]*Summary, error) {
	return s.summaryGroupedBy(ctx, "user_id", start, end)
}

// column is one of our own constants, never input.
func (s *Store) summaryGroupedBy(ctx context.Context, column string, start, end time.Time) (map[string]*Summary, error) {
	query := fmt.Sprintf(
		`SELECT %s, `+summaryColumns+`
		 FROM workflow_runs
		 WHERE timestamp >= ? AND timestamp < ?
		 GROUP BY %s`,
		column, column,
	)
	rows, err := s.db.QueryContext(ctx, query,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger by %s: %w", column, err)
	}
	defer rows.Close()

	result := make(map[string]*Summary)
	for rows.Next() {
		var key string
		sum, err := scanSummary(rows.Scan, &key)
		if err != nil {
			return nil, fmt.Errorf("scan ledger by %s: %w", column, err)
		}
		result[key] = sum
	}
	return result, rows.Err()
}

// ByRequest returns the entry recorded for requestID, or nil.
func (s *Store) ByRequest(ctx context.Context, requestID string) (*Entry, error) {
	var e Entry
	var ts string
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, request_id, user_id, workflow, outcome,
			COALESCE(stage, ''), COALESCE(error, ''), COALESCE(story_id, 0),
			COALESCE(thread_id, ''), charged, duration_ms
		 FROM workflow_runs WHERE request_id = ?
		 ORDER BY rowid DESC LIMIT 1`,
		requestID,
	).Scan(&e.ID, &ts, &e.RequestID, &e.UserID, &e.Workflow, &e.Outcome,
		&e.Stage, &e.Error, &e.StoryID, &e.ThreadID, &e.Charged, &ms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger entry %s: %w", requestID, err)
	}
	e.Timestamp, _ = time.Parse(time.RFC3339, ts)
	e.Duration = time.Duration(ms) * time.Millisecond
	return &e, nil
}
