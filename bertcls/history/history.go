// Package history records training runs and their per-epoch results in a
// libsql database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one invocation of the trainer.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Config     string
}

// Epoch is the summary of one completed epoch.
type Epoch struct {
	RunID      uuid.UUID
	Epoch      int
	Loss       float64
	Steps      int
	Duration   time.Duration
	Checkpoint string
	RecordedAt time.Time
}

// Store persists runs and epochs.
type Store struct {
	db *sql.DB
}

// Open connects to dsn ("file:" URLs create parent directories) and makes
// sure the schema exists.
func Open(dsn string) (*Store, error) {
	if path, ok := strings.CutPrefix(dsn, "file:"); ok && path != "" && !strings.HasPrefix(path, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("could not create history directory: %w", err)
		}
	}
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY UNIQUE,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		config TEXT
	)`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS epochs (
		run_id TEXT NOT NULL,
		epoch INTEGER NOT NULL,
		loss REAL NOT NULL,
		steps INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		checkpoint TEXT,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (run_id, epoch)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create epochs table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// StartRun inserts a running run and returns its ID.
func (s *Store) StartRun(ctx context.Context, config string) (uuid.UUID, error) {
	id := uuid.New()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, status, config) VALUES (?, ?, ?, ?)",
		id.String(), time.Now().UTC().Format(time.RFC3339Nano), StatusRunning, config)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return uuid.Nil, fmt.Errorf("expected 1 row affected, got %d", n)
	}
	return id, nil
}

// RecordEpoch stores the result of one epoch, replacing an earlier record
// for the same run and epoch.
func (s *Store) RecordEpoch(ctx context.Context, e Epoch) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO epochs (run_id, epoch, loss, steps, duration_ms, checkpoint, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID.String(), e.Epoch, e.Loss, e.Steps, e.Duration.Milliseconds(), e.Checkpoint,
		e.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record epoch %d: %w", e.Epoch, err)
	}
	return nil
}

// FinishRun marks a run completed or failed.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, time.Now().UTC().Format(time.RFC3339Nano), id.String())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var (
		rawID, started, status string
		finished, config       sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, started_at, finished_at, status, config FROM runs WHERE id = ?", id.String()).
		Scan(&rawID, &started, &finished, &status, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run := &Run{Status: status, Config: config.String}
	if run.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", rawID, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("invalid start time %q: %w", started, err)
	}
	if finished.Valid {
		ft, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("invalid finish time %q: %w", finished.String, err)
		}
		run.FinishedAt = &ft
	}
	return run, nil
}

// Epochs lists the recorded epochs of a run in order.
func (s *Store) Epochs(ctx context.Context, id uuid.UUID) ([]Epoch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT epoch, loss, steps, duration_ms, checkpoint, recorded_at
		 FROM epochs WHERE run_id = ? ORDER BY epoch`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		var (
			e          Epoch
			durationMS int64
			checkpoint sql.NullString
			recorded   string
		)
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.Steps, &durationMS, &checkpoint, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		e.RunID = id
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.Checkpoint = checkpoint.String
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("invalid record time %q: %w", recorded, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
