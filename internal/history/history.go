// Package history records training runs and their per-epoch metrics in a
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// ErrNotFound is returned when no matching row exists.
var ErrNotFound = errors.New("history: not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs(
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	checkpoint TEXT NOT NULL,
	resumed    INTEGER NOT NULL,
	config     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS epochs(
	run_id        TEXT NOT NULL REFERENCES runs(id),
	epoch         INTEGER NOT NULL,
	train_loss    REAL NOT NULL,
	train_acc     REAL NOT NULL,
	train_samples INTEGER NOT NULL,
	val_loss      REAL NOT NULL,
	val_acc       REAL NOT NULL,
	val_samples   INTEGER NOT NULL,
	duration_ns   INTEGER NOT NULL,
	checkpoint    TEXT NOT NULL,
	checksum      TEXT NOT NULL,
	recorded_at   INTEGER NOT NULL,
	PRIMARY KEY (run_id, epoch)
);
CREATE INDEX IF NOT EXISTS epochs_checkpoint ON epochs(checkpoint, recorded_at);
`

// Run describes one invocation of the trainer.
type Run struct {
	ID         string
	StartedAt  time.Time
	Checkpoint string
	Resumed    bool
	Config     string // YAML of the effective configuration
}

// Epoch holds the metrics of one finished epoch.
type Epoch struct {
	Epoch        int
	TrainLoss    float64
	TrainAcc     float64 // percent
	TrainSamples int
	ValLoss      float64
	ValAcc       float64 // percent
	ValSamples   int
	Duration     time.Duration
	Checkpoint   string
	Checksum     string // SHA-256 of the checkpoint written after the epoch
	RecordedAt   time.Time
}

// Store is a history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a run row.
func (s *Store) StartRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, checkpoint, resumed, config) VALUES(?,?,?,?,?)`,
		r.ID, r.StartedAt.UnixNano(), r.Checkpoint, r.Resumed, r.Config)
	if err != nil {
		return fmt.Errorf("history: start run %s: %w", r.ID, err)
	}
	return nil
}

// RecordEpoch stores the metrics of one epoch of runID.
func (s *Store) RecordEpoch(ctx context.Context, runID string, e Epoch) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epochs(run_id, epoch, train_loss, train_acc, train_samples,
			val_loss, val_acc, val_samples, duration_ns, checkpoint, checksum, recorded_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, e.Epoch, e.TrainLoss, e.TrainAcc, e.TrainSamples,
		e.ValLoss, e.ValAcc, e.ValSamples, int64(e.Duration), e.Checkpoint, e.Checksum,
		e.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("history: record epoch %d of %s: %w", e.Epoch, runID, err)
	}
	return nil
}

const epochColumns = `epoch, train_loss, train_acc, train_samples, val_loss, val_acc,
	val_samples, duration_ns, checkpoint, checksum, recorded_at`

func scanEpoch(row interface{ Scan(...any) error }) (Epoch, error) {
	var (
		e          Epoch
		durationNs int64
		recordedAt int64
	)
	err := row.Scan(&e.Epoch, &e.TrainLoss, &e.TrainAcc, &e.TrainSamples,
		&e.ValLoss, &e.ValAcc, &e.ValSamples, &durationNs, &e.Checkpoint, &e.Checksum, &recordedAt)
	e.Duration = time.Duration(durationNs)
	e.RecordedAt = time.Unix(0, recordedAt)
	return e, err
}

// Epochs returns the epochs of runID in order.
func (s *Store) Epochs(ctx context.Context, runID string) ([]Epoch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+epochColumns+` FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query epochs: %w", err)
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		e, err := scanEpoch(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan epoch: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: query epochs: %w", err)
	}
	return out, nil
}

// LatestForCheckpoint returns the most recently recorded epoch that wrote
// checkpoint, across all runs.
func (s *Store) LatestForCheckpoint(ctx context.Context, checkpoint string) (Epoch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+epochColumns+` FROM epochs WHERE checkpoint = ?
		ORDER BY recorded_at DESC, rowid DESC LIMIT 1`, checkpoint)
	e, err := scanEpoch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Epoch{}, fmt.Errorf("%w: no epoch wrote %s", ErrNotFound, checkpoint)
	}
	if err != nil {
		return Epoch{}, fmt.Errorf("history: latest epoch: %w", err)
	}
	return e, nil
}

// Runs returns every run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, checkpoint, resumed, config FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started int64
		)
		if err := rows.Scan(&r.ID, &started, &r.Checkpoint, &r.Resumed, &r.Config); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	return out, nil
}
