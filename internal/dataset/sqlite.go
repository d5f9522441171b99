package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	target     TEXT NOT NULL,
	objective  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	steps      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS states (
	state_id       TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	url            TEXT NOT NULL DEFAULT '',
	captured_at    TIMESTAMP NOT NULL,
	state_json     TEXT NOT NULL,
	snapshot_br    BLOB,
	screenshot_png BLOB
);
CREATE INDEX IF NOT EXISTS idx_states_run ON states(run_id, captured_at);
CREATE TABLE IF NOT EXISTS steps (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	idx       INTEGER NOT NULL,
	state_id  TEXT NOT NULL DEFAULT '',
	step_json TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);`

// SQLiteRepository is the embedded default backend: one database file (or
// :memory:), schema bootstrapped on open.
type SQLiteRepository struct {
	db  *sql.DB
	log *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ schemas.Repository = (*SQLiteRepository)(nil)

// NewSQLite opens (creating if needed) the database at path and bootstraps
// the schema. The schema statements are idempotent, so reopening an existing
// dataset is safe.
func NewSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteRepository, error) {
	if path == "" {
		return nil, errors.New("sqlite dataset path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite dataset %q: %w", path, err)
	}
	// modernc.org/sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY on concurrent saves.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping sqlite schema: %w", err)
	}

	log.Named("dataset.sqlite").Debug("dataset opened", zap.String("path", path))
	return &SQLiteRepository{db: db, log: log.Named("dataset.sqlite")}, nil
}

// SaveRun inserts the run or, on replays of the same id, updates its
// lifecycle fields.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run *schemas.Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, target, objective, status, started_at, ended_at, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			ended_at = excluded.ended_at,
			steps = excluded.steps`,
		run.ID, run.Target, run.Objective, string(run.Status), run.StartedAt.UTC(), run.EndedAt.UTC(), run.Steps,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// SaveState persists the state document and its artifacts.
func (r *SQLiteRepository) SaveState(ctx context.Context, runID string, st *schemas.StoredState) error {
	doc, err := json.MarshalToString(st.State)
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", st.State.StateID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO states (state_id, run_id, url, captured_at, state_json, snapshot_br, screenshot_png)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.State.StateID, runID, st.State.URL, st.State.CapturedAt.UTC(), doc, st.SnapshotBr, st.ScreenshotPNG,
	)
	if err != nil {
		return fmt.Errorf("saving state %s: %w", st.State.StateID, err)
	}
	return nil
}

// SaveAction persists one executed step.
func (r *SQLiteRepository) SaveAction(ctx context.Context, runID string, step *schemas.StepRecord) error {
	doc, err := json.MarshalToString(step)
	if err != nil {
		return fmt.Errorf("encoding step %d: %w", step.Index, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, idx, state_id, step_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET state_id = excluded.state_id, step_json = excluded.step_json`,
		runID, step.Index, step.StateID, doc,
	)
	if err != nil {
		return fmt.Errorf("saving step %d of run %s: %w", step.Index, runID, err)
	}
	return nil
}

// GetRun retrieves one run by id.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*schemas.Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, target, objective, status, started_at, ended_at, steps
		FROM runs WHERE id = ?`, id)

	var run schemas.Run
	var status string
	err := row.Scan(&run.ID, &run.Target, &run.Objective, &status, &run.StartedAt, &run.EndedAt, &run.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, schemas.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	run.Status = schemas.RunStatus(status)
	return &run, nil
}

// GetStates returns the perception states of a run in capture order. The
// snapshot and screenshot blobs stay on disk.
func (r *SQLiteRepository) GetStates(ctx context.Context, runID string) ([]*schemas.PerceptionState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT state_json FROM states WHERE run_id = ? ORDER BY captured_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying states of run %s: %w", runID, err)
	}
	defer rows.Close()

	var states []*schemas.PerceptionState
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		var st schemas.PerceptionState
		if err := json.UnmarshalFromString(doc, &st); err != nil {
			return nil, fmt.Errorf("decoding stored state: %w", err)
		}
		states = append(states, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state rows: %w", err)
	}
	return states, nil
}

// Close releases the database handle. Idempotent.
func (r *SQLiteRepository) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.db.Close()
	})
	return r.closeErr
}
