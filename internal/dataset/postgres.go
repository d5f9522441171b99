package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	target     TEXT NOT NULL,
	objective  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ,
	steps      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS states (
	state_id       TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES runs(id),
	url            TEXT NOT NULL DEFAULT '',
	captured_at    TIMESTAMPTZ NOT NULL,
	state_json     JSONB NOT NULL,
	snapshot_br    BYTEA,
	screenshot_png BYTEA
);
CREATE INDEX IF NOT EXISTS idx_states_run ON states(run_id, captured_at);
CREATE TABLE IF NOT EXISTS steps (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	idx       INTEGER NOT NULL,
	state_id  TEXT NOT NULL DEFAULT '',
	step_json JSONB NOT NULL,
	PRIMARY KEY (run_id, idx)
);`

// PostgresRepository is the shared backend for multi-host datasets.
type PostgresRepository struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Repository = (*PostgresRepository)(nil)

// NewPostgresFromURL connects a pool from a pgx connection string and hands
// it to NewPostgres.
func NewPostgresFromURL(ctx context.Context, url string, log *zap.Logger) (*PostgresRepository, error) {
	if url == "" {
		return nil, errors.New("postgres dataset url is empty")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	repo, err := NewPostgres(ctx, pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgres verifies the connection and bootstraps the schema.
func NewPostgres(ctx context.Context, pool DBPool, log *zap.Logger) (*PostgresRepository, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres dataset: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("bootstrapping postgres schema: %w", err)
	}
	return &PostgresRepository{pool: pool, log: log.Named("dataset.postgres")}, nil
}

// SaveRun upserts the run row.
func (r *PostgresRepository) SaveRun(ctx context.Context, run *schemas.Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO runs (id, target, objective, status, started_at, ended_at, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			ended_at = EXCLUDED.ended_at,
			steps = EXCLUDED.steps`,
		run.ID, run.Target, run.Objective, string(run.Status), run.StartedAt.UTC(), run.EndedAt.UTC(), run.Steps,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// SaveState writes the state document and artifacts in one transaction, so a
// half-written state never becomes visible to readers.
func (r *PostgresRepository) SaveState(ctx context.Context, runID string, st *schemas.StoredState) error {
	doc, err := json.Marshal(st.State)
	if err != nil {
		return fmt.Errorf("encoding state %s: %w", st.State.StateID, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning state transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.log.Error("state transaction rollback failed", zap.Error(rbErr))
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO states (state_id, run_id, url, captured_at, state_json, snapshot_br, screenshot_png)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.State.StateID, runID, st.State.URL, st.State.CapturedAt.UTC(), doc, st.SnapshotBr, st.ScreenshotPNG,
	)
	if err != nil {
		return fmt.Errorf("saving state %s: %w", st.State.StateID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing state %s: %w", st.State.StateID, err)
	}
	return nil
}

// SaveAction upserts one executed step.
func (r *PostgresRepository) SaveAction(ctx context.Context, runID string, step *schemas.StepRecord) error {
	doc, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("encoding step %d: %w", step.Index, err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO steps (run_id, idx, state_id, step_json) VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, idx) DO UPDATE SET state_id = EXCLUDED.state_id, step_json = EXCLUDED.step_json`,
		runID, step.Index, step.StateID, doc,
	)
	if err != nil {
		return fmt.Errorf("saving step %d of run %s: %w", step.Index, runID, err)
	}
	return nil
}

// GetRun retrieves one run by id.
func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*schemas.Run, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, target, objective, status, started_at, ended_at, steps
		FROM runs WHERE id = $1`, id)

	var run schemas.Run
	var status string
	err := row.Scan(&run.ID, &run.Target, &run.Objective, &status, &run.StartedAt, &run.EndedAt, &run.Steps)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, schemas.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	run.Status = schemas.RunStatus(status)
	return &run, nil
}

// GetStates returns the perception states of a run in capture order.
func (r *PostgresRepository) GetStates(ctx context.Context, runID string) ([]*schemas.PerceptionState, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT state_json FROM states WHERE run_id = $1 ORDER BY captured_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying states of run %s: %w", runID, err)
	}
	defer rows.Close()

	var states []*schemas.PerceptionState
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}
		var st schemas.PerceptionState
		if err := json.Unmarshal(doc, &st); err != nil {
			return nil, fmt.Errorf("decoding stored state: %w", err)
		}
		states = append(states, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state rows: %w", err)
	}
	return states, nil
}

// Close releases the pool. Safe to call twice; pgxpool ignores repeat closes.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
