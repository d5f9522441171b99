// Package dataset persists runs, perception states and executed actions.
// The embedded SQLite backend is the default; PostgreSQL serves shared
// deployments. Page snapshots are sanitized and brotli-compressed before
// they are written, so a long run stays storable.
package dataset

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/config"
)

// New opens the repository selected by cfg.Backend. The "none" backend
// returns a discarding repository so callers never branch on nil.
func New(ctx context.Context, cfg config.DatasetConfig, log *zap.Logger) (schemas.Repository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Backend {
	case "sqlite":
		return NewSQLite(ctx, cfg.Path, log)
	case "postgres":
		return NewPostgresFromURL(ctx, cfg.PostgresURL, log)
	case "none", "":
		return NopRepository{}, nil
	default:
		return nil, fmt.Errorf("unknown dataset backend %q", cfg.Backend)
	}
}

// NopRepository discards writes and answers lookups with not-found. It backs
// the "none" backend and tests that do not care about persistence.
type NopRepository struct{}

var _ schemas.Repository = NopRepository{}

func (NopRepository) SaveRun(context.Context, *schemas.Run) error { return nil }
func (NopRepository) SaveState(context.Context, string, *schemas.StoredState) error {
	return nil
}
func (NopRepository) SaveAction(context.Context, string, *schemas.StepRecord) error { return nil }
func (NopRepository) GetRun(_ context.Context, id string) (*schemas.Run, error) {
	return nil, fmt.Errorf("run %q: %w", id, schemas.ErrRunNotFound)
}
func (NopRepository) GetStates(context.Context, string) ([]*schemas.PerceptionState, error) {
	return nil, nil
}
func (NopRepository) Close() error { return nil }
