package schemas

import (
	"context"
)

// -- Dataset Interface --

// Repository is the persistence contract for runs, perception states and
// executed actions. Implementations exist for SQLite (embedded default) and
// PostgreSQL (shared); the engine is independent of which one it talks to.
type Repository interface {
	// SaveRun inserts or updates a run row. Calling it again with the same
	// run ID updates status, step count and end time.
	SaveRun(ctx context.Context, run *Run) error
	// SaveState persists one perception state with its snapshot artifacts.
	SaveState(ctx context.Context, runID string, st *StoredState) error
	// SaveAction persists one executed step.
	SaveAction(ctx context.Context, runID string, step *StepRecord) error
	// GetRun retrieves a run by ID. Returns an error satisfying
	// errors.Is(err, ErrRunNotFound) when the run does not exist.
	GetRun(ctx context.Context, id string) (*Run, error)
	// GetStates returns the perception states of a run in capture order.
	// Snapshot artifacts are not rehydrated.
	GetStates(ctx context.Context, runID string) ([]*PerceptionState, error)
	// Close releases the underlying connections. Safe to call twice.
	Close() error
}

// -- LLM Interface --

// LLMClient is the narrow surface the planner needs from a model provider.
// The production implementation speaks to Gemini; tests substitute a scripted
// fake.
type LLMClient interface {
	// GenerateText sends one prompt and returns the raw model output.
	GenerateText(ctx context.Context, prompt string) (string, error)
}
