// Package engine orchestrates perception cycles: perceive, decide, act,
// watch, repeat. It owns no page logic of its own; every capability arrives
// as an interface so the loop is testable without a browser or a model.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/config"
	"github.com/xkilldash9x/percept-cli/internal/dataset"
	"github.com/xkilldash9x/percept-cli/internal/executor"
	"github.com/xkilldash9x/percept-cli/internal/mutation"
	"github.com/xkilldash9x/percept-cli/internal/perception"
)

// Surface is the full page capability set one engine session works with:
// perception reads, executor interactions, screenshots, teardown.
// *browser.Session satisfies it.
type Surface interface {
	perception.PageSurface
	executor.Page
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// SessionFactory creates page surfaces. The browser manager is adapted to it
// in the composition root; tests supply fakes.
type SessionFactory interface {
	NewSession(ctx context.Context) (Surface, error)
}

// StateBuilder runs one full perception cycle against a surface.
type StateBuilder interface {
	BuildState(ctx context.Context, surface perception.PageSurface) (*schemas.PerceptionState, error)
}

// Planner decides the next action toward an objective.
type Planner interface {
	Decide(ctx context.Context, objective string, state *schemas.PerceptionState, history []schemas.StepRecord) (*schemas.Decision, error)
}

// ActionExecutor performs one decided action.
type ActionExecutor interface {
	Execute(ctx context.Context, page executor.Page, state *schemas.PerceptionState, action schemas.Action) schemas.ActionResult
}

// ChangeWatcher reports whether the document shifted after an action.
// *mutation.Watcher satisfies it.
type ChangeWatcher interface {
	WatchForChange(ctx context.Context, ev mutation.Evaluator, timeout time.Duration) (bool, error)
}

// Engine runs objective loops and one-shot perception sweeps.
type Engine struct {
	cfg      config.Interface
	sessions SessionFactory
	builder  StateBuilder
	planner  Planner
	exec     ActionExecutor
	watcher  ChangeWatcher
	repo     schemas.Repository
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New wires an engine. planner may be nil when only PerceiveTargets is used;
// everything else is required.
func New(
	cfg config.Interface,
	sessions SessionFactory,
	builder StateBuilder,
	planner Planner,
	exec ActionExecutor,
	watcher ChangeWatcher,
	repo schemas.Repository,
	log *zap.Logger,
) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if sessions == nil {
		return nil, errors.New("session factory cannot be nil")
	}
	if builder == nil {
		return nil, errors.New("state builder cannot be nil")
	}
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if watcher == nil {
		return nil, errors.New("mutation watcher cannot be nil")
	}
	if repo == nil {
		repo = dataset.NopRepository{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	pace := cfg.Engine().Pace
	limiter := rate.NewLimiter(rate.Inf, 1)
	if pace > 0 {
		limiter = rate.NewLimiter(rate.Every(pace), 1)
	}

	return &Engine{
		cfg:      cfg,
		sessions: sessions,
		builder:  builder,
		planner:  planner,
		exec:     exec,
		watcher:  watcher,
		repo:     repo,
		limiter:  limiter,
		log:      log.Named("engine"),
	}, nil
}

// RunObjective drives one perceive-decide-act loop against target until the
// planner reports DONE or FAIL, the step cap is reached, or the context ends.
// The returned run reflects the final status even when an error is returned.
func (e *Engine) RunObjective(ctx context.Context, target, objective string) (*schemas.Run, error) {
	if e.planner == nil {
		return nil, errors.New("engine has no planner wired; objective runs need one")
	}

	run := &schemas.Run{
		ID:        uuid.NewString(),
		Target:    target,
		Objective: objective,
		Status:    schemas.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.repo.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}

	log := e.log.With(zap.String("run_id", run.ID), zap.String("target", target))
	runErr := e.runLoop(ctx, run, objective, log)

	run.EndedAt = time.Now().UTC()
	if runErr != nil && run.Status == schemas.RunStatusRunning {
		run.Status = schemas.RunStatusFailed
	}
	if err := e.repo.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("recording run end failed", zap.Error(err))
	}

	log.Info("objective run finished",
		zap.String("status", string(run.Status)),
		zap.Int("steps", run.Steps),
	)
	return run, runErr
}

func (e *Engine) runLoop(ctx context.Context, run *schemas.Run, objective string, log *zap.Logger) error {
	surface, err := e.sessions.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer surface.Close(context.WithoutCancel(ctx))

	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := surface.Navigate(ctx, run.Target); err != nil {
		return fmt.Errorf("navigating to %s: %w", run.Target, err)
	}

	maxSteps := e.cfg.Engine().MaxSteps
	var history []schemas.StepRecord

	for step := 0; step < maxSteps; step++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state, err := e.builder.BuildState(ctx, surface)
		if err != nil {
			return fmt.Errorf("perception cycle %d: %w", step, err)
		}
		state.RunID = run.ID
		e.persistState(ctx, surface, run.ID, state, log)

		decision, err := e.planner.Decide(ctx, objective, state, history)
		if err != nil {
			return fmt.Errorf("planning step %d: %w", step, err)
		}

		switch decision.Action.Type {
		case schemas.ActionDone:
			run.Status = schemas.RunStatusCompleted
			return nil
		case schemas.ActionFail:
			run.Status = schemas.RunStatusFailed
			return fmt.Errorf("planner gave up: %s", decision.Action.Rationale)
		}

		result := e.exec.Execute(ctx, surface, state, decision.Action)
		record := schemas.StepRecord{
			Index:   step,
			StateID: state.StateID,
			Action:  decision.Action,
			Result:  result,
		}
		history = append(history, record)
		run.Steps = step + 1
		if err := e.repo.SaveAction(ctx, run.ID, &record); err != nil {
			log.Warn("recording step failed", zap.Int("step", step), zap.Error(err))
		}

		if decision.ObjectiveComplete {
			run.Status = schemas.RunStatusCompleted
			return nil
		}

		e.settle(ctx, surface, decision.Action, log)
	}

	run.Status = schemas.RunStatusFailed
	return fmt.Errorf("step cap of %d reached without completing the objective", maxSteps)
}

// settle waits out the page after an action. Structure-changing actions get a
// mutation watch so the next cycle starts only after the DOM stops moving or
// clearly moved; the rest get the fixed action delay.
func (e *Engine) settle(ctx context.Context, surface Surface, action schemas.Action, log *zap.Logger) {
	switch action.Type {
	case schemas.ActionClick, schemas.ActionNavigate, schemas.ActionSelect:
		changed, err := e.watcher.WatchForChange(ctx, surface, e.cfg.Mutation().Timeout)
		if err != nil {
			log.Debug("mutation watch failed, continuing", zap.Error(err))
			return
		}
		log.Debug("mutation watch result", zap.Bool("changed", changed))
	default:
		if delay := e.cfg.Engine().ActionDelay; delay > 0 {
			_ = surface.Sleep(ctx, delay)
		}
	}
}

// PerceiveTargets runs one perception cycle per target concurrently, paced by
// the shared navigation limiter. Per-target failures are logged and surface
// as gaps in the result, not as a sweep failure; the returned slice keeps
// target order with nil entries for failed targets.
func (e *Engine) PerceiveTargets(ctx context.Context, targets []string) ([]*schemas.PerceptionState, error) {
	states := make([]*schemas.PerceptionState, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Engine().TargetConcurrency)

	for i, target := range targets {
		g.Go(func() error {
			state, err := e.PerceiveOnce(gctx, target, "")
			if err != nil {
				e.log.Warn("target perception failed",
					zap.String("target", target),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			states[i] = state
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return states, err
	}
	return states, nil
}

// PerceiveOnce opens a session, navigates, runs one perception cycle, and
// persists the result under runID (a fresh run is recorded when runID is
// empty).
func (e *Engine) PerceiveOnce(ctx context.Context, target, runID string) (*schemas.PerceptionState, error) {
	surface, err := e.sessions.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	defer surface.Close(context.WithoutCancel(ctx))

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := surface.Navigate(ctx, target); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", target, err)
	}

	state, err := e.builder.BuildState(ctx, surface)
	if err != nil {
		return nil, fmt.Errorf("perceiving %s: %w", target, err)
	}

	if runID == "" {
		now := time.Now().UTC()
		run := &schemas.Run{
			ID:        uuid.NewString(),
			Target:    target,
			Status:    schemas.RunStatusCompleted,
			StartedAt: now,
			EndedAt:   now,
		}
		if err := e.repo.SaveRun(ctx, run); err != nil {
			e.log.Warn("recording one-shot run failed", zap.Error(err))
		}
		runID = run.ID
	}
	state.RunID = runID
	e.persistState(ctx, surface, runID, state, e.log)
	return state, nil
}

// persistState stores the state with its artifacts. Persistence problems
// never interrupt a cycle; the state remains usable in memory.
func (e *Engine) persistState(ctx context.Context, surface Surface, runID string, state *schemas.PerceptionState, log *zap.Logger) {
	stored := &schemas.StoredState{State: state}

	if html, err := surface.OuterHTML(ctx); err == nil {
		if br, err := dataset.PrepareSnapshot(html, e.cfg.Dataset().SanitizeSnapshots); err == nil {
			stored.SnapshotBr = br
		} else {
			log.Debug("snapshot compression failed", zap.Error(err))
		}
	}
	if e.cfg.Perception().Screenshots {
		if png, err := surface.Screenshot(ctx); err == nil {
			stored.ScreenshotPNG = png
		} else {
			log.Debug("screenshot capture failed", zap.Error(err))
		}
	}

	if err := e.repo.SaveState(ctx, runID, stored); err != nil {
		log.Warn("recording state failed", zap.String("state_id", state.StateID), zap.Error(err))
	}
}
