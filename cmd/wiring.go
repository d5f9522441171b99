package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/browser"
	"github.com/xkilldash9x/percept-cli/internal/config"
	"github.com/xkilldash9x/percept-cli/internal/dataset"
	"github.com/xkilldash9x/percept-cli/internal/engine"
	"github.com/xkilldash9x/percept-cli/internal/executor"
	"github.com/xkilldash9x/percept-cli/internal/mutation"
	"github.com/xkilldash9x/percept-cli/internal/observability"
	"github.com/xkilldash9x/percept-cli/internal/perception"
	"github.com/xkilldash9x/percept-cli/internal/planner"
)

const shutdownTimeout = 15 * time.Second

// components bundles the wired engine with everything that needs teardown.
type components struct {
	Engine  *engine.Engine
	Repo    schemas.Repository
	Manager *browser.Manager
}

// Shutdown closes the browser and the dataset. Safe on partially built
// component sets.
func (c *components) Shutdown(ctx context.Context) {
	log := observability.GetLogger()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if c.Manager != nil {
		if err := c.Manager.Shutdown(shutdownCtx); err != nil {
			log.Warn("Browser shutdown reported an error.", zap.Error(err))
		}
	}
	if c.Repo != nil {
		if err := c.Repo.Close(); err != nil {
			log.Warn("Dataset close reported an error.", zap.Error(err))
		}
	}
}

// sessionFactory narrows the browser manager to the engine's factory
// contract.
type sessionFactory struct {
	m *browser.Manager
}

func (f sessionFactory) NewSession(ctx context.Context) (engine.Surface, error) {
	return f.m.NewSession(ctx)
}

// buildComponents wires the full stack. withPlanner controls whether the
// model client is constructed; perception-only commands skip it and never
// need an API key.
func buildComponents(ctx context.Context, cfg *config.Config, withPlanner bool) (*components, error) {
	log := observability.GetLogger()

	repo, err := dataset.New(ctx, cfg.DatasetConfig, log)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}

	manager, err := browser.NewManager(ctx, cfg.BrowserConfig, log)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	c := &components{Repo: repo, Manager: manager}

	var plan engine.Planner
	if withPlanner {
		client, err := planner.NewGeminiClient(ctx, cfg.LLMConfig, log)
		if err != nil {
			c.Shutdown(ctx)
			return nil, fmt.Errorf("initializing model client: %w", err)
		}
		plan = planner.New(client, cfg.LLMConfig, log)
	}

	eng, err := engine.New(
		cfg,
		sessionFactory{m: manager},
		perception.NewStateBuilder(cfg.PerceptionConfig, log),
		plan,
		executor.New(log),
		mutation.NewWatcher(cfg.MutationConfig, log),
		repo,
		log,
	)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("wiring engine: %w", err)
	}
	c.Engine = eng
	return c, nil
}
