// internal/browser/manager.go
// Package browser owns the headless Chrome lifecycle. A Manager launches one
// browser process and hands out Sessions, each backed by an isolated browser
// context (its own cookie jar and storage) with a single tab. Sessions
// unregister themselves when closed; Shutdown tears down whatever is left and
// then the process itself.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

const (
	shutdownTimeout = 15 * time.Second
	disposeTimeout  = 10 * time.Second
)

// Manager supervises a single browser process and the sessions opened on it.
type Manager struct {
	cfg config.BrowserConfig
	log *zap.Logger

	allocCancel context.CancelFunc

	// controllerCtx is the chromedp context attached to the browser itself.
	// Target lifecycle commands are browser-scoped and run against it, not
	// against any page session.
	controllerCtx    context.Context
	controllerCancel context.CancelFunc

	// Target creation is serialized; concurrent CreateTarget calls against
	// one browser are racy on some Chrome builds.
	createMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager launches the browser process and returns a Manager supervising
// it. Launch failures surface here rather than on first use. The process
// lives until Shutdown is called or ctx is canceled.
func NewManager(ctx context.Context, cfg config.BrowserConfig, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, DefaultAllocatorOptions(cfg)...)
	controllerCtx, controllerCancel := chromedp.NewContext(allocCtx)

	// The first Run starts the process and establishes the CDP connection.
	if err := chromedp.Run(controllerCtx); err != nil {
		controllerCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Browser process launched.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight),
	)

	return &Manager{
		cfg:              cfg,
		log:              log,
		allocCancel:      allocCancel,
		controllerCtx:    controllerCtx,
		controllerCancel: controllerCancel,
		sessions:         make(map[string]*Session),
	}, nil
}

// browserExecCtx returns a context that executes CDP commands against the
// browser target. chromedp's own Run executes against the page session, which
// rejects browser-scoped commands like Target.createBrowserContext.
func (m *Manager) browserExecCtx() context.Context {
	c := chromedp.FromContext(m.controllerCtx)
	return cdp.WithExecutor(m.controllerCtx, c.Browser)
}

// NewSession opens an isolated browser context with a fresh blank tab and
// returns the Session attached to it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("browser manager is shut down")
	}
	m.mu.Unlock()

	m.createMu.Lock()
	defer m.createMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled before session creation: %w", err)
	}

	execCtx := m.browserExecCtx()

	browserContextID, err := target.CreateBrowserContext().Do(execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(execCtx)
	if err != nil {
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	sessionCtx, sessionCancel := chromedp.NewContext(m.controllerCtx, chromedp.WithTargetID(targetID))

	// Attach to the new target before handing the session out.
	if err := chromedp.Run(sessionCtx); err != nil {
		sessionCancel()
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("failed to attach to target: %w", err)
	}

	s := newSession(sessionCtx, sessionCancel, browserContextID, m.cfg, m.log)
	s.onClose = func() { m.unregisterSession(s) }

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.log.Debug("Session created.",
		zap.String("session_id", s.ID()),
		zap.String("browser_context_id", string(browserContextID)),
	)
	return s, nil
}

// unregisterSession drops the session from the registry and disposes its
// browser context. Called exactly once per session, from Session.Close.
func (m *Manager) unregisterSession(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	m.disposeBrowserContext(s.browserContextID)
}

func (m *Manager) disposeBrowserContext(id cdp.BrowserContextID) {
	if id == "" || m.controllerCtx.Err() != nil {
		return
	}

	disposeCtx, cancel := context.WithTimeout(m.browserExecCtx(), disposeTimeout)
	defer cancel()

	if err := target.DisposeBrowserContext(id).Do(disposeCtx); err != nil {
		if m.controllerCtx.Err() == nil {
			m.log.Warn("Failed to dispose browser context; it may be orphaned.",
				zap.String("browser_context_id", string(id)), zap.Error(err))
		}
		return
	}
	m.log.Debug("Disposed browser context.", zap.String("browser_context_id", string(id)))
}

// Shutdown closes all open sessions and stops the browser process. It blocks
// until the process exits, the context is canceled, or the shutdown timeout
// elapses. Safe to call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	m.log.Info("Shutting down browser manager.", zap.Int("open_sessions", len(open)))

	for _, s := range open {
		if err := s.Close(ctx); err != nil {
			m.log.Warn("Error closing session during shutdown.",
				zap.String("session_id", s.ID()), zap.Error(err))
		}
	}

	// chromedp.Cancel blocks until the browser process exits, so bound it.
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(m.controllerCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(shutdownTimeout):
		err = fmt.Errorf("browser did not exit within %v", shutdownTimeout)
	}

	m.controllerCancel()
	m.allocCancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("browser shutdown: %w", err)
	}
	return nil
}
