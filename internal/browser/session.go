// internal/browser/session.go
// A Session is one isolated tab: the perception cycle reads page state
// through it and the executor drives interactions through it. Methods manage
// their own operational timeouts so a stuck action cancels itself without
// tearing down the session.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

// Session wraps a chromedp tab context with lifecycle management and the
// page-level operations the perception and execution layers need.
type Session struct {
	id               string
	ctx              context.Context
	cancel           context.CancelFunc
	browserContextID cdp.BrowserContextID
	cfg              config.BrowserConfig
	logger           *zap.Logger

	onClose func()

	mu     sync.Mutex
	closed bool
}

func newSession(
	ctx context.Context,
	cancel context.CancelFunc,
	browserContextID cdp.BrowserContextID,
	cfg config.BrowserConfig,
	logger *zap.Logger,
) *Session {
	id := uuid.New().String()
	return &Session{
		id:               id,
		ctx:              ctx,
		cancel:           cancel,
		browserContextID: browserContextID,
		cfg:              cfg,
		logger:           logger.With(zap.String("session_id", id)),
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Context returns the session's chromedp context. It is canceled when the
// session closes.
func (s *Session) Context() context.Context { return s.ctx }

// RunActions executes chromedp actions so that they respect both the session
// lifetime and the caller's operational context.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the page to settle: the document must
// reach readiness and the configured post-load wait must elapse. A settle
// failure on an otherwise successful navigation is logged, not returned.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating session.", zap.String("url", url))

	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	if err := s.RunActions(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v: %w", url, navTimeout, navCtx.Err())
		}
		if ctx.Err() != nil || s.ctx.Err() != nil {
			return fmt.Errorf("navigation canceled: %w", err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if err := s.stabilize(ctx); err != nil {
		if ctx.Err() != nil || s.ctx.Err() != nil {
			return err
		}
		s.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}

	s.logger.Debug("Navigation and stabilization complete.", zap.String("url", url))
	return nil
}

// stabilize waits for document readiness, then sits out the configured
// post-load quiet period so late scripts can finish rendering.
func (s *Session) stabilize(ctx context.Context) error {
	stabTimeout := s.cfg.StabilizeTimeout
	if stabTimeout <= 0 {
		stabTimeout = 10 * time.Second
	}
	stabCtx, cancel := context.WithTimeout(ctx, stabTimeout)
	defer cancel()

	if err := s.RunActions(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	if wait := s.cfg.PostLoadWait; wait > 0 {
		return s.Sleep(ctx, wait)
	}
	return nil
}

// OuterHTML captures the serialized DOM of the current document.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var html string
	if err := s.RunActions(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture DOM snapshot: %w", err)
	}
	return html, nil
}

// URL reports the document's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var loc string
	if err := s.RunActions(opCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Title reports the document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var title string
	if err := s.RunActions(opCtx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read title: %w", err)
	}
	return title, nil
}

// Evaluate runs expr in the page and decodes its settled value into out.
// Promises are awaited, so expressions may return thenables; out may be nil
// when the result does not matter.
func (s *Session) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		var sink json.RawMessage
		out = &sink
	}
	return s.RunActions(ctx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
}

// Screenshot captures the full page as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var buf []byte
	if err := s.RunActions(opCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// Click scrolls the element matching selector into view, waits for it to be
// visible and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))

	opCtx, opCancel := context.WithTimeout(ctx, 30*time.Second)
	defer opCancel()

	err := s.RunActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("click timed out for selector %q: %w", selector, opCtx.Err())
		}
		return fmt.Errorf("click failed for selector %q: %w", selector, err)
	}
	return nil
}

// ClickAt dispatches a click at viewport coordinates. Used as the last-resort
// fallback when no selector resolves to the target element.
func (s *Session) ClickAt(ctx context.Context, x, y float64) error {
	s.logger.Debug("Clicking at coordinates.", zap.Float64("x", x), zap.Float64("y", y))

	opCtx, opCancel := context.WithTimeout(ctx, 10*time.Second)
	defer opCancel()

	if err := s.RunActions(opCtx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("coordinate click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// Type clears the element matching selector and types text into it. Clearing
// goes through the DOM directly and dispatches input/change events so
// framework-bound fields pick up the reset before the keystrokes arrive.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.logger.Debug("Typing into element.", zap.String("selector", selector), zap.Int("text_length", len(text)))

	// Long inputs key in slowly; scale the budget with the payload.
	timeout := 45*time.Second + time.Duration(float64(len(text))/5.0)*time.Second
	if timeout > 3*time.Minute {
		timeout = 3 * time.Minute
	}
	opCtx, opCancel := context.WithTimeout(ctx, timeout)
	defer opCancel()

	jsClear := fmt.Sprintf(`(function(selector) {
		const el = document.querySelector(selector);
		if (!el) return false;
		if (el.disabled || el.readOnly) return false;
		try {
			el.value = "";
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
		} catch (e) {
			return false;
		}
		return true;
	})(%s)`, jsonEncode(selector))

	var cleared bool
	err := s.RunActions(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(jsClear, &cleared, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("type preparation timed out for selector %q: %w", selector, opCtx.Err())
		}
		return fmt.Errorf("type preparation failed for selector %q: %w", selector, err)
	}
	if !cleared {
		return fmt.Errorf("element %q is not typeable (missing, disabled or readonly)", selector)
	}

	if err := s.RunActions(opCtx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("typing timed out for selector %q: %w", selector, opCtx.Err())
		}
		return fmt.Errorf("typing failed for selector %q: %w", selector, err)
	}
	return nil
}

// SendKeys dispatches keystrokes to whatever element currently holds focus.
// Paired with ClickAt when driving an element that no selector reaches.
func (s *Session) SendKeys(ctx context.Context, text string) error {
	opCtx, opCancel := context.WithTimeout(ctx, 30*time.Second)
	defer opCancel()

	if err := s.RunActions(opCtx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("key dispatch failed: %w", err)
	}
	return nil
}

// SelectOption chooses an option inside the select matching selector. The
// wanted option is matched by value first, then by visible text. Setting the
// value through the DOM and dispatching events is more reliable for selects
// than synthesized keyboard input.
func (s *Session) SelectOption(ctx context.Context, selector, option string) error {
	s.logger.Debug("Selecting option.", zap.String("selector", selector), zap.String("option", option))

	opCtx, opCancel := context.WithTimeout(ctx, 15*time.Second)
	defer opCancel()

	jsSelect := fmt.Sprintf(`(function(selector, wanted) {
		const el = document.querySelector(selector);
		if (!el || el.tagName !== 'SELECT') return false;
		const options = Array.from(el.options);
		const match = options.find(o => o.value === wanted) ||
			options.find(o => (o.textContent || '').trim() === wanted) ||
			options.find(o => (o.textContent || '').trim().toLowerCase() === wanted.toLowerCase());
		if (!match) return false;
		el.value = match.value;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})(%s, %s)`, jsonEncode(selector), jsonEncode(option))

	var selected bool
	err := s.RunActions(opCtx, chromedp.Evaluate(jsSelect, &selected, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		return fmt.Errorf("select failed for selector %q: %w", selector, err)
	}
	if !selected {
		return fmt.Errorf("no option matching %q in select %q", option, selector)
	}
	return nil
}

// ScrollPage scrolls the page in the given direction: "up", "down", "top" or
// "bottom".
func (s *Session) ScrollPage(ctx context.Context, direction string) error {
	var script string
	switch strings.ToLower(direction) {
	case "down":
		script = `window.scrollBy({top: window.innerHeight * 0.8, behavior: 'auto'});`
	case "up":
		script = `window.scrollBy({top: -window.innerHeight * 0.8, behavior: 'auto'});`
	case "bottom":
		script = `window.scrollTo({top: document.body.scrollHeight, behavior: 'auto'});`
	case "top":
		script = `window.scrollTo({top: 0, behavior: 'auto'});`
	default:
		return fmt.Errorf("invalid scroll direction: %s (supported: up, down, top, bottom)", direction)
	}

	opCtx, opCancel := context.WithTimeout(ctx, 10*time.Second)
	defer opCancel()

	if err := s.Evaluate(opCtx, script, nil); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Sleep pauses for d, respecting both the caller's context and the session
// lifetime.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return s.RunActions(ctx, chromedp.Sleep(d))
}

// InjectScriptPersistently registers source to run in every new document of
// this session, surviving navigations. The returned identifier can be used
// to remove the script later.
func (s *Session) InjectScriptPersistently(ctx context.Context, source string) (page.ScriptIdentifier, error) {
	var id page.ScriptIdentifier
	err := s.RunActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = page.AddScriptToEvaluateOnNewDocument(source).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("persistent script injection failed: %w", err)
	}
	return id, nil
}

// ExposeFunc binds fn as window.<name> in the page, callable from page
// scripts. Arguments arrive JSON-encoded.
func (s *Session) ExposeFunc(ctx context.Context, name string, fn chromedp.ExposeFunc) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	if err := chromedp.Expose(runCtx, name, fn); err != nil {
		return fmt.Errorf("exposing function %q failed: %w", name, err)
	}
	return nil
}

// Close cancels the session context and hands the tab back to the manager
// for disposal. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// jsonEncode safely embeds a Go value as a literal in injected JavaScript.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
