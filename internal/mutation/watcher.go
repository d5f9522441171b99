// Package mutation decides whether the live document changed enough after an
// action to justify a fresh perception cycle. The signal is deliberately
// coarse: only a relative change in element count counts, so animations and
// attribute churn never trigger a re-extraction.
package mutation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

// Evaluator runs an expression inside the live document and decodes its
// result into out. Promise results are awaited.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, out any) error
}

const (
	defaultThreshold = 0.05
	defaultInterval  = 250 * time.Millisecond
)

// Watcher observes the live document for structural growth or shrinkage.
type Watcher struct {
	threshold float64
	interval  time.Duration
	log       *zap.Logger
}

// NewWatcher wires a watcher from the mutation settings. Out-of-range values
// fall back to the defaults.
func NewWatcher(cfg config.MutationConfig, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Watcher{threshold: threshold, interval: interval, log: log.Named("mutation")}
}

// WatchForChange samples the element count, then watches mutations until the
// relative delta crosses the threshold (true) or the timeout elapses with no
// such change (false). The whole watch is one awaited evaluation in the page;
// the surrounding context gets a grace period beyond the in-page timeout so
// the page side always decides first.
func (w *Watcher) WatchForChange(ctx context.Context, ev Evaluator, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+2*time.Second)
	defer cancel()

	expr := fmt.Sprintf(watchScript, w.threshold, timeout.Milliseconds(), w.interval.Milliseconds())
	var changed bool
	if err := ev.Evaluate(ctx, expr, &changed); err != nil {
		return false, fmt.Errorf("mutation watch evaluation: %w", err)
	}

	w.log.Debug("mutation watch finished",
		zap.Bool("changed", changed),
		zap.Duration("timeout", timeout),
	)
	return changed, nil
}

// watchScript resolves true as soon as the element count drifts past the
// threshold, false when the timeout fires first. The interval recount backs
// up the observer on pages that batch large subtree swaps.
const watchScript = `(() => {
  const threshold = %g;
  const timeoutMs = %d;
  const intervalMs = %d;

  const count = () => document.getElementsByTagName('*').length;
  const base = Math.max(count(), 1);

  return new Promise((resolve) => {
    let finished = false;
    let observer = null;
    let timer = null;
    let poller = null;

    const finish = (changed) => {
      if (finished) return;
      finished = true;
      if (observer) observer.disconnect();
      if (timer) clearTimeout(timer);
      if (poller) clearInterval(poller);
      resolve(changed);
    };

    const check = () => {
      if (Math.abs(count() - base) / base >= threshold) finish(true);
    };

    observer = new MutationObserver(check);
    observer.observe(document.documentElement, {childList: true, subtree: true});
    poller = setInterval(check, intervalMs);
    timer = setTimeout(() => { check(); finish(false); }, timeoutMs);
  });
})()`
