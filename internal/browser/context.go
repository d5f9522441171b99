// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is additionally canceled
// when secondary is canceled. chromedp carries its connection state in context
// values, so the session context must stay the value parent while operational
// deadlines arrive from the caller's context.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but drops the parent's
// deadline and cancellation signal.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// Detach returns a context that keeps ctx's values, including the CDP target,
// but is never canceled by ctx. Cleanup work that must outlive the operation
// that triggered it runs on a detached context.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
