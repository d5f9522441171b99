package mutation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
	"github.com/xkilldash9x/percept-cli/internal/mutation"
)

type scriptedEvaluator struct {
	gotExpr string
	answer  bool
	err     error
}

func (s *scriptedEvaluator) Evaluate(_ context.Context, expr string, out any) error {
	s.gotExpr = expr
	if s.err != nil {
		return s.err
	}
	if p, ok := out.(*bool); ok {
		*p = s.answer
	}
	return nil
}

func newWatcher() *mutation.Watcher {
	return mutation.NewWatcher(config.MutationConfig{
		Threshold: 0.05,
		Timeout:   3 * time.Second,
		Interval:  250 * time.Millisecond,
	}, zap.NewNop())
}

func TestWatchForChange_ReportsChange(t *testing.T) {
	ev := &scriptedEvaluator{answer: true}
	changed, err := newWatcher().WatchForChange(context.Background(), ev, 2*time.Second)

	require.NoError(t, err)
	assert.True(t, changed)

	assert.Contains(t, ev.gotExpr, "MutationObserver")
	assert.Contains(t, ev.gotExpr, "const threshold = 0.05;")
	assert.Contains(t, ev.gotExpr, "const timeoutMs = 2000;")
	assert.Contains(t, ev.gotExpr, "const intervalMs = 250;")
}

func TestWatchForChange_TimeoutIsFalseNotError(t *testing.T) {
	ev := &scriptedEvaluator{answer: false}
	changed, err := newWatcher().WatchForChange(context.Background(), ev, 500*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWatchForChange_TimeoutRunsFinalComparison(t *testing.T) {
	// A slow interval must not blind the watch: the timeout handler recounts
	// once before it resolves false, so a change that landed between polls is
	// still reported.
	ev := &scriptedEvaluator{answer: true}
	w := mutation.NewWatcher(config.MutationConfig{
		Threshold: 0.05,
		Interval:  10 * time.Second,
	}, zap.NewNop())

	changed, err := w.WatchForChange(context.Background(), ev, time.Second)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Contains(t, ev.gotExpr, "setTimeout(() => { check(); finish(false); }, timeoutMs)")
}

func TestWatchForChange_EvaluateFailure(t *testing.T) {
	ev := &scriptedEvaluator{err: errors.New("target detached")}
	changed, err := newWatcher().WatchForChange(context.Background(), ev, time.Second)

	require.Error(t, err)
	assert.False(t, changed)
	assert.Contains(t, err.Error(), "mutation watch")
}

func TestNewWatcher_ClampsBadSettings(t *testing.T) {
	w := mutation.NewWatcher(config.MutationConfig{Threshold: -3, Interval: 0}, zap.NewNop())
	ev := &scriptedEvaluator{answer: false}

	_, err := w.WatchForChange(context.Background(), ev, time.Second)
	require.NoError(t, err)
	assert.Contains(t, ev.gotExpr, "const threshold = 0.05;")
	assert.Contains(t, ev.gotExpr, "const intervalMs = 250;")
	assert.False(t, strings.Contains(ev.gotExpr, "-3"))
}
