package perception

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

// fakeSurface is a scripted PageSurface: fixed snapshot and metadata, canned
// answer for the binding evaluation.
type fakeSurface struct {
	html     string
	htmlErr  error
	url      string
	title    string
	lang     string
	bindRes  string
	bindErr  error
	gotBind  string
	bindRuns int
}

func (f *fakeSurface) OuterHTML(context.Context) (string, error) { return f.html, f.htmlErr }
func (f *fakeSurface) URL(context.Context) (string, error)       { return f.url, nil }
func (f *fakeSurface) Title(context.Context) (string, error)     { return f.title, nil }

func (f *fakeSurface) Evaluate(_ context.Context, expr string, out any) error {
	if strings.Contains(expr, "documentElement.lang") {
		if p, ok := out.(*string); ok {
			*p = f.lang
		}
		return nil
	}
	f.bindRuns++
	f.gotBind = expr
	if f.bindErr != nil {
		return f.bindErr
	}
	return json.Unmarshal([]byte(f.bindRes), out)
}

func newTestBuilder() *StateBuilder {
	return NewStateBuilder(config.PerceptionConfig{
		MaxElements:    100,
		VisibleTextCap: 3000,
		JSHints:        true,
	}, zap.NewNop())
}

func TestBuildState_FullCycle(t *testing.T) {
	surface := &fakeSurface{
		html:    loadPage(t, "login.html"),
		url:     "https://acme.test/login",
		title:   "Acme Sign-in",
		lang:    "en",
		bindRes: `{"bound": 9}`,
	}

	state, err := newTestBuilder().BuildState(context.Background(), surface)
	require.NoError(t, err)

	_, err = uuid.Parse(state.StateID)
	assert.NoError(t, err, "state id must be a uuid")
	assert.Equal(t, "https://acme.test/login", state.URL)
	assert.Equal(t, "Acme Sign-in", state.Title)
	assert.Equal(t, "en", state.Lang)
	assert.WithinDuration(t, time.Now().UTC(), state.CapturedAt, time.Minute)

	require.Len(t, state.Elements, 9)
	for _, rec := range state.Elements {
		assert.NotEmpty(t, rec.Selectors, "bid %d has no strategies", rec.Bid)
	}
	assert.Contains(t, state.VisibleText, "Sign in to Acme")
	assert.Equal(t, 1, surface.bindRuns, "one injection pass per cycle")
	assert.Contains(t, surface.gotBind, `"data-bid"`)
	assert.Empty(t, state.Diagnostics.UnboundBids)
}

func TestBuildState_PartialBindRecorded(t *testing.T) {
	surface := &fakeSurface{
		html:    loadPage(t, "login.html"),
		bindRes: `{"bound": 8, "unmatched": [{"bid": 8, "reason": "no-match"}], "invalid_selectors": 1}`,
	}

	state, err := newTestBuilder().BuildState(context.Background(), surface)
	require.NoError(t, err)
	assert.Equal(t, []int{8}, state.Diagnostics.UnboundBids)
	assert.Equal(t, 1, state.Diagnostics.InvalidSelectors)
}

func TestBuildState_BindFailureFallsBackToSnapshot(t *testing.T) {
	surface := &fakeSurface{
		html:    loadPage(t, "login.html"),
		bindErr: errors.New("execution blocked by page policy"),
	}

	state, err := newTestBuilder().BuildState(context.Background(), surface)
	require.NoError(t, err, "a binding failure degrades the cycle, it does not abort it")

	require.Len(t, state.Elements, 9)
	assert.Equal(t, 1, surface.bindRuns, "the live injection is still attempted once")

	// Every login.html element carries a selector that resolves uniquely in
	// the snapshot, so the static pass leaves nothing unbound.
	assert.Empty(t, state.Diagnostics.UnboundBids)
	for _, rec := range state.Elements {
		assert.Nil(t, rec.Center, "no viewport geometry without a live bind")
	}
	assert.NotEmpty(t, state.VisibleText)
}

func TestBuildState_SnapshotFailureIsFatal(t *testing.T) {
	surface := &fakeSurface{htmlErr: errors.New("target crashed")}

	state, err := newTestBuilder().BuildState(context.Background(), surface)
	require.Error(t, err)
	assert.Nil(t, state)
	assert.Contains(t, err.Error(), "document snapshot")
}

func TestBuildState_CompactRendering(t *testing.T) {
	surface := &fakeSurface{
		html:    loadPage(t, "login.html"),
		bindRes: `{"bound": 9}`,
	}
	state, err := newTestBuilder().BuildState(context.Background(), surface)
	require.NoError(t, err)

	compact := state.CompactString()
	lines := strings.Split(compact, "\n")
	assert.Len(t, lines, len(state.Elements))
	assert.Contains(t, compact, `aria-label="Search"`)
	assert.True(t, strings.HasPrefix(lines[0], "["), "compact lines start with the bid")
}
