package perception

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/tools/txtar"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/config"
)

func loadPage(t *testing.T, name string) string {
	t.Helper()
	ar, err := txtar.ParseFile(filepath.Join("testdata", "pages.txtar"))
	require.NoError(t, err)
	for _, f := range ar.Files {
		if f.Name == name {
			return string(f.Data)
		}
	}
	t.Fatalf("fixture %q not found in pages.txtar", name)
	return ""
}

func newTestExtractor(maxElements int) *Extractor {
	return NewExtractor(config.PerceptionConfig{
		MaxElements:    maxElements,
		VisibleTextCap: 3000,
		JSHints:        true,
	}, zap.NewNop())
}

func TestExtract_Deterministic(t *testing.T) {
	e := newTestExtractor(100)
	page := loadPage(t, "login.html")

	first, _ := e.Extract(page)
	second, _ := e.Extract(page)

	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("repeated extraction diverged (-first +second):\n%s", diff)
	}
}

func TestExtract_EveryRecordHasIdentity(t *testing.T) {
	e := newTestExtractor(100)
	for _, page := range []string{"login.html", "dialog.html", "portal.html"} {
		t.Run(page, func(t *testing.T) {
			records, _ := e.Extract(loadPage(t, page))
			require.NotEmpty(t, records)
			for _, rec := range records {
				assert.True(t, rec.HasIdentity(), "bid %d (%s) retained without identity", rec.Bid, rec.Tag)
			}
		})
	}
}

func TestExtract_RankingAndBidAssignment(t *testing.T) {
	e := newTestExtractor(100)
	records, skipped := e.Extract(loadPage(t, "login.html"))

	require.Len(t, records, 9)
	assert.Zero(t, skipped)

	// Bids follow document discovery order; the returned slice is ranked by
	// score with discovery order breaking ties.
	gotBids := make([]int, 0, len(records))
	for _, rec := range records {
		gotBids = append(gotBids, rec.Bid)
	}
	assert.Equal(t, []int{3, 1, 7, 5, 2, 4, 8, 9, 6}, gotBids)

	username := records[0]
	assert.Equal(t, "input", username.Tag)
	assert.Equal(t, 80, username.Score)
	require.NotNil(t, username.Label)
	assert.Equal(t, "Username", *username.Label)
	require.NotNil(t, username.Placeholder)
	assert.Equal(t, "you@example.com", *username.Placeholder)
	require.NotNil(t, username.InputType)
	assert.Equal(t, "text", *username.InputType)

	search := findBid(t, records, 8)
	assert.Equal(t, "button", search.Tag)
	require.NotNil(t, search.AriaLabel)
	assert.Equal(t, "Search", *search.AriaLabel)
	require.NotNil(t, search.JSHint)
	assert.Equal(t, "openSearch()", *search.JSHint)

	csrf := findBid(t, records, 6)
	assert.False(t, csrf.Visible)
	assert.Equal(t, 25, csrf.Score)
	require.NotNil(t, csrf.Text)
	assert.Equal(t, "tok123", *csrf.Text)
}

func findBid(t *testing.T, records []schemas.ElementRecord, bid int) schemas.ElementRecord {
	t.Helper()
	for _, rec := range records {
		if rec.Bid == bid {
			return rec
		}
	}
	t.Fatalf("bid %d not in extraction result", bid)
	return schemas.ElementRecord{}
}

func TestExtract_TruncatesToRankedTop(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 120; i++ {
		fmt.Fprintf(&b, `<button id="b%d">Go %d</button>`, i, i)
	}
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, `<button id="d%d" disabled>Stop %d</button>`, i, i)
	}
	b.WriteString("</body></html>")

	e := newTestExtractor(100)
	records, _ := e.Extract(b.String())

	require.Len(t, records, 100)
	for _, rec := range records {
		assert.False(t, rec.Disabled, "a disabled control outranked an enabled one")
	}
	// Equal scores keep discovery order after the stable sort.
	assert.Equal(t, 1, records[0].Bid)
	assert.Equal(t, 100, records[99].Bid)
}

func TestExtract_DegradedInput(t *testing.T) {
	e := newTestExtractor(100)

	t.Run("empty snapshot", func(t *testing.T) {
		records, skipped := e.Extract("   \n\t")
		assert.Empty(t, records)
		assert.Zero(t, skipped)
	})

	t.Run("no candidates", func(t *testing.T) {
		records, _ := e.Extract("<html><body><p>plain prose only</p></body></html>")
		assert.Empty(t, records)
	})

	t.Run("editable node without identity dropped", func(t *testing.T) {
		records, _ := e.Extract(`<html><body><div contenteditable=""></div></body></html>`)
		assert.Empty(t, records)
	})
}

func TestExtract_HandlerAndRoleCandidates(t *testing.T) {
	e := newTestExtractor(100)

	t.Run("onclick div", func(t *testing.T) {
		records, _ := e.Extract(`<html><body><div onclick="go()">Continue</div></body></html>`)
		require.Len(t, records, 1)
		rec := records[0]
		assert.Equal(t, "div", rec.Tag)
		assert.Equal(t, 15, rec.Score)
		require.NotNil(t, rec.JSHint)
		assert.Equal(t, "go()", *rec.JSHint)
	})

	t.Run("portal menu items", func(t *testing.T) {
		records, _ := e.Extract(loadPage(t, "portal.html"))
		var menuItems []schemas.ElementRecord
		for _, rec := range records {
			if rec.Role != nil && *rec.Role == "menuitem" {
				menuItems = append(menuItems, rec)
			}
		}
		require.Len(t, menuItems, 2)
		for _, rec := range menuItems {
			require.NotNil(t, rec.JSHint)
			assert.Equal(t, "nav.open()", *rec.JSHint)
		}
	})
}

func FuzzExtract(f *testing.F) {
	f.Add("<html><body><button id=a>Go</button></body></html>")
	f.Add(`<div onclick="x()">hi</div>`)
	f.Add("<<<not html>>>")
	f.Add("")
	f.Add(`<label for="x">L</label><input id="x"><input id="x">`)

	e := NewExtractor(config.PerceptionConfig{MaxElements: 50, VisibleTextCap: 500, JSHints: true}, zap.NewNop())
	f.Fuzz(func(t *testing.T, page string) {
		records, _ := e.Extract(page)
		if len(records) > 50 {
			t.Fatalf("truncation bound violated: %d records", len(records))
		}
		seen := make(map[int]bool, len(records))
		for _, rec := range records {
			if !rec.HasIdentity() {
				t.Fatalf("record without identity retained: %+v", rec)
			}
			if seen[rec.Bid] {
				t.Fatalf("duplicate bid %d", rec.Bid)
			}
			seen[rec.Bid] = true
		}
	})
}
