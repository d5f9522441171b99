package resolve_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/resolve"
)

const checkoutPage = `<html><body>
  <form id="checkout">
    <input name="amount">
    <input name="amount">
    <button id="pay">Pay now</button>
  </form>
</body></html>`

func parseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func entry(bid int, selectors ...string) schemas.BindEntry {
	return schemas.BindEntry{Bid: bid, Selectors: selectors}
}

func TestResolve_MostSpecificWins(t *testing.T) {
	doc := parseDoc(t, checkoutPage)
	report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, "#pay", "button"),
	}})

	assert.Equal(t, 1, report.Bound)
	require.Len(t, report.Bindings, 1)
	assert.Equal(t, "#pay", report.Bindings[0].Selector)
	assert.Empty(t, report.Unmatched)
}

func TestResolve_PositionalDisambiguation(t *testing.T) {
	doc := parseDoc(t, checkoutPage)
	report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, `form > input[name="amount"]:nth-of-type(1)`, `input[name="amount"]`),
		entry(2, `form > input[name="amount"]:nth-of-type(2)`, `input[name="amount"]`),
	}})

	assert.Equal(t, 2, report.Bound)
	require.Len(t, report.Bindings, 2)
	assert.Contains(t, report.Bindings[0].Selector, "nth-of-type(1)")
	assert.Contains(t, report.Bindings[1].Selector, "nth-of-type(2)")
	assert.Empty(t, report.Unmatched)
}

func TestResolve_FirstWriterWins(t *testing.T) {
	doc := parseDoc(t, checkoutPage)
	report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, "#pay"),
		entry(2, "#pay"),
	}})

	assert.Equal(t, 1, report.Bound)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, 2, report.Unmatched[0].Bid)
	assert.Equal(t, schemas.UnmatchedAllClaimed, report.Unmatched[0].Reason)
	assert.Equal(t, []string{"#pay"}, report.Unmatched[0].Tried)
}

func TestResolve_AmbiguousSelectorNeverBinds(t *testing.T) {
	doc := parseDoc(t, checkoutPage)
	report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, `input[name="amount"]`),
	}})

	assert.Zero(t, report.Bound)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, schemas.UnmatchedAmbiguous, report.Unmatched[0].Reason)
}

func TestResolve_ReportsMisses(t *testing.T) {
	doc := parseDoc(t, checkoutPage)

	t.Run("no match", func(t *testing.T) {
		report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
			entry(9, "#missing"),
		}})
		require.Len(t, report.Unmatched, 1)
		assert.Equal(t, schemas.UnmatchedNoMatch, report.Unmatched[0].Reason)
		assert.Equal(t, []string{"#missing"}, report.Unmatched[0].Tried)
	})

	t.Run("no selectors", func(t *testing.T) {
		report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
			entry(9),
		}})
		require.Len(t, report.Unmatched, 1)
		assert.Equal(t, schemas.UnmatchedNoSelectors, report.Unmatched[0].Reason)
	})

	t.Run("invalid selector skipped and counted", func(t *testing.T) {
		report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
			entry(1, "[[[", "#pay"),
		}})
		assert.Equal(t, 1, report.InvalidSelectors)
		assert.Equal(t, 1, report.Bound)
		require.Len(t, report.Bindings, 1)
		assert.Equal(t, "#pay", report.Bindings[0].Selector)
	})
}

func TestResolve_RespectsExistingMarkers(t *testing.T) {
	marked := `<html><body>
		<button id="pay" data-bid="1">Pay now</button>
		<a id="help" data-bid="junk">Help</a>
	</body></html>`
	doc := parseDoc(t, marked)

	report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, "#pay"),   // its bid is already on the page
		entry(2, "#pay"),   // unique match, but the node is claimed
		entry(3, "#help"),  // non-numeric marker still claims its node
	}})

	assert.Equal(t, 1, report.AlreadyBound)
	assert.Zero(t, report.Bound)
	require.Len(t, report.Unmatched, 2)
	for _, u := range report.Unmatched {
		assert.Equal(t, schemas.UnmatchedAllClaimed, u.Reason, "bid %d", u.Bid)
	}
}

func TestResolve_RepeatPassIsIdempotent(t *testing.T) {
	// First pass on a clean document decides the bindings; the same request
	// against a document already carrying them must change nothing.
	marked := `<html><body>
	  <form id="checkout">
	    <input name="amount" data-bid="1">
	    <input name="amount" data-bid="2">
	    <button id="pay" data-bid="3">Pay now</button>
	  </form>
	</body></html>`
	doc := parseDoc(t, marked)

	report := resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, `form > input[name="amount"]:nth-of-type(1)`),
		entry(2, `form > input[name="amount"]:nth-of-type(2)`),
		entry(3, "#pay"),
	}})

	assert.Zero(t, report.Bound)
	assert.Equal(t, 3, report.AlreadyBound)
	assert.Empty(t, report.Unmatched)
}

func TestResolve_NeverMutatesDocument(t *testing.T) {
	doc := parseDoc(t, checkoutPage)

	var before bytes.Buffer
	require.NoError(t, html.Render(&before, doc))

	resolve.Resolve(doc, schemas.BindRequest{Entries: []schemas.BindEntry{
		entry(1, "#pay"),
		entry(2, `input[name="amount"]`),
	}})

	var after bytes.Buffer
	require.NoError(t, html.Render(&after, doc))
	assert.Equal(t, before.String(), after.String())
}
