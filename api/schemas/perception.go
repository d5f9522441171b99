package schemas

import (
	"fmt"
	"strings"
	"time"
)

// -- Perception Schemas --

// ElementRecord describes one interactive element perceived in a page
// snapshot. Optional attributes are pointers; nil means the attribute was
// absent from the element. A record is only retained when at least one
// identifying attribute (Text, AriaLabel, Placeholder, HTMLID, Name, Role,
// TestID) is present.
type ElementRecord struct {
	// Bid is the perception-scoped numeric identity, assigned sequentially
	// from 1 in document discovery order after the identity filter. Bids are
	// not stable across perception passes.
	Bid int `json:"bid"`

	Tag  string  `json:"tag"`
	Role *string `json:"role,omitempty"`

	Text        *string `json:"text,omitempty"`
	AriaLabel   *string `json:"aria_label,omitempty"`
	Placeholder *string `json:"placeholder,omitempty"`
	HTMLID      *string `json:"html_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	TestID      *string `json:"test_id,omitempty"`
	Href        *string `json:"href,omitempty"`
	InputType   *string `json:"input_type,omitempty"`
	ValueText   *string `json:"value_text,omitempty"`
	Label       *string `json:"label,omitempty"`
	JSHint      *string `json:"js_hint,omitempty"`

	Disabled bool `json:"disabled"`
	ReadOnly bool `json:"read_only"`
	Visible  bool `json:"visible"`
	Editable bool `json:"editable"`

	ClassList  []string `json:"class_list,omitempty"`
	Position   int      `json:"position"`
	ParentTag  *string  `json:"parent_tag,omitempty"`
	ParentRole *string  `json:"parent_role,omitempty"`

	// Center is the element's viewport center captured after live binding,
	// the anchor for the coordinate fallback of the executor. Nil when the
	// pass was static or the element had no box.
	Center *Point `json:"center,omitempty"`

	// Score is the ranking priority. Equal scores keep discovery order, which
	// the bid sequence itself encodes.
	Score int `json:"score"`

	// Selectors holds the ordered resolution strategies, most specific first.
	Selectors []string `json:"selectors"`
}

// Point is a viewport coordinate pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HasIdentity reports whether the record satisfies the identity requirement
// for retention.
func (e *ElementRecord) HasIdentity() bool {
	for _, p := range []*string{e.Text, e.AriaLabel, e.Placeholder, e.HTMLID, e.Name, e.Role, e.TestID} {
		if p != nil && *p != "" {
			return true
		}
	}
	return false
}

// compactTextPreview caps the text shown in compact renderings.
const compactTextPreview = 50

// compactHrefPreview caps the href shown in compact renderings.
const compactHrefPreview = 30

// CompactString renders the record as a single prompt-friendly line:
//
//	[3] button "Submit order" (aria-label="Submit", id=submit-btn, disabled)
//
// Only attributes that are present are rendered.
func (e *ElementRecord) CompactString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", e.Bid, e.Tag)

	if e.Text != nil && *e.Text != "" {
		fmt.Fprintf(&b, " %q", truncateRunes(*e.Text, compactTextPreview))
	}

	var attrs []string
	if e.AriaLabel != nil && *e.AriaLabel != "" {
		attrs = append(attrs, fmt.Sprintf("aria-label=%q", *e.AriaLabel))
	}
	if e.Placeholder != nil && *e.Placeholder != "" {
		attrs = append(attrs, "placeholder="+*e.Placeholder)
	}
	if e.Name != nil && *e.Name != "" {
		attrs = append(attrs, "name="+*e.Name)
	}
	if e.HTMLID != nil && *e.HTMLID != "" {
		attrs = append(attrs, "id="+*e.HTMLID)
	}
	if e.Href != nil && *e.Href != "" {
		attrs = append(attrs, "href="+truncateRawRunes(*e.Href, compactHrefPreview))
	}
	if e.TestID != nil && *e.TestID != "" {
		attrs = append(attrs, "data-testid="+*e.TestID)
	}
	if e.JSHint != nil && *e.JSHint != "" {
		attrs = append(attrs, "onclick="+*e.JSHint)
	}
	if e.Disabled {
		attrs = append(attrs, "disabled")
	}
	if e.ReadOnly {
		attrs = append(attrs, "readonly")
	}
	if len(attrs) > 0 {
		b.WriteString(" (" + strings.Join(attrs, ", ") + ")")
	}
	return b.String()
}

// truncateRunes shortens s to at most n runes, appending "..." when content
// was dropped.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// truncateRawRunes shortens s to at most n runes without an ellipsis marker.
func truncateRawRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// StateDiagnostics carries the non-fatal problems of a perception pass.
type StateDiagnostics struct {
	// UnboundBids lists bids whose selectors did not resolve to a free node
	// during injection.
	UnboundBids []int `json:"unbound_bids,omitempty"`
	// SkippedElements counts candidates dropped during extraction because a
	// single-element failure occurred.
	SkippedElements int `json:"skipped_elements,omitempty"`
	// InvalidSelectors counts selector strategies rejected at parse time.
	InvalidSelectors int `json:"invalid_selectors,omitempty"`
}

// PerceptionState is the root aggregate of one perception pass over a page.
type PerceptionState struct {
	RunID   string `json:"run_id"`
	StateID string `json:"state_id"`

	URL   string `json:"url"`
	Title string `json:"title"`

	Elements    []ElementRecord `json:"elements"`
	VisibleText string          `json:"visible_text"`

	// Lang is the document language as declared on <html lang>.
	Lang string `json:"lang,omitempty"`

	CapturedAt  time.Time        `json:"captured_at"`
	Diagnostics StateDiagnostics `json:"diagnostics"`
}

// CompactString renders the ranked element list one line per element, the
// form consumed by the planner prompt.
func (s *PerceptionState) CompactString() string {
	lines := make([]string, 0, len(s.Elements))
	for i := range s.Elements {
		lines = append(lines, s.Elements[i].CompactString())
	}
	return strings.Join(lines, "\n")
}

// ElementByBid returns the record carrying bid, or nil when no element holds
// it.
func (s *PerceptionState) ElementByBid(bid int) *ElementRecord {
	for i := range s.Elements {
		if s.Elements[i].Bid == bid {
			return &s.Elements[i]
		}
	}
	return nil
}

// -- Binding Schemas --

// BindEntry asks the resolver to bind one bid using the given ordered
// selector strategies. Tag and Label ride along so binding failures can be
// reported with enough context to recognize the element.
type BindEntry struct {
	Bid       int      `json:"bid"`
	Tag       string   `json:"tag,omitempty"`
	Label     string   `json:"label,omitempty"`
	Selectors []string `json:"selectors"`
}

// BindRequest is the input of a binding pass.
type BindRequest struct {
	Entries []BindEntry `json:"entries"`
}

// Binding records a successful bid-to-node resolution and the selector that
// won it.
type Binding struct {
	Bid      int    `json:"bid"`
	Selector string `json:"selector"`
}

// UnmatchedReason classifies why an entry could not be bound.
type UnmatchedReason string

const (
	// UnmatchedNoMatch means no selector of the entry matched any node.
	UnmatchedNoMatch UnmatchedReason = "no-match"
	// UnmatchedAmbiguous means at least one selector matched several nodes
	// and none narrowed to a single free one.
	UnmatchedAmbiguous UnmatchedReason = "ambiguous"
	// UnmatchedAllClaimed means a selector resolved uniquely, but every such
	// node was already bound earlier in the pass or in a previous pass.
	UnmatchedAllClaimed UnmatchedReason = "all-claimed"
	// UnmatchedNoSelectors means the entry carried no usable selector.
	UnmatchedNoSelectors UnmatchedReason = "no-selectors"
	// UnmatchedEvalFailed means the live evaluation itself failed; the whole
	// pass is reported unbound and the cycle continues without bindings.
	UnmatchedEvalFailed UnmatchedReason = "evaluate-failed"
)

// UnmatchedEntry reports one entry the pass could not bind, with the
// strategies that were attempted.
type UnmatchedEntry struct {
	Bid    int             `json:"bid"`
	Tag    string          `json:"tag,omitempty"`
	Label  string          `json:"label,omitempty"`
	Reason UnmatchedReason `json:"reason"`
	Tried  []string        `json:"tried,omitempty"`
}

// BindReport is the outcome of a binding pass. Bound always equals
// len(Bindings); an entry whose bid was already present on a live node is
// counted in AlreadyBound and appears in neither list.
type BindReport struct {
	Bound            int              `json:"bound"`
	AlreadyBound     int              `json:"already_bound,omitempty"`
	Bindings         []Binding        `json:"bindings"`
	Unmatched        []UnmatchedEntry `json:"unmatched,omitempty"`
	InvalidSelectors int              `json:"invalid_selectors,omitempty"`
	// Cleared counts stale markers removed during the clearing phase. Only
	// populated by the live injector.
	Cleared int `json:"cleared,omitempty"`
}
