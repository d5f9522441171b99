package perception

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/config"
)

// Extractor turns a serialized HTML snapshot into a ranked list of
// interactive element records. It owns no live-document access; everything
// here works on the snapshot alone.
type Extractor struct {
	maxElements    int
	visibleTextCap int
	jsHints        bool
	log            *zap.Logger
}

// NewExtractor builds an Extractor from the perception settings. The logger
// is required wiring; passing nil gets a no-op logger rather than a panic.
func NewExtractor(cfg config.PerceptionConfig, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		maxElements:    cfg.MaxElements,
		visibleTextCap: cfg.VisibleTextCap,
		jsHints:        cfg.JSHints,
		log:            log.Named("extractor"),
	}
}

// candidate pairs a node with its flattened attributes so the attribute map
// is computed once per node.
type candidate struct {
	node  *html.Node
	attrs map[string]string
}

// Extract walks the snapshot and returns the ranked element records plus the
// count of nodes skipped by per-node capture failures. A snapshot that cannot
// be parsed at all yields an empty list and a warning, never an error: the
// caller treats it as a page with nothing actionable on it.
func (e *Extractor) Extract(htmlSrc string) ([]schemas.ElementRecord, int) {
	if strings.TrimSpace(htmlSrc) == "" {
		e.log.Warn("empty document snapshot, nothing to extract")
		return nil, 0
	}
	doc, err := html.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		e.log.Warn("document snapshot unparsable, nothing to extract", zap.Error(err))
		return nil, 0
	}

	idx := buildIndex(doc)
	candidates := collectCandidates(doc)

	records := make([]schemas.ElementRecord, 0, len(candidates))
	skipped := 0
	for _, c := range candidates {
		rec, ok := e.capture(c, idx)
		if !ok {
			skipped++
			continue
		}
		if !rec.HasIdentity() {
			continue
		}
		rec.Bid = len(records) + 1
		rec.Score = priorityScore(&rec)
		records = append(records, rec)
	}

	// Stable sort keeps discovery order between equal scores.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})

	if e.maxElements > 0 && len(records) > e.maxElements {
		e.log.Debug("element list truncated",
			zap.Int("extracted", len(records)),
			zap.Int("max_elements", e.maxElements),
		)
		records = records[:e.maxElements]
	}

	e.log.Debug("extraction pass complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("retained", len(records)),
		zap.Int("skipped", skipped),
	)
	return records, skipped
}

// collectCandidates gathers candidate nodes in document order. A node
// matching several rules still appears once; the walk visits each node a
// single time.
func collectCandidates(root *html.Node) []candidate {
	var out []candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ; n != nil; n = n.NextSibling {
			if n.Type == html.ElementNode {
				attrs := attrMap(n)
				if isCandidate(strings.ToLower(n.Data), attrs) {
					out = append(out, candidate{node: n, attrs: attrs})
				}
			}
			walk(n.FirstChild)
		}
	}
	walk(root)
	return out
}

// capture reads one candidate into a record. A pathological node can only
// take itself down: the recover turns a capture failure into a skip.
func (e *Extractor) capture(c candidate, idx *docIndex) (rec schemas.ElementRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Debug("element capture failed, node skipped",
				zap.String("tag", c.node.Data),
				zap.Any("cause", r),
			)
			ok = false
		}
	}()

	rec = captureRecord(c.node, c.attrs)
	if lbl := resolveLabel(c.node, c.attrs, idx); lbl != "" {
		p := previewText(lbl)
		rec.Label = &p
	}
	if e.jsHints {
		if h := handlerHint(c.attrs); h != "" {
			rec.JSHint = &h
		}
	}
	return rec, true
}
