// Package resolve binds perception identifiers to document nodes. The pure
// resolver in this file defines the binding semantics over a parsed snapshot;
// the live injector executes the identical algorithm inside the page in one
// atomic evaluation. Keeping the reference algorithm host-side makes the
// binding rules testable without a browser.
package resolve

import (
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

// BidAttr is the live-document attribute carrying an element's bid.
const BidAttr = "data-bid"

// Resolve runs one binding pass over a parsed document. For each entry, in
// order, the selectors are tried most-specific first; the first selector that
// resolves to exactly one node not yet carrying a marker claims that node.
// A node claimed once stays claimed for the rest of the pass, and an entry
// whose bid is already present in the document is left alone, which makes a
// repeated pass with the same entries a no-op.
//
// The document is never mutated; claims live in pass-local state. Mutation is
// the injector's job.
func Resolve(doc *html.Node, req schemas.BindRequest) schemas.BindReport {
	report := schemas.BindReport{}

	claimed := make(map[*html.Node]bool)
	present := make(map[int]bool)
	collectMarkers(doc, claimed, present)

	for _, entry := range req.Entries {
		if present[entry.Bid] {
			report.AlreadyBound++
			continue
		}
		if len(entry.Selectors) == 0 {
			report.Unmatched = append(report.Unmatched, unmatched(entry, schemas.UnmatchedNoSelectors, nil))
			continue
		}

		var (
			tried      []string
			claimedHit bool
			ambiguous  bool
			bound      bool
		)
		for _, raw := range entry.Selectors {
			sel, err := cascadia.Parse(raw)
			if err != nil {
				report.InvalidSelectors++
				continue
			}
			tried = append(tried, raw)

			matches := cascadia.QueryAll(doc, sel)
			if len(matches) != 1 {
				if len(matches) > 1 {
					ambiguous = true
				}
				continue
			}
			node := matches[0]
			if claimed[node] {
				claimedHit = true
				continue
			}

			claimed[node] = true
			present[entry.Bid] = true
			report.Bound++
			report.Bindings = append(report.Bindings, schemas.Binding{Bid: entry.Bid, Selector: raw})
			bound = true
			break
		}

		if !bound {
			reason := schemas.UnmatchedNoMatch
			switch {
			case claimedHit:
				reason = schemas.UnmatchedAllClaimed
			case ambiguous:
				reason = schemas.UnmatchedAmbiguous
			}
			report.Unmatched = append(report.Unmatched, unmatched(entry, reason, tried))
		}
	}
	return report
}

// collectMarkers records nodes already carrying a marker and the numeric bids
// those markers hold. Any marker claims its node, numeric or not.
func collectMarkers(n *html.Node, claimed map[*html.Node]bool, present map[int]bool) {
	for ; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if strings.EqualFold(a.Key, BidAttr) {
					claimed[n] = true
					if bid, err := strconv.Atoi(strings.TrimSpace(a.Val)); err == nil {
						present[bid] = true
					}
					break
				}
			}
		}
		collectMarkers(n.FirstChild, claimed, present)
	}
}

func unmatched(entry schemas.BindEntry, reason schemas.UnmatchedReason, tried []string) schemas.UnmatchedEntry {
	return schemas.UnmatchedEntry{
		Bid:    entry.Bid,
		Tag:    entry.Tag,
		Label:  entry.Label,
		Reason: reason,
		Tried:  tried,
	}
}
