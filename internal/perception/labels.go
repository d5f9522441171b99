package perception

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// maxLabelText bounds sibling and parent label candidates. Anything longer is
// prose, not a label.
const maxLabelText = 100

// labelTags are the tags accepted as label sources when scanning preceding
// siblings.
var labelTags = map[string]bool{
	"h1":    true,
	"h2":    true,
	"h3":    true,
	"h4":    true,
	"h5":    true,
	"h6":    true,
	"label": true,
	"span":  true,
	"div":   true,
	"p":     true,
}

// docIndex holds the document-wide lookups label resolution needs, built once
// per extraction pass.
type docIndex struct {
	// byID maps element ids to their nodes, first declaration wins.
	byID map[string]*html.Node
	// labelFor maps a "for" target id to the first label element claiming it,
	// in document order.
	labelFor map[string]*html.Node
}

// buildIndex walks the whole tree collecting id targets and explicit labels.
func buildIndex(root *html.Node) *docIndex {
	idx := &docIndex{
		byID:     make(map[string]*html.Node),
		labelFor: make(map[string]*html.Node),
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for ; n != nil; n = n.NextSibling {
			if n.Type == html.ElementNode {
				attrs := attrMap(n)
				if id := attrValue(attrs, "id"); id != "" {
					if _, ok := idx.byID[id]; !ok {
						idx.byID[id] = n
					}
				}
				if strings.ToLower(n.Data) == "label" {
					if target := attrValue(attrs, "for"); target != "" {
						if _, ok := idx.labelFor[target]; !ok {
							idx.labelFor[target] = n
						}
					}
				}
			}
			walk(n.FirstChild)
		}
	}
	walk(root)
	return idx
}

// resolveLabel infers a human-meaningful label for n. The chain is ordered by
// reliability and the first hit wins: an explicit for-label anywhere in the
// document, a wrapping label element, a short preceding sibling, the nodes an
// aria-labelledby reference points at, and finally the parent's own preceding
// sibling. Returns "" when nothing plausible is found; extraction continues
// without a label.
func resolveLabel(n *html.Node, attrs map[string]string, idx *docIndex) string {
	if id := attrValue(attrs, "id"); id != "" {
		if lab := idx.labelFor[id]; lab != nil && lab != n {
			if t := nodeText(lab); t != "" {
				return t
			}
		}
	}

	if t := wrappingLabelText(n); t != "" {
		return t
	}

	if t := precedingSiblingLabel(n); t != "" {
		return t
	}

	if refs := strings.Fields(attrs["aria-labelledby"]); len(refs) > 0 {
		parts := make([]string, 0, len(refs))
		for _, ref := range refs {
			if src := idx.byID[ref]; src != nil && src != n {
				if t := nodeText(src); t != "" {
					parts = append(parts, t)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}

	if parent := nearestParentElement(n); parent != nil {
		if t := shortSiblingText(previousElement(parent)); t != "" {
			return t
		}
	}
	return ""
}

// wrappingLabelText looks for an ancestor label element and returns its text
// with the node's own contribution removed.
func wrappingLabelText(n *html.Node) string {
	own := nodeText(n)
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode || strings.ToLower(p.Data) != "label" {
			continue
		}
		t := nodeText(p)
		if own != "" {
			t = strings.Replace(t, own, "", 1)
		}
		if t = normalizeSpace(t); t != "" {
			return t
		}
	}
	return ""
}

// precedingSiblingLabel scans up to three preceding element siblings for a
// heading-like node with short text.
func precedingSiblingLabel(n *html.Node) string {
	seen := 0
	for s := n.PrevSibling; s != nil && seen < 3; s = s.PrevSibling {
		if s.Type != html.ElementNode {
			continue
		}
		seen++
		if !labelTags[strings.ToLower(s.Data)] {
			continue
		}
		t := nodeText(s)
		if t != "" && utf8.RuneCountInString(t) < maxLabelText {
			return t
		}
	}
	return ""
}

// previousElement returns the nearest preceding element sibling of n.
func previousElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

// shortSiblingText returns n's text when it passes the label length filter.
func shortSiblingText(n *html.Node) string {
	if n == nil {
		return ""
	}
	t := nodeText(n)
	if t != "" && utf8.RuneCountInString(t) < maxLabelText {
		return t
	}
	return ""
}
