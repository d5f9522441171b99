package perception

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

// maxTextPreview bounds the text captured per element so downstream prompts
// stay bounded. Longer content is cut and marked with an ellipsis.
const maxTextPreview = 100

// interactiveTags is the canonical set of tags treated as interactive on
// their own, with no role or handler needed.
var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"textarea": true,
	"select":   true,
	"label":    true,
	"option":   true,
}

// interactiveRoles lists the ARIA roles that qualify a node as a candidate
// even when its tag is not interactive.
var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"tab":              true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
	"textbox":          true,
	"searchbox":        true,
	"combobox":         true,
	"checkbox":         true,
	"radio":            true,
	"switch":           true,
	"option":           true,
}

// attrMap flattens a node's attribute list into a lowercase-keyed map. The
// first occurrence of a duplicated attribute wins, matching browser behavior.
func attrMap(n *html.Node) map[string]string {
	if len(n.Attr) == 0 {
		return nil
	}
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		k := strings.ToLower(a.Key)
		if _, ok := m[k]; !ok {
			m[k] = a.Val
		}
	}
	return m
}

func hasAttr(attrs map[string]string, key string) bool {
	_, ok := attrs[key]
	return ok
}

func attrValue(attrs map[string]string, key string) string {
	return strings.TrimSpace(attrs[key])
}

// editableAttr reports whether the node opts into content editing. An empty
// contenteditable value means true in HTML.
func editableAttr(attrs map[string]string) bool {
	v, ok := attrs["contenteditable"]
	return ok && !strings.EqualFold(strings.TrimSpace(v), "false")
}

// isCandidate decides whether a node enters the extraction pass: interactive
// tag, interactive role, a native click handler, or editable content. The
// document scaffold itself never qualifies.
func isCandidate(tag string, attrs map[string]string) bool {
	if tag == "html" || tag == "body" {
		return false
	}
	if interactiveTags[tag] {
		return true
	}
	if interactiveRoles[strings.ToLower(attrValue(attrs, "role"))] {
		return true
	}
	if hasAttr(attrs, "onclick") {
		return true
	}
	return editableAttr(attrs)
}

// staticVisible judges visibility from markup alone. Snapshot extraction has
// no layout engine, so only explicit hiding is detectable; the live clearing
// phase re-checks with rendered boxes.
func staticVisible(tag string, attrs map[string]string) bool {
	if hasAttr(attrs, "hidden") {
		return false
	}
	if strings.EqualFold(attrValue(attrs, "aria-hidden"), "true") {
		return false
	}
	if tag == "input" && strings.EqualFold(attrValue(attrs, "type"), "hidden") {
		return false
	}
	style := strings.ToLower(strings.ReplaceAll(attrs["style"], " ", ""))
	if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
		return false
	}
	return true
}

// nodeText concatenates all descendant text of n with whitespace collapsed.
// Script, style and template bodies are never text.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
				b.WriteByte(' ')
			case html.ElementNode:
				if rawTextTags[strings.ToLower(c.Data)] {
					continue
				}
				walk(c.FirstChild)
			}
		}
	}
	walk(n.FirstChild)
	return normalizeSpace(b.String())
}

// rawTextTags hold code or markup, not user-visible words.
var rawTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"template": true,
	"noscript": true,
}

// normalizeSpace collapses runs of whitespace to single spaces and trims the
// ends.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// previewText caps s at maxTextPreview runes, appending an ellipsis marker
// when content was dropped.
func previewText(s string) string {
	if utf8.RuneCountInString(s) <= maxTextPreview {
		return s
	}
	return string([]rune(s)[:maxTextPreview]) + "..."
}

// optional converts a raw attribute value to a nullable field: whitespace-only
// values collapse to nil.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// nearestParentElement walks up to the closest element ancestor of n.
func nearestParentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// elementPosition counts preceding element siblings sharing n's tag, giving
// the zero-based index used by positional selectors.
func elementPosition(n *html.Node) int {
	pos := 0
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode && s.Data == n.Data {
			pos++
		}
	}
	return pos
}

// classTokens splits a class attribute into its ordered tokens.
func classTokens(v string) []string {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// captureRecord reads one candidate node into a normalized record. Every
// attribute read degrades to a nil field on absence; nothing here can fail a
// node outright.
func captureRecord(n *html.Node, attrs map[string]string) schemas.ElementRecord {
	tag := strings.ToLower(n.Data)
	rec := schemas.ElementRecord{
		Tag:       tag,
		Role:      optional(attrs["role"]),
		AriaLabel: optional(attrs["aria-label"]),
		HTMLID:    optional(attrs["id"]),
		Name:      optional(attrs["name"]),
		TestID:    optional(attrs["data-testid"]),
		ClassList: classTokens(attrs["class"]),
		Position:  elementPosition(n),
		Visible:   staticVisible(tag, attrs),
		Editable:  editableAttr(attrs) || tag == "input" || tag == "textarea",
	}
	rec.Disabled = hasAttr(attrs, "disabled") || strings.EqualFold(attrValue(attrs, "aria-disabled"), "true")
	rec.ReadOnly = hasAttr(attrs, "readonly") || strings.EqualFold(attrValue(attrs, "aria-readonly"), "true")

	if text := nodeText(n); text != "" {
		p := previewText(text)
		rec.Text = &p
	}

	switch tag {
	case "a":
		rec.Href = optional(attrs["href"])
	case "input":
		rec.Placeholder = optional(attrs["placeholder"])
		it := strings.ToLower(attrValue(attrs, "type"))
		if it == "" {
			it = "text"
		}
		rec.InputType = &it
		rec.ValueText = optional(attrs["value"])
		// An input has no child text; surface its current value instead.
		rec.Text = nil
		if rec.ValueText != nil {
			p := previewText(*rec.ValueText)
			rec.Text = &p
		}
	case "textarea":
		rec.Placeholder = optional(attrs["placeholder"])
		rec.ValueText = rec.Text
	}

	if parent := nearestParentElement(n); parent != nil {
		pt := strings.ToLower(parent.Data)
		rec.ParentTag = &pt
		rec.ParentRole = optional(attrValue(attrMap(parent), "role"))
	}
	return rec
}

// priorityScore ranks a record for truncation. The weights favor natively
// interactive tags and strong naming signals, and push hidden or disabled
// controls to the bottom.
func priorityScore(rec *schemas.ElementRecord) int {
	score := 0
	if interactiveTags[rec.Tag] {
		score += 50
	}
	if rec.Role != nil {
		score += 20
	}
	if rec.Text != nil {
		score += 15
	}
	if rec.AriaLabel != nil {
		score += 15
	}
	if rec.Placeholder != nil {
		score += 10
	}
	if rec.HTMLID != nil {
		score += 10
	}
	if rec.Name != nil {
		score += 10
	}
	if rec.TestID != nil {
		score += 10
	}
	if rec.Disabled {
		score -= 30
	}
	if !rec.Visible {
		score -= 50
	}
	return score
}
