package perception

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// VisibleText renders the snapshot's readable text: script, style and
// explicitly hidden subtrees are dropped, whitespace is collapsed, and the
// result is capped so prompts stay bounded. Unparsable input yields an empty
// string with a warning, mirroring element extraction.
func (e *Extractor) VisibleText(htmlSrc string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		e.log.Warn("document snapshot unparsable, no visible text", zap.Error(err))
		return ""
	}

	doc.Find("script, style, noscript, template").Remove()
	doc.Find("[hidden], [aria-hidden='true']").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	text := normalizeSpace(root.Text())

	if e.visibleTextCap > 0 && utf8.RuneCountInString(text) > e.visibleTextCap {
		text = string([]rune(text)[:e.visibleTextCap]) + "..."
	}
	return text
}
