package selector

import (
	"fmt"
	"regexp"
	"strings"
)

// cssIdentRe matches values safe to use as bare CSS identifiers (a #id
// shorthand or a .class token) without escaping.
var cssIdentRe = regexp.MustCompile(`^-?[A-Za-z_][A-Za-z0-9_-]*$`)

// isIdent reports whether s can appear as a bare CSS identifier.
func isIdent(s string) bool {
	return cssIdentRe.MatchString(s)
}

// quoteString renders v as a double-quoted CSS string. Quotes and backslashes
// are escaped and control characters become code-point escapes, so the result
// is always syntactically valid inside a selector.
func quoteString(v string) string {
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('"')
	for _, r := range v {
		switch {
		case r == '"' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x20:
			// CSS code-point escape; the trailing space terminates it.
			fmt.Fprintf(&b, "\\%x ", r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// AttrEquals renders one [name="value"] clause with the value escaped. The
// execution layer shares it to build live fallback selectors from the same
// records.
func AttrEquals(name, value string) string {
	return "[" + name + "=" + quoteString(value) + "]"
}

func attr(name, value string) string { return AttrEquals(name, value) }
