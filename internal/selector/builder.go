// Package selector synthesizes live-document query strategies for extracted
// element records. Strategies are ordered most-specific first and always end
// in a tag-level fallback, so the list is never empty.
package selector

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/percept-cli/api/schemas"
)

// Build returns the ordered candidate selectors for rec. The order walks from
// attributes that are unique by construction (id, test id) through scoped
// compound forms that disambiguate structurally identical siblings, down to
// the coarse tag-plus-class fallback.
func Build(rec schemas.ElementRecord) []string {
	tag := rec.Tag
	if !isIdent(tag) {
		tag = ""
	}

	var out []string
	add := func(s string) {
		for _, prev := range out {
			if prev == s {
				return
			}
		}
		out = append(out, s)
	}

	if v := deref(rec.HTMLID); v != "" {
		if isIdent(v) {
			add("#" + v)
		} else {
			add(tag + attr("id", v))
		}
	}
	if v := deref(rec.TestID); v != "" {
		add(tag + attr("data-testid", v))
	}

	parent := deref(rec.ParentTag)
	if !isIdent(parent) {
		parent = ""
	}
	nth := rec.Position + 1
	if nth < 1 {
		nth = 1
	}

	if v := deref(rec.Name); v != "" {
		if parent != "" {
			add(fmt.Sprintf("%s > %s%s:nth-of-type(%d)", parent, tag, attr("name", v), nth))
		}
		add(tag + attr("name", v))
	}

	if v := deref(rec.AriaLabel); v != "" {
		if parent != "" {
			add(fmt.Sprintf("%s > %s%s:nth-of-type(%d)", parent, tag, attr("aria-label", v), nth))
		}
		if rec.Tag == "button" || rec.Tag == "a" {
			add(tag + attr("aria-label", v))
		}
	}

	inputType := deref(rec.InputType)
	if v := deref(rec.Placeholder); v != "" && inputType != "" {
		add(fmt.Sprintf("%s%s%s:nth-of-type(%d)", tag, attr("placeholder", v), attr("type", inputType), nth))
		add(tag + attr("placeholder", v) + attr("type", inputType))
	}
	if inputType != "" {
		add(tag + attr("type", inputType))
	}

	if v := deref(rec.Href); v != "" && rec.Tag == "a" {
		add("a" + attr("href", v))
	}

	add(classFallback(tag, rec.ClassList))
	return out
}

// classFallback builds the coarse tag.class selector, dropping class tokens
// that are not clean identifiers. Falls back to the universal selector when
// even the tag is unusable.
func classFallback(tag string, classes []string) string {
	var b strings.Builder
	b.WriteString(tag)
	for _, c := range classes {
		if isIdent(c) {
			b.WriteByte('.')
			b.WriteString(c)
		}
	}
	if b.Len() == 0 {
		return "*"
	}
	return b.String()
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
