package perception

import (
	"context"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// maxHintLength caps the rendered handler hint.
const maxHintLength = 40

// handlerAttrs are the inline handler attributes worth hinting, checked in
// order.
var handlerAttrs = []string{"onclick", "onsubmit", "onchange"}

// handlerHint condenses an element's inline handler into the name of the
// first function it calls, e.g. onclick="return doSearch(this)" becomes
// "doSearch()". The hint gives the planner a clue about what a control does
// when it carries no other naming signal. Returns "" when there is no handler
// or no recognizable call.
func handlerHint(attrs map[string]string) string {
	source := ""
	for _, key := range handlerAttrs {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			source = v
			break
		}
	}
	if source == "" {
		if href := strings.TrimSpace(attrs["href"]); strings.HasPrefix(strings.ToLower(href), "javascript:") {
			source = strings.TrimSpace(href[len("javascript:"):])
		}
	}
	if source == "" {
		return ""
	}

	name := firstCalledFunction(source)
	if name == "" {
		return ""
	}
	if utf8.RuneCountInString(name) > maxHintLength {
		name = string([]rune(name)[:maxHintLength])
	}
	return name + "()"
}

// firstCalledFunction parses the handler body and returns the callee of the
// first call expression whose target is a plain identifier or member chain.
func firstCalledFunction(source string) string {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	src := []byte(source)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return ""
	}
	defer tree.Close()

	return firstCallee(tree.RootNode(), src)
}

func firstCallee(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	if n.Type() == "call_expression" {
		if fn := n.ChildByFieldName("function"); fn != nil {
			switch fn.Type() {
			case "identifier", "member_expression":
				return strings.TrimSpace(fn.Content(src))
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if name := firstCallee(n.Child(i), src); name != "" {
			return name
		}
	}
	return ""
}
