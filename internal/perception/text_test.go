package perception

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

func TestVisibleText_StripsNonContent(t *testing.T) {
	e := newTestExtractor(100)
	text := e.VisibleText(loadPage(t, "login.html"))

	assert.Contains(t, text, "Sign in to Acme")
	assert.Contains(t, text, "Forgot password?")
	assert.NotContains(t, text, "boot", "script bodies are not visible text")
	assert.NotContains(t, text, ".muted", "style rules are not visible text")
}

func TestVisibleText_DropsHiddenSubtrees(t *testing.T) {
	e := newTestExtractor(100)
	text := e.VisibleText(`<html><body>
		<p>shown</p>
		<div hidden><p>secret</p></div>
		<div aria-hidden="true">other secret</div>
	</body></html>`)

	assert.Equal(t, "shown", text)
}

func TestVisibleText_CapsLength(t *testing.T) {
	e := NewExtractor(config.PerceptionConfig{MaxElements: 10, VisibleTextCap: 12}, zap.NewNop())
	text := e.VisibleText("<html><body><p>one two three four five</p></body></html>")

	assert.Equal(t, "one two thre...", text)
	assert.Len(t, []rune(text), 12+3)
}

func TestVisibleText_EmptyInput(t *testing.T) {
	e := newTestExtractor(100)
	assert.Equal(t, "", e.VisibleText(""))
}

func TestVisibleText_CollapsesWhitespace(t *testing.T) {
	e := newTestExtractor(100)
	text := e.VisibleText("<html><body><p>a\n\n   b</p>\t<p>c</p></body></html>")
	assert.False(t, strings.Contains(text, "  "), "runs of whitespace must collapse")
	assert.Equal(t, "a b c", text)
}
