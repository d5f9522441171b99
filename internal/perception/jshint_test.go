package perception

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerHint(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		want  string
	}{
		{
			"simple call",
			map[string]string{"onclick": "doSearch(this)"},
			"doSearch()",
		},
		{
			"member chain with return",
			map[string]string{"onclick": "return app.cart.add(42);"},
			"app.cart.add()",
		},
		{
			"onsubmit when no onclick",
			map[string]string{"onsubmit": "validateForm()"},
			"validateForm()",
		},
		{
			"javascript href",
			map[string]string{"href": "javascript:openMenu('main')"},
			"openMenu()",
		},
		{
			"void href has no named call",
			map[string]string{"href": "javascript:void(0)"},
			"",
		},
		{
			"unparsable handler",
			map[string]string{"onclick": "(((("},
			"",
		},
		{
			"assignment only",
			map[string]string{"onclick": "flag = true"},
			"",
		},
		{
			"plain href ignored",
			map[string]string{"href": "/about"},
			"",
		},
		{
			"no handler",
			map[string]string{"class": "btn"},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, handlerHint(tt.attrs))
		})
	}
}

func TestHandlerHint_IIFE(t *testing.T) {
	got := handlerHint(map[string]string{"onclick": "(function(){ inner(); })()"})
	assert.Equal(t, "inner()", got)
}

func TestHandlerHint_CapsLongNames(t *testing.T) {
	long := "veryDeep.module.chain.with.an.unreasonably.long.path.fn(1)"
	got := handlerHint(map[string]string{"onclick": long})
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len([]rune(got)), maxHintLength+2, "hint must stay bounded")
}
