// internal/browser/options_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

// Allocator options are opaque closures, so the tests compare option counts
// between configurations rather than inspecting flag internals.
func TestDefaultAllocatorOptions(t *testing.T) {
	base := DefaultAllocatorOptions(config.BrowserConfig{})

	t.Run("BaseIsNonEmpty", func(t *testing.T) {
		assert.NotEmpty(t, base)
	})

	t.Run("Headless", func(t *testing.T) {
		// Headless on and off both emit exactly one override on top of the
		// chromedp defaults.
		opts := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
		assert.Len(t, opts, len(base))
	})

	t.Run("DisableGPU", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{DisableGPU: true})
		assert.Len(t, opts, len(base)+1)
	})

	t.Run("DisableCache", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{DisableCache: true})
		assert.Len(t, opts, len(base)+3)
	})

	t.Run("IgnoreTLSErrors", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{IgnoreTLSErrors: true})
		assert.Len(t, opts, len(base)+2)
	})

	t.Run("UserAgent", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{UserAgent: "percept/1.0"})
		assert.Len(t, opts, len(base)+1)
	})

	t.Run("Viewport", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{ViewportWidth: 1920, ViewportHeight: 1080})
		assert.Len(t, opts, len(base)+1)
	})

	t.Run("ViewportRequiresBothDimensions", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{ViewportWidth: 1920})
		assert.Len(t, opts, len(base))
	})

	t.Run("CustomArgs", func(t *testing.T) {
		opts := DefaultAllocatorOptions(config.BrowserConfig{
			Args: []string{"--no-zygote", "lang=en-US", ""},
		})
		// Two usable args; the empty entry is skipped.
		assert.Len(t, opts, len(base)+2)
	})
}
