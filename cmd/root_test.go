package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/percept-cli/internal/config"
)

func TestEnsureScheme(t *testing.T) {
	assert.Equal(t, "https://shop.example.com", ensureScheme("shop.example.com"))
	assert.Equal(t, "http://localhost:8080", ensureScheme("http://localhost:8080"))
	assert.Equal(t, "https://a.example", ensureScheme("https://a.example"))
}

func TestInitializeConfig_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	v := viper.New()
	require.NoError(t, initializeConfig(v))

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DatasetConfig.Backend)
	assert.Equal(t, 100, cfg.PerceptionConfig.MaxElements)
	assert.True(t, cfg.BrowserConfig.Headless)
}

func TestInitializeConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("perception:\n  max_elements: 25\nengine:\n  max_steps: 7\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "percept.yaml"), yaml, 0o644))

	v := viper.New()
	require.NoError(t, initializeConfig(v))

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.PerceptionConfig.MaxElements)
	assert.Equal(t, 7, cfg.EngineConfig.MaxSteps)
	// Untouched keys keep their defaults.
	assert.Equal(t, "sqlite", cfg.DatasetConfig.Backend)
}

func TestInitializeConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("dataset:\n  backend: sqlite\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "percept.yaml"), yaml, 0o644))
	t.Setenv("PERCEPT_DATASET_BACKEND", "none")

	v := viper.New()
	require.NoError(t, initializeConfig(v))

	cfg, err := config.NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.DatasetConfig.Backend)
}
