// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface is the read surface components receive instead of the concrete
// Config. It keeps dependencies narrow and mockable in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Perception() PerceptionConfig
	Mutation() MutationConfig
	LLM() LLMConfig
	Dataset() DatasetConfig
	Engine() EngineConfig

	// Flag-driven overrides used by the CLI layer.
	SetBrowserHeadless(bool)
	SetDatasetBackend(string)
	SetDatasetPath(string)
	SetEngineMaxSteps(int)
}

// Config holds the whole application configuration. Fields are exported for
// viper's unmarshaling; components should depend on Interface, not on Config.
type Config struct {
	LoggerConfig     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	BrowserConfig    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	PerceptionConfig PerceptionConfig `mapstructure:"perception" yaml:"perception"`
	MutationConfig   MutationConfig   `mapstructure:"mutation" yaml:"mutation"`
	LLMConfig        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	DatasetConfig    DatasetConfig    `mapstructure:"dataset" yaml:"dataset"`
	EngineConfig     EngineConfig     `mapstructure:"engine" yaml:"engine"`
}

var _ Interface = (*Config)(nil)

// -- Interface implementation --

func (c *Config) Logger() LoggerConfig         { return c.LoggerConfig }
func (c *Config) Browser() BrowserConfig       { return c.BrowserConfig }
func (c *Config) Perception() PerceptionConfig { return c.PerceptionConfig }
func (c *Config) Mutation() MutationConfig     { return c.MutationConfig }
func (c *Config) LLM() LLMConfig               { return c.LLMConfig }
func (c *Config) Dataset() DatasetConfig       { return c.DatasetConfig }
func (c *Config) Engine() EngineConfig         { return c.EngineConfig }

func (c *Config) SetBrowserHeadless(b bool)  { c.BrowserConfig.Headless = b }
func (c *Config) SetDatasetBackend(s string) { c.DatasetConfig.Backend = s }
func (c *Config) SetDatasetPath(s string)    { c.DatasetConfig.Path = s }
func (c *Config) SetEngineMaxSteps(n int)    { c.EngineConfig.MaxSteps = n }

// LoggerConfig controls the zap/lumberjack logging stack.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless Chrome instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	DisableCache      bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	StabilizeTimeout  time.Duration `mapstructure:"stabilize_timeout" yaml:"stabilize_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// PerceptionConfig tunes element extraction and state assembly.
type PerceptionConfig struct {
	// MaxElements caps the ranked element list of a perception pass.
	MaxElements int `mapstructure:"max_elements" yaml:"max_elements"`
	// VisibleTextCap caps the page text carried in a state, in runes.
	VisibleTextCap int `mapstructure:"visible_text_cap" yaml:"visible_text_cap"`
	// JSHints enables inline-handler parsing for planner context.
	JSHints bool `mapstructure:"js_hints" yaml:"js_hints"`
	// Screenshots captures a full-page screenshot with each state.
	Screenshots bool `mapstructure:"screenshots" yaml:"screenshots"`
}

// MutationConfig tunes the DOM mutation watcher.
type MutationConfig struct {
	// Threshold is the relative node-count delta that counts as a
	// significant change (0.05 means 5%).
	Threshold float64       `mapstructure:"threshold" yaml:"threshold"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LLMProvider names a supported model provider.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMConfig configures the planner's model client.
type LLMConfig struct {
	Provider        LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"-"`
	Temperature     float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	APITimeout      time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// DatasetConfig selects and tunes the persistence backend.
type DatasetConfig struct {
	// Backend is "sqlite", "postgres" or "none".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the SQLite database file; ":memory:" is accepted.
	Path string `mapstructure:"path" yaml:"path"`
	// PostgresURL is the pgx connection string for the postgres backend.
	PostgresURL string `mapstructure:"postgres_url" yaml:"-"`
	// SanitizeSnapshots strips script content from stored HTML.
	SanitizeSnapshots bool `mapstructure:"sanitize_snapshots" yaml:"sanitize_snapshots"`
}

// EngineConfig tunes the perceive/decide/act loop.
type EngineConfig struct {
	// MaxSteps caps the objective loop.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// TargetConcurrency bounds concurrent one-shot perceptions.
	TargetConcurrency int `mapstructure:"target_concurrency" yaml:"target_concurrency"`
	// Pace is the minimum delay between navigations across the process.
	Pace time.Duration `mapstructure:"pace" yaml:"pace"`
	// ActionDelay is the settle wait after an executed action.
	ActionDelay time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
}

// NewDefaultConfig returns a Config populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; anything else is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers the default value of every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "percept.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.stabilize_timeout", "10s")
	v.SetDefault("browser.post_load_wait", "1s")

	// -- Perception --
	v.SetDefault("perception.max_elements", 100)
	v.SetDefault("perception.visible_text_cap", 3000)
	v.SetDefault("perception.js_hints", true)
	v.SetDefault("perception.screenshots", false)

	// -- Mutation --
	v.SetDefault("mutation.threshold", 0.05)
	v.SetDefault("mutation.timeout", "3s")
	v.SetDefault("mutation.interval", "250ms")

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 1024)
	v.SetDefault("llm.api_timeout", "60s")
	v.SetDefault("llm.max_attempts", 2)

	// -- Dataset --
	v.SetDefault("dataset.backend", "sqlite")
	v.SetDefault("dataset.path", "percept.db")
	v.SetDefault("dataset.sanitize_snapshots", true)

	// -- Engine --
	v.SetDefault("engine.max_steps", 20)
	v.SetDefault("engine.target_concurrency", 4)
	v.SetDefault("engine.pace", "1s")
	v.SetDefault("engine.action_delay", "500ms")
}

// NewConfigFromViper unmarshals and validates the configuration carried by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind sensitive values to environment variables explicitly; they never
	// come from the config file.
	v.BindEnv("llm.api_key", "PERCEPT_LLM_API_KEY", "GEMINI_API_KEY")
	v.BindEnv("dataset.postgres_url", "PERCEPT_DATASET_POSTGRES_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.PerceptionConfig.MaxElements <= 0 {
		return fmt.Errorf("perception.max_elements must be a positive integer")
	}
	if c.PerceptionConfig.VisibleTextCap <= 0 {
		return fmt.Errorf("perception.visible_text_cap must be a positive integer")
	}
	if c.MutationConfig.Threshold < 0 || c.MutationConfig.Threshold > 1 {
		return fmt.Errorf("mutation.threshold must be within [0, 1]")
	}
	if c.MutationConfig.Interval <= 0 {
		return fmt.Errorf("mutation.interval must be a positive duration")
	}
	if c.EngineConfig.MaxSteps <= 0 {
		return fmt.Errorf("engine.max_steps must be a positive integer")
	}
	if c.EngineConfig.TargetConcurrency <= 0 {
		return fmt.Errorf("engine.target_concurrency must be a positive integer")
	}
	switch c.DatasetConfig.Backend {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("dataset.backend must be one of sqlite, postgres, none (got %q)", c.DatasetConfig.Backend)
	}
	if c.DatasetConfig.Backend == "sqlite" && c.DatasetConfig.Path == "" {
		return fmt.Errorf("dataset.path is required for the sqlite backend")
	}
	if c.DatasetConfig.Backend == "postgres" && c.DatasetConfig.PostgresURL == "" {
		return fmt.Errorf("dataset.postgres_url is required for the postgres backend (PERCEPT_DATASET_POSTGRES_URL)")
	}
	return nil
}
