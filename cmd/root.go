// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/config"
	"github.com/xkilldash9x/percept-cli/internal/observability"
)

var (
	cfgFile  string
	logLevel string
	headless bool

	// cfg is populated by PersistentPreRunE before any RunE executes.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "percept",
	Short: "Percept turns live web pages into ranked, addressable element inventories.",
	Long: `Percept drives a headless browser against web pages and distills each
one into a perception state: a ranked list of interactive elements, each
carrying a stable identifier bound into the live DOM. States feed either a
one-shot inventory (perceive) or an objective-driven action loop (agent).`,
	// Version is set at build time. See cmd/version.go.
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is a development convenience; deployed environments set
		// variables directly.
		_ = godotenv.Load()

		v := viper.New()
		if err := initializeConfig(v); err != nil {
			return err
		}

		loaded, err := config.NewConfigFromViper(v)
		if err != nil {
			// Fall back to a minimal logger so the failure is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"})
			return err
		}
		cfg = loaded

		if cmd.Flags().Changed("headless") {
			cfg.SetBrowserHeadless(headless)
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LoggerConfig.Level = logLevel
		}

		observability.InitializeLogger(cfg.LoggerConfig)
		observability.GetLogger().Debug("Starting percept", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command under a signal-aware context. Ctrl-C cancels
// in-flight browser work instead of killing the process mid-teardown.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer observability.Sync()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		observability.Sync()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./percept.yaml, then ~/.percept/percept.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "run the browser headless (overrides config)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newPerceiveCmd())
	rootCmd.AddCommand(newAgentCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newLogsCmd())
}

// initializeConfig layers defaults, the config file and PERCEPT_* environment
// variables onto v, in ascending precedence.
func initializeConfig(v *viper.Viper) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".percept"))
		}
		v.SetConfigName("percept")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PERCEPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment carry the run.
	}
	return nil
}

// ensureScheme defaults bare hostnames to https so targets are navigable.
func ensureScheme(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return "https://" + target
}
