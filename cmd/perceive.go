package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/observability"
)

// newPerceiveCmd creates and configures the `perceive` command.
func newPerceiveCmd() *cobra.Command {
	var (
		asJSON      bool
		save        bool
		maxElements int
		screenshots bool
		backend     string
		dbPath      string
	)

	perceiveCmd := &cobra.Command{
		Use:   "perceive [targets...]",
		Short: "Runs one perception cycle per target and prints the element inventory",
		Long: `Perceive navigates to each target, extracts and ranks its interactive
elements, binds stable identifiers into the live DOM, and prints the
resulting inventory. The default output is the compact per-element listing
the planner consumes; --json emits the full state documents instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := observability.GetLogger()

			// One-shot sweeps persist only when asked to; agent runs always
			// record through the configured backend.
			if !save && !cmd.Flags().Changed("backend") {
				cfg.SetDatasetBackend("none")
			}
			if cmd.Flags().Changed("backend") {
				cfg.SetDatasetBackend(backend)
			}
			if cmd.Flags().Changed("db") {
				cfg.SetDatasetPath(dbPath)
			}
			if cmd.Flags().Changed("max-elements") {
				cfg.PerceptionConfig.MaxElements = maxElements
			}
			if cmd.Flags().Changed("screenshots") {
				cfg.PerceptionConfig.Screenshots = screenshots
			}

			targets := make([]string, len(args))
			for i, t := range args {
				targets[i] = ensureScheme(t)
			}

			comps, err := buildComponents(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer comps.Shutdown(ctx)

			log.Info("Starting perception sweep.",
				zap.Strings("targets", targets),
				zap.Int("concurrency", cfg.EngineConfig.TargetConcurrency),
			)

			states, err := comps.Engine.PerceiveTargets(ctx, targets)
			if err != nil {
				return err
			}

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			var failed int
			for i, st := range states {
				if st == nil {
					failed++
					continue
				}
				if asJSON {
					if err := enc.Encode(st); err != nil {
						return fmt.Errorf("encoding state for %s: %w", targets[i], err)
					}
					continue
				}
				fmt.Printf("== %s (%d elements, state %s)\n", st.URL, len(st.Elements), st.StateID)
				fmt.Println(st.CompactString())
			}

			if failed == len(targets) {
				return fmt.Errorf("all %d targets failed perception", failed)
			}
			if failed > 0 {
				log.Warn("Some targets failed perception.", zap.Int("failed", failed))
			}
			return nil
		},
	}

	perceiveCmd.Flags().BoolVar(&asJSON, "json", false, "Print full perception states as JSON.")
	perceiveCmd.Flags().BoolVar(&save, "save", false, "Persist the perceived states to the configured dataset.")
	perceiveCmd.Flags().IntVar(&maxElements, "max-elements", 0, "Cap on ranked elements per state. (Overrides config/env)")
	perceiveCmd.Flags().BoolVar(&screenshots, "screenshots", false, "Store a full-page screenshot with each state.")
	perceiveCmd.Flags().StringVar(&backend, "backend", "", "Dataset backend: sqlite, postgres or none. (Overrides config/env)")
	perceiveCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file for persisted states. (Overrides config/env)")

	return perceiveCmd
}
