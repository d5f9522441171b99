package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/percept-cli/internal/observability"
)

// newAgentCmd creates and configures the `agent` command.
func newAgentCmd() *cobra.Command {
	var (
		objective string
		maxSteps  int
	)

	agentCmd := &cobra.Command{
		Use:   "agent <target>",
		Short: "Drives a perceive-decide-act loop against a target until the objective resolves",
		Long: `Agent opens the target and repeatedly perceives the page, asks the model
for the next action, executes it and waits for the page to settle, until
the model reports the objective complete or impossible, or the step cap is
reached. Every state and step is recorded in the dataset for later export.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := observability.GetLogger()

			if cmd.Flags().Changed("max-steps") {
				cfg.SetEngineMaxSteps(maxSteps)
			}

			target := ensureScheme(args[0])

			comps, err := buildComponents(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer comps.Shutdown(ctx)

			log.Info("Starting objective run.",
				zap.String("target", target),
				zap.String("objective", objective),
				zap.Int("max_steps", cfg.EngineConfig.MaxSteps),
			)

			run, runErr := comps.Engine.RunObjective(ctx, target, objective)
			if run != nil {
				fmt.Printf("\nRun %s finished: %s after %d steps.\n", run.ID, run.Status, run.Steps)
				fmt.Printf("To export it, run: percept report --run %s\n", run.ID)
			}
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					log.Warn("Run aborted by signal.")
					return fmt.Errorf("run aborted by user signal")
				}
				return runErr
			}
			return nil
		},
	}

	agentCmd.Flags().StringVarP(&objective, "objective", "O", "", "Natural-language objective for the run. (Required)")
	agentCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Step cap for the action loop. (Overrides config/env)")
	_ = agentCmd.MarkFlagRequired("objective")

	return agentCmd
}
