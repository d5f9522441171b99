package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/percept-cli/api/schemas"
	"github.com/xkilldash9x/percept-cli/internal/dataset"
	"github.com/xkilldash9x/percept-cli/internal/observability"
	"github.com/xkilldash9x/percept-cli/internal/report"
)

// newReportCmd creates and configures the `report` command.
func newReportCmd() *cobra.Command {
	var (
		runID  string
		format string
		output string
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Exports a recorded run's perception states as JSON or XML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo, err := dataset.New(ctx, cfg.DatasetConfig, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("opening dataset: %w", err)
			}
			defer repo.Close()

			run, err := repo.GetRun(ctx, runID)
			if err != nil {
				if errors.Is(err, schemas.ErrRunNotFound) {
					return fmt.Errorf("run %s not found in the dataset", runID)
				}
				return fmt.Errorf("loading run %s: %w", runID, err)
			}
			states, err := repo.GetStates(ctx, runID)
			if err != nil {
				return fmt.Errorf("loading states of run %s: %w", runID, err)
			}

			if err := report.Write(format, output, run, states); err != nil {
				return err
			}
			if output != "" && output != "stdout" {
				fmt.Printf("Report written to %s\n", output)
			}
			return nil
		},
	}

	reportCmd.Flags().StringVar(&runID, "run", "", "Run ID to export. (Required)")
	reportCmd.Flags().StringVarP(&format, "format", "f", "json", "Report format: json or xml.")
	reportCmd.Flags().StringVarP(&output, "output", "o", "", "Output file path; stdout when unset.")
	_ = reportCmd.MarkFlagRequired("run")

	return reportCmd
}
