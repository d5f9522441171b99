package cmd

import (
	"errors"
	"fmt"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

// newLogsCmd creates and configures the `logs` command.
func newLogsCmd() *cobra.Command {
	var follow bool

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Prints the JSON log file, optionally following new entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.LoggerConfig.LogFile
			if path == "" {
				return errors.New("file logging is disabled (logger.log_file is empty)")
			}

			t, err := tail.TailFile(path, tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("opening log file %s: %w", path, err)
			}
			defer t.Cleanup()

			// Stop tailing when the command context is canceled (Ctrl-C).
			go func() {
				<-cmd.Context().Done()
				_ = t.Stop()
			}()

			for line := range t.Lines {
				if line.Err != nil {
					return fmt.Errorf("reading log file: %w", line.Err)
				}
				fmt.Println(line.Text)
			}
			return nil
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep the file open and print new entries as they arrive.")

	return logsCmd
}
