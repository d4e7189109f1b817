package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pidish/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(line string) { fmt.Fprintln(out, line) }
			if follow {
				return logs.Follow(cmd.Context(), cfg.LogPath(), lines, 250*time.Millisecond, emit)
			}
			tail, _, err := logs.Last(cfg.LogPath(), lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				emit(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	return cmd
}
