package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pidish/internal/daemonctl"
	"pidish/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run or control the printer daemon",
	}

	var runLevel string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground (owns the printer hardware)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if sock := ctx.socketPath(); sock != "" {
				cfg.Paths.SocketPath = sock
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: runLevel})
		},
	}
	runCmd.Flags().StringVar(&runLevel, "log-level", "", "Override logging.level")

	var startLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon in the background unless it is already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			launched, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath(),
				SocketPath: ctx.socketPath(),
				LogLevel:   startLevel,
			}, 10*time.Second)
			if err != nil {
				return err
			}
			if launched {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon started")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon already running")
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLevel, "log-level", "", "Override logging.level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon; the lift is homed and disabled first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg.Paths.SocketPath = ctx.socketPath()
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, 30*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	daemonCmd.AddCommand(runCmd, startCmd, stopCmd)
	return daemonCmd
}
