package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pidish/internal/ipc"
	"pidish/internal/logging"
	"pidish/internal/serialbridge"
)

func newSerialCommand(ctx *commandContext) *cobra.Command {
	var port string
	var baud int
	cmd := &cobra.Command{
		Use:   "serial",
		Short: "Bridge a serial pendant to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			serialCfg := cfg.Serial
			if cmd.Flags().Changed("port") {
				serialCfg.Port = port
			}
			if cmd.Flags().Changed("baud") {
				serialCfg.Baud = baud
			}

			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return ctx.withClient(func(client *ipc.Client) error {
				p, err := serialbridge.Open(serialCfg)
				if err != nil {
					return err
				}
				defer p.Close()
				go func() {
					<-runCtx.Done()
					p.Close()
				}()
				logger.Info("serial bridge running", logging.String("port", serialCfg.Port), logging.Int("baud", serialCfg.Baud))
				err = serialbridge.New(p, client, cfg.PollInterval(), logger).Run(runCtx)
				if runCtx.Err() != nil {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Serial device (overrides serial.port)")
	cmd.Flags().IntVarP(&baud, "baud", "b", 0, "Baud rate (overrides serial.baud)")
	return cmd
}
