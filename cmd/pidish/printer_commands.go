package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pidish/internal/printer"
	"pidish/internal/serialbridge"
)

// simpleVerbs are commands that take no parameters.
var simpleVerbs = []struct {
	use   string
	verb  string
	short string
}{
	{"home", "home", "Move the lift to the home position"},
	{"blank", "blank", "Show a black frame"},
	{"focus", "focus", "Show the focus image"},
	{"reset-zero", "reset_zero", "Declare the current lift position home"},
	{"setup-resin", "setup_resin", "Park the build plate at the resin surface"},
	{"pause", "pause", "Pause the running job after the current layer"},
	{"unpause", "unpause", "Resume a paused job"},
	{"abort", "abort", "Abort the running job"},
}

func newPrinterCommands(ctx *commandContext) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(simpleVerbs)+4)
	for _, sv := range simpleVerbs {
		verb := sv.verb
		cmds = append(cmds, &cobra.Command{
			Use:   sv.use,
			Short: sv.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.send(cmd, map[string]string{printer.KeyCommand: verb})
			},
		})
	}
	return append(cmds,
		newLiftCommand(ctx),
		newPrintCommand(ctx),
		newCalibrateCommand(ctx),
		newSendCommand(ctx),
	)
}

func newLiftCommand(ctx *commandContext) *cobra.Command {
	var amount, speed int
	cmd := &cobra.Command{
		Use:       "lift <up|down>",
		Short:     "Move the lift; omitted amount and speed reuse the last values",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			wire := map[string]string{
				printer.KeyCommand:   "lift_move",
				printer.KeyDirection: strings.ToLower(args[0]),
			}
			if cmd.Flags().Changed("amount") {
				wire[printer.KeyLiftAmount] = strconv.Itoa(amount)
			}
			if cmd.Flags().Changed("speed") {
				wire[printer.KeyLiftSpeed] = strconv.Itoa(speed)
			}
			return ctx.send(cmd, wire)
		},
	}
	cmd.Flags().IntVarP(&amount, "amount", "a", 0, "Distance in microns")
	cmd.Flags().IntVarP(&speed, "speed", "s", 0, "Speed in microns per second")
	return cmd
}

func newPrintCommand(ctx *commandContext) *cobra.Command {
	var exposure float64
	cmd := &cobra.Command{
		Use:   "print <object>",
		Short: "Print a slice directory (relative names resolve under paths.objects_dir)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire := map[string]string{
				printer.KeyCommand:    "print_object",
				printer.KeyObjectPath: args[0],
			}
			if cmd.Flags().Changed("exposure") {
				wire[printer.KeyExposure] = formatNumber(exposure)
			}
			return ctx.send(cmd, wire)
		},
	}
	cmd.Flags().Float64VarP(&exposure, "exposure", "e", 0, "Base exposure in seconds")
	return cmd
}

func newCalibrateCommand(ctx *commandContext) *cobra.Command {
	var minTime, maxTime float64
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Print the exposure calibration sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wire := map[string]string{printer.KeyCommand: "calibration"}
			if cmd.Flags().Changed("min") {
				wire[printer.KeyCaliMinTime] = formatNumber(minTime)
			}
			if cmd.Flags().Changed("max") {
				wire[printer.KeyCaliMaxTime] = formatNumber(maxTime)
			}
			return ctx.send(cmd, wire)
		},
	}
	cmd.Flags().Float64Var(&minTime, "min", 0, "Shortest exposure in seconds")
	cmd.Flags().Float64Var(&maxTime, "max", 0, "Longest exposure in seconds")
	return cmd
}

func newSendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command=verb> [key=value...]",
		Short: "Send a raw wire command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wire, err := serialbridge.ParseLine(strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("parse command: %w", err)
			}
			return ctx.send(cmd, wire)
		},
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
