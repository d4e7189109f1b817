package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pidish/internal/config"
	"pidish/internal/history"
	"pidish/internal/ipc"
	"pidish/internal/preflight"
	"pidish/internal/printer"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show printer and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snapshot := buildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if asJSON {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd, cfg, snapshot)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// buildStatusSnapshot asks the daemon, falling back to the history database
// for job counts when it is not running.
func buildStatusSnapshot(ctx context.Context, socket string, cfg *config.Config) *ipc.StatusResponse {
	client, err := ipc.Dial(socket)
	if err == nil {
		defer client.Close()
		if resp, err := client.Status(); err == nil {
			return resp
		}
	}

	resp := &ipc.StatusResponse{HistoryPath: cfg.HistoryPath(), VariablesPath: cfg.VariablesPath(), LockPath: cfg.LockPath()}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return resp
	}
	defer store.Close()
	if stats, err := store.Stats(queryCtx); err == nil {
		resp.JobStats = stats
	}
	return resp
}

func renderStatus(cmd *cobra.Command, cfg *config.Config, st *ipc.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if st.Running {
		fmt.Fprintln(out, renderStatusLine("pidish", statusOK, fmt.Sprintf("Running (pid %d)", st.PID), colorize))
		fmt.Fprintln(out, renderField("Started", formatTime(st.StartedAt)))
		if st.Connector != "" {
			kind := statusOK
			if st.Connector != "connected" {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Connector", kind, st.Connector, colorize))
		}
	} else {
		fmt.Fprintln(out, renderStatusLine("pidish", statusWarn, "Not running (run `pidish daemon start`)", colorize))
	}
	fmt.Fprintln(out)

	if st.Running {
		for _, line := range renderSectionHeader("Printer", colorize) {
			fmt.Fprintln(out, line)
		}
		p := st.Printer
		fmt.Fprintln(out, renderStatusLine(p.Title, printerKind(p.State), p.Detail, colorize))
		if p.Layers > 0 {
			fmt.Fprintln(out, renderField("Layer", fmt.Sprintf("%d of %d", p.Layer, p.Layers)))
		}
		if p.JobID != "" {
			fmt.Fprintln(out, renderField("Job", p.JobID))
		}
		fmt.Fprintln(out, renderField("Lift", formatMicrons(p.PositionMicrons)))
		fmt.Fprintln(out)
	}

	for _, line := range renderSectionHeader("System", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, r := range preflight.RunAll(cfg) {
		fmt.Fprintln(out, renderStatusLine(r.Name, checkKind(r), r.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := jobStatRows(st.JobStats)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No jobs recorded")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func jobStatRows(stats map[string]int) [][]string {
	order := []string{
		history.OutcomeRunning,
		string(printer.OutcomeCompleted),
		string(printer.OutcomeAborted),
		string(printer.OutcomeFault),
		string(printer.OutcomeRejected),
	}
	keys := make([]string, 0, len(stats))
	for k := range stats {
		if !slices.Contains(order, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	var rows [][]string
	for _, k := range append(order, keys...) {
		if n := stats[k]; n > 0 {
			rows = append(rows, []string{humanize(k), strconv.Itoa(n)})
		}
	}
	return rows
}

func checkKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Optional:
		return statusWarn
	default:
		return statusError
	}
}
