package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pidish/internal/history"
	"pidish/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent print and calibration jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Jobs)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Kind", "Object", "Outcome", "Layers", "Exposure", "Started", "Duration"},
					historyRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum jobs to list (0 for all)")
	historyCmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	var showJSON bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobDescribe(args[0])
				if err != nil {
					return err
				}
				if showJSON {
					return writeJSON(cmd, resp.Job)
				}
				renderJob(cmd, resp.Job)
				return nil
			})
		},
	}
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", resp.Removed)
				return nil
			})
		},
	}

	historyCmd.AddCommand(showCmd, clearCmd)
	return historyCmd
}

func historyRows(jobs []history.Record) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			humanize(job.Kind),
			job.Object,
			humanize(job.Outcome),
			fmt.Sprintf("%d/%d", job.LayersDone, job.Layers),
			exposureText(job),
			formatTime(job.StartedAt),
			durationText(job.Duration()),
		})
	}
	return rows
}

func renderJob(cmd *cobra.Command, job history.Record) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderField("ID", job.ID))
	fmt.Fprintln(out, renderField("Kind", humanize(job.Kind)))
	fmt.Fprintln(out, renderField("Object", job.Object))
	if job.Path != "" {
		fmt.Fprintln(out, renderField("Path", job.Path))
	}
	fmt.Fprintln(out, renderField("Outcome", humanize(job.Outcome)))
	if job.Error != "" {
		fmt.Fprintln(out, renderField("Error", job.Error))
	}
	fmt.Fprintln(out, renderField("Layers", strconv.Itoa(job.LayersDone)+" of "+strconv.Itoa(job.Layers)))
	fmt.Fprintln(out, renderField("Exposure", exposureText(job)))
	fmt.Fprintln(out, renderField("Started", formatTime(job.StartedAt)))
	if job.FinishedAt != nil {
		fmt.Fprintln(out, renderField("Finished", formatTime(*job.FinishedAt)))
		fmt.Fprintln(out, renderField("Duration", durationText(job.Duration())))
	}
}

func exposureText(job history.Record) string {
	if job.ExposureMax > 0 {
		return formatSeconds(job.Exposure) + " - " + formatSeconds(job.ExposureMax)
	}
	return formatSeconds(job.Exposure)
}

func durationText(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
