package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"pidish/internal/ipc"
)

func newObjectsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "objects",
		Short: "List printable slice directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Objects()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Objects) == 0 {
					fmt.Fprintf(out, "No objects under %s\n", resp.Root)
					return nil
				}
				rows := make([][]string, 0, len(resp.Objects))
				for _, obj := range resp.Objects {
					rows = append(rows, []string{obj.Name, strconv.Itoa(obj.Slices), obj.Path})
				}
				fmt.Fprint(out, renderTable([]string{"Object", "Slices", "Path"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
