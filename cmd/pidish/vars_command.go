package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pidish/internal/ipc"
	"pidish/internal/variables"
)

func newVarsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "vars",
		Short: "Show the remembered job parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Variables()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Values)
				}
				rows := make([][]string, 0, len(resp.Values))
				for _, key := range variables.Keys() {
					if value, ok := resp.Values[key]; ok {
						rows = append(rows, []string{key, value})
					}
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Variable", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
