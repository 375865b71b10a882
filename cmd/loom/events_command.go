package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "events <request-id>",
		Short: "Show the timeline for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			events, err := client.Events(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}

			tbl := newTable(col("TIME"), col("EVENT"), col("TASK"), col("MESSAGE"))
			for _, event := range events {
				task := event.TaskName
				if task == "" {
					task = "-"
				}
				tbl.row(
					formatTimestamp(event.CreatedAt),
					event.EventType,
					task,
					event.Message,
				)
			}
			fmt.Fprintln(out, tbl.render())
			return nil
		},
	}
}
