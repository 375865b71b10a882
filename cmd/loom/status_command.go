package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, sectionHeader("Daemon", colorize))
			fmt.Fprintln(out, detailLine("Running", yesNo(status.Running)))
			fmt.Fprintln(out, detailLine("Database", status.DBPath))
			fmt.Fprintln(out, detailLine("Lock file", status.LockFilePath))

			fmt.Fprintln(out)
			fmt.Fprintln(out, sectionHeader("Requests", colorize))
			if len(status.RequestCounts) == 0 {
				fmt.Fprintln(out, detailLine("Total", "0"))
			} else {
				statuses := make([]string, 0, len(status.RequestCounts))
				for s := range status.RequestCounts {
					statuses = append(statuses, s)
				}
				sort.Strings(statuses)
				for _, s := range statuses {
					fmt.Fprintln(out, detailLine(displayName(s), fmt.Sprintf("%d", status.RequestCounts[s])))
				}
			}

			if len(status.Breakers) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, sectionHeader("Circuit breakers", colorize))
				tbl := newTable(col("DEPENDENCY"), col("STATE"), numCol("FAILURES"), col("LAST FAILURE"))
				for _, b := range status.Breakers {
					last := "-"
					if b.LastFailure != nil {
						last = formatAge(*b.LastFailure)
					}
					tbl.row(b.Name, b.State, fmt.Sprintf("%d", b.Failures), last)
				}
				fmt.Fprintln(out, tbl.render())
			}

			if len(status.StaleDispatches) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, sectionHeader("Stale dispatches", colorize))
				tbl := newTable(col("REQUEST"), col("TASK"), col("CORRELATION"))
				for _, task := range status.StaleDispatches {
					tbl.row(task.RequestID, task.TaskName, task.CorrelationID)
				}
				fmt.Fprintln(out, tbl.render())
			}
			return nil
		},
	}
}
