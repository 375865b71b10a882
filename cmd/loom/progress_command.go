package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const progressBarWidth = 30

func newProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <request-id>",
		Short: "Show weighted completion for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			view, err := client.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, sectionHeader("Progress", colorize))
			fmt.Fprintln(out, detailLine("Request", view.RequestID))
			fmt.Fprintln(out, detailLine("Status", colorizeStatus(view.Status, colorize)))
			fmt.Fprintln(out, detailLine("Phase", displayName(view.Phase)))
			fmt.Fprintln(out, detailLine("Completion", fmt.Sprintf("%s %d%%", progressBar(view.Percent), view.Percent)))
			fmt.Fprintln(out, detailLine("Tasks", fmt.Sprintf("%d/%d completed, %d running, %d failed, %d pending",
				view.TasksCompleted, view.TasksTotal, view.TasksInProgress, view.TasksFailed, view.TasksPending)))
			if view.EstimatedSecondsRemaining != nil {
				remaining := time.Duration(*view.EstimatedSecondsRemaining * float64(time.Second))
				fmt.Fprintln(out, detailLine("Remaining", remaining.Round(time.Second).String()))
			}
			return nil
		},
	}
}

func progressBar(percent int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * progressBarWidth / 100
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", progressBarWidth-filled) + "]"
}
