package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/api"
)

func newRequestCommand(ctx *commandContext) *cobra.Command {
	requestCmd := &cobra.Command{
		Use:   "request",
		Short: "Manage content requests",
	}

	requestCmd.AddCommand(newRequestNewCommand(ctx))
	requestCmd.AddCommand(newRequestListCommand(ctx))
	requestCmd.AddCommand(newRequestShowCommand(ctx))
	requestCmd.AddCommand(newRequestProcessCommand(ctx))
	requestCmd.AddCommand(newRequestActionCommand(ctx, "approve", "Approve a request in qa and publish it",
		func(client *api.Client, cmd *cobra.Command, id string) (*api.RequestView, error) {
			return client.Approve(cmd.Context(), id)
		}))
	requestCmd.AddCommand(newRequestActionCommand(ctx, "cancel", "Cancel a request",
		func(client *api.Client, cmd *cobra.Command, id string) (*api.RequestView, error) {
			return client.Cancel(cmd.Context(), id)
		}))
	requestCmd.AddCommand(newRequestActionCommand(ctx, "rollback", "Move a request one stage backwards",
		func(client *api.Client, cmd *cobra.Command, id string) (*api.RequestView, error) {
			return client.Rollback(cmd.Context(), id)
		}))

	return requestCmd
}

func newRequestNewCommand(ctx *commandContext) *cobra.Command {
	var requestType string
	var title string
	var metaFlags []string
	var inputJSON string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Submit a new content request",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			metadata, err := parseMetadata(metaFlags)
			if err != nil {
				return err
			}
			taskInput, err := parseTaskInput(inputJSON)
			if err != nil {
				return err
			}

			detail, err := client.CreateRequest(cmd.Context(), api.CreateRequestInput{
				RequestType: requestType,
				Title:       title,
				Metadata:    metadata,
				TaskInput:   taskInput,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created request %s (%s)\n", detail.Request.ID, detail.Request.RequestType)
			fmt.Fprintln(out, renderTaskTable(detail.Tasks, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&requestType, "type", "t", "", "Request type (video_ad, social_post, blog_article)")
	cmd.Flags().StringVar(&title, "title", "", "Request title")
	cmd.Flags().StringArrayVarP(&metaFlags, "meta", "m", nil, "Metadata entry as key=value (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input", "", "Task input overrides as a JSON object")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newRequestListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List content requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			requests, err := client.ListRequests(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(requests) == 0 {
				fmt.Fprintln(out, "No requests found")
				return nil
			}

			colorize := shouldColorize(out)
			tbl := newTable(col("ID"), col("TYPE"), col("TITLE"), col("STATUS"), col("UPDATED"))
			for _, req := range requests {
				tbl.row(
					req.ID,
					req.RequestType,
					req.Title,
					colorizeStatus(req.Status, colorize),
					formatAge(req.UpdatedAt),
				)
			}
			fmt.Fprintln(out, tbl.render())
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newRequestShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a request and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			detail, err := client.GetRequest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			req := detail.Request

			fmt.Fprintln(out, sectionHeader(req.Title, colorize))
			fmt.Fprintln(out, detailLine("ID", req.ID))
			fmt.Fprintln(out, detailLine("Type", req.RequestType))
			fmt.Fprintln(out, detailLine("Status", colorizeStatus(req.Status, colorize)))
			fmt.Fprintln(out, detailLine("Created", formatTimestamp(req.CreatedAt)))
			fmt.Fprintln(out, detailLine("Updated", formatTimestamp(req.UpdatedAt)))
			for key, value := range req.Metadata {
				fmt.Fprintln(out, detailLine(displayName(key), value))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTaskTable(detail.Tasks, colorize))
			return nil
		},
	}
}

func newRequestProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <request-id>",
		Short: "Trigger an orchestration pass for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := client.Process(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case result.Skipped:
				fmt.Fprintf(out, "Request %s is already being processed\n", result.RequestID)
			case result.Stalled:
				fmt.Fprintf(out, "Request %s stalled at %s on task %q\n", result.RequestID, result.FinalStatus, result.BlockedOn)
			case result.RetryScheduled:
				fmt.Fprintf(out, "Request %s at %s; retry scheduled", result.RequestID, result.FinalStatus)
				if result.NextRetryAt != nil {
					fmt.Fprintf(out, " for %s", result.NextRetryAt.Local().Format(time.Kitchen))
				}
				fmt.Fprintln(out)
			case result.Waiting:
				fmt.Fprintf(out, "Request %s at %s; waiting on the automation engine\n", result.RequestID, result.FinalStatus)
			default:
				fmt.Fprintf(out, "Request %s at %s after %d task(s)\n", result.RequestID, result.FinalStatus, result.TasksRun)
			}
			return nil
		},
	}
}

type requestAction func(client *api.Client, cmd *cobra.Command, id string) (*api.RequestView, error)

func newRequestActionCommand(ctx *commandContext, use, short string, action requestAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			view, err := action(client, cmd, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Request %s is now %s\n", view.ID, colorizeStatus(view.Status, shouldColorize(out)))
			return nil
		},
	}
}

func renderTaskTable(tasks []api.TaskView, colorize bool) string {
	tbl := newTable(numCol("#"), col("TASK"), col("ROLE"), col("STATUS"), numCol("RETRIES"), col("DETAIL"))
	for _, task := range tasks {
		detail := "-"
		switch {
		case task.ErrorMessage != "":
			detail = task.ErrorMessage
		case task.OutputURL != "":
			detail = task.OutputURL
		case task.CorrelationID != "":
			detail = "dispatched " + task.CorrelationID
		}
		tbl.row(
			fmt.Sprintf("%d", task.Sequence),
			task.TaskName,
			displayName(task.AgentRole),
			colorizeStatus(task.Status, colorize),
			fmt.Sprintf("%d", task.RetryCount),
			detail,
		)
	}
	return tbl.render()
}

func parseMetadata(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q (expected key=value)", entry)
		}
		metadata[key] = strings.TrimSpace(value)
	}
	return metadata, nil
}

func parseTaskInput(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		return nil, fmt.Errorf("parse --input: %w", err)
	}
	return input, nil
}
