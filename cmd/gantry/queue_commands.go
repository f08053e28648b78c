package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gantry/internal/engine"
	"gantry/internal/transfer"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the download queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked downloads",
		Long: "Lists downloads tracked by this invocation's queue. Downloads run inside\n" +
			"the `gantry fetch` process that started them, so a fetch running in another\n" +
			"terminal holds the state lock and is not visible here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(runCtx context.Context, eng *engine.Engine) error {
				tasks := eng.Queue().Tasks()
				if ctx.jsonOutput() {
					return writeJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty. Start a download with `gantry fetch <id> <url>`.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTaskTable(tasks))
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued or active download",
		Long: "Cancels a download in this invocation's queue. A download started by\n" +
			"`gantry fetch` in another terminal holds the state lock; cancel it there\n" +
			"with Ctrl+C.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(runCtx context.Context, eng *engine.Engine) error {
				if err := eng.Queue().Cancel(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
				return nil
			})
		},
	}
}

func renderTaskTable(tasks []transfer.Task) string {
	headers := []string{"ID", "TITLE", "STATE", "ATTEMPT", "PROGRESS", "SIZE"}
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			task.ID,
			task.Title,
			string(task.State),
			fmt.Sprintf("%d", task.Attempt),
			percent(task.Bytes, task.Total),
			formatBytes(task.Bytes),
		})
	}
	return renderTable(headers, rows, []columnAlignment{
		alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight,
	})
}
