package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gantry/internal/engine"
	"gantry/internal/progress"
	"gantry/internal/transfer"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var title string
	var now bool

	cmd := &cobra.Command{
		Use:   "fetch <id> <url>",
		Short: "Download a disc image into the library",
		Long: "Queues a download and waits for it to finish, showing live progress.\n" +
			"Archives are unpacked automatically and the result is recorded in the catalog.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(runCtx context.Context, eng *engine.Engine) error {
				return runFetch(cmd, ctx, runCtx, eng, transfer.Request{
					ID:        args[0],
					Title:     title,
					SourceURL: args[1],
				}, now)
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Display title used for file and folder names")
	cmd.Flags().BoolVar(&now, "now", false, "Jump ahead of any waiting downloads")
	return cmd
}

func runFetch(cmd *cobra.Command, ctx *commandContext, runCtx context.Context, eng *engine.Engine, req transfer.Request, front bool) error {
	events, cancelSub := eng.Hub().Subscribe()
	defer cancelSub()

	queue := eng.Queue()
	enqueue := queue.Enqueue
	if front {
		enqueue = queue.EnqueueFront
	}
	task, err := enqueue(runCtx, req)
	if err != nil {
		if errors.Is(err, transfer.ErrAlreadyAcquired) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is already in the library\n", req.ID)
			return nil
		}
		return err
	}

	bar := newTransferBar(task.ID, -1)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			_ = queue.Cancel(task.ID)
			final := awaitTerminal(queue, task.ID)
			_ = bar.Finish()
			return reportFetch(cmd, ctx, final)
		case ev := <-events:
			if ev.TaskID != task.ID {
				continue
			}
			if ev.Kind == progress.KindTaskProgress {
				if ev.Total > 0 && ev.Total != bar.GetMax64() {
					bar.ChangeMax64(ev.Total)
				}
				_ = bar.Set64(ev.Bytes)
			}
		case <-ticker.C:
			snapshot, snapErr := queue.Task(task.ID)
			if snapErr != nil {
				return snapErr
			}
			if snapshot.State.Terminal() {
				_ = bar.Finish()
				return reportFetch(cmd, ctx, snapshot)
			}
		}
	}
}

// awaitTerminal waits briefly for a cancelled task to settle.
func awaitTerminal(queue *transfer.Queue, id string) transfer.Task {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := queue.Task(id)
		if err != nil {
			break
		}
		if task.State.Terminal() {
			return task
		}
		time.Sleep(50 * time.Millisecond)
	}
	task, _ := queue.Task(id)
	return task
}

func reportFetch(cmd *cobra.Command, ctx *commandContext, task transfer.Task) error {
	if ctx.jsonOutput() {
		if err := writeJSON(cmd, task); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	switch task.State {
	case transfer.StateSucceeded:
		if !ctx.jsonOutput() {
			fmt.Fprintf(out, "Downloaded %s to %s (%s, %d attempt(s))\n",
				task.ID, task.TargetPath, formatBytes(task.Bytes), task.Attempt)
		}
		return nil
	case transfer.StateCancelled:
		return context.Canceled
	default:
		return fmt.Errorf("download %s failed after %d attempt(s): %s", task.ID, task.Attempt, task.Err)
	}
}
