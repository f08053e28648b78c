package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gantry/internal/catalog"
	"gantry/internal/device"
	"gantry/internal/progress"
)

func newCopyCommand(ctx *commandContext) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "copy <artifact-id> <mount>",
		Short: "Copy an artifact onto a removable volume",
		Long: "Streams the artifact into the volume's games directory under a\n" +
			"\"Title [ID]\" folder, then verifies the copy before reporting success.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := catalog.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			vol, err := device.NewLister().Stat(cmd.Context(), args[1])
			if err != nil {
				return err
			}

			hub := progress.NewHub(0)
			events, cancelSub := hub.Subscribe()
			defer cancelSub()
			mgr := device.NewManager(cfg, store, hub, logger)

			bar := newTransferBar(args[0], -1)
			barDone := make(chan struct{})
			go func() {
				defer close(barDone)
				for ev := range events {
					if ev.Kind != progress.KindCopyProgress {
						continue
					}
					if ev.Total > 0 && ev.Total != bar.GetMax64() {
						bar.ChangeMax64(ev.Total)
					}
					_ = bar.Set64(ev.Bytes)
				}
			}()

			job, copyErr := mgr.Copy(cmd.Context(), args[0], vol, device.CopyOptions{Overwrite: overwrite})
			cancelSub()
			<-barDone
			_ = bar.Finish()

			if copyErr != nil {
				return copyErr
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %s to %s (%s, verified: %s)\n",
				job.ArtifactID, job.DestPath, formatBytes(job.Total), yesNo(cfg.Device.VerifyAfterCopy))
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace the artifact if it is already on the volume")
	return cmd
}
