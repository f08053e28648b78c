package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gantry/internal/device"
)

func newVolumesCommand(ctx *commandContext) *cobra.Command {
	volumesCmd := &cobra.Command{
		Use:   "volumes",
		Short: "List removable volumes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			volumes, err := device.NewLister().List(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, volumes)
			}
			if len(volumes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No removable volumes mounted.")
				return nil
			}

			headers := []string{"MOUNT", "LABEL", "FS", "TOTAL", "FREE"}
			rows := make([][]string, 0, len(volumes))
			for _, vol := range volumes {
				rows = append(rows, []string{
					vol.MountPath,
					vol.Label,
					vol.FSType,
					formatBytes(int64(vol.TotalBytes)),
					formatBytes(int64(vol.FreeBytes)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{
				alignLeft, alignLeft, alignLeft, alignRight, alignRight,
			}))
			return nil
		},
	}

	volumesCmd.AddCommand(newVolumeGamesCommand(ctx))
	return volumesCmd
}

func newVolumeGamesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "games <mount>",
		Short: "List disc images already on a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			vol, err := device.NewLister().Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			games, err := device.ScanGames(vol, cfg)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, games)
			}
			if len(games) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No games found on %s.\n", vol.MountPath)
				return nil
			}

			headers := []string{"ID", "TITLE", "SIZE", "PATH"}
			rows := make([][]string, 0, len(games))
			for _, game := range games {
				rows = append(rows, []string{
					game.ID,
					game.Title,
					formatBytes(game.SizeBytes),
					game.ImagePath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{
				alignLeft, alignLeft, alignRight, alignLeft,
			}))
			return nil
		},
	}
}
