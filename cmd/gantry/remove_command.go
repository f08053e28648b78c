package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gantry/internal/catalog"
	"gantry/internal/device"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <artifact-id> <mount>",
		Short: "Remove a game from a removable volume",
		Long: "Deletes the game's folder from the volume. Empty parent directories are\n" +
			"pruned when cleanup is enabled; the library copy stays untouched.",
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
			mgr := device.NewManager(cfg, store, nil, logger)
			if err := mgr.Remove(cmd.Context(), args[0], vol); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", args[0], vol.MountPath)
			return nil
		},
	}
}
