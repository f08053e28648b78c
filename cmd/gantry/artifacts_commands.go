package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gantry/internal/catalog"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	artifactsCmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and maintain the artifact catalog",
	}
	artifactsCmd.AddCommand(newArtifactsListCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsReconcileCommand(ctx))
	artifactsCmd.AddCommand(newArtifactsRemoveCommand(ctx))
	return artifactsCmd
}

func newArtifactsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := catalog.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			artifacts, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, artifacts)
			}
			if len(artifacts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No artifacts recorded yet.")
				return nil
			}

			headers := []string{"ID", "TITLE", "SIZE", "ACQUIRED", "PATH"}
			rows := make([][]string, 0, len(artifacts))
			for _, artifact := range artifacts {
				rows = append(rows, []string{
					artifact.ID,
					artifact.Title,
					formatBytes(artifact.SizeBytes),
					formatWhen(artifact.AcquiredAt),
					artifact.Path,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{
				alignLeft, alignLeft, alignRight, alignLeft, alignLeft,
			}))
			return nil
		},
	}
}

func newArtifactsReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Sync catalog records with the download directory",
		Long: "Walks the download directory, adopts disc images that have no record, and\n" +
			"drops records whose file no longer exists. Files are never deleted.",
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

			result, err := store.Reconcile(cmd.Context(), cfg, nil, logger)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reconciled: %d adopted, %d pruned, %d unchanged\n",
				len(result.Added), len(result.Removed), result.Kept)
			return nil
		},
	}
}

func newArtifactsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an artifact record",
		Long:  "Removes the catalog record only. The file on disk is untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := catalog.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no artifact %s in catalog", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed record for %s\n", args[0])
			return nil
		},
	}
}
