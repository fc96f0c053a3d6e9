package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepLimit int

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Inspect and clean up orphaned objects",
}

var orphansSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Retry deletion of objects left behind by failed uploads",
	Long: `Objects whose metadata write failed and whose compensating delete also
failed are kept in the orphan registry. sweep retries their deletion and
removes each successfully deleted entry from the registry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := app.Storage.SweepOrphans(cmd.Context(), sweepLimit)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "attempted %d, removed %d, failed %d\n",
			report.Attempted, report.Removed, report.Failed)
		return err
	},
}

func init() {
	orphansSweepCmd.Flags().IntVar(&sweepLimit, "limit", 100, "Maximum number of registry entries to process")
	orphansCmd.AddCommand(orphansSweepCmd)
}
