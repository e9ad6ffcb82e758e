package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"price-tracker/internal/app"
	"price-tracker/internal/config"
)

var (
	cleanupDays   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stored samples and alerts older than N days",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cleanupDays < config.MinCleanupDays || cleanupDays > config.MaxCleanupDays {
			return fmt.Errorf("--days must be between %d and %d", config.MinCleanupDays, config.MaxCleanupDays)
		}

		opts := app.CleanupOptions{
			Days:   cleanupDays,
			DryRun: cleanupDryRun,
		}

		return getApp().Cleanup(cmd.Context(), opts)
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Delete rows older than this many days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be deleted without writing")
}
