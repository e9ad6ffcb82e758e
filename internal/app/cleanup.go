package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Cleanup deletes samples and alerts older than the requested number of days.
func (a *App) Cleanup(ctx context.Context, opts CleanupOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot cleanup")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -opts.Days)

	if opts.DryRun {
		stats, err := store.CollectStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "dry run: %d total entries, cutoff %s\n", stats.TotalEntries, cutoff.Format(time.RFC3339))
		return nil
	}

	removed, err := store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}

	a.Logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("cleanup complete")
	fmt.Fprintf(os.Stdout, "removed %d samples older than %s\n", removed, cutoff.Format(time.RFC3339))
	return nil
}
