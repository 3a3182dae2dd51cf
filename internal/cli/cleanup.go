package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/buildforge/wincore/internal/activity"
	"github.com/buildforge/wincore/internal/build"
	"github.com/buildforge/wincore/internal/retention"
)

// cleanupCmd runs retention for every active tuple once and purges expired
// activity rows. It needs no repository credentials.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old builds and expired activity log rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		configs, err := a.store.ActiveConfigs(ctx)
		if err != nil {
			return err
		}

		retain := retention.NewManager(a.store, a.cfg.MaxBuildsToKeep, a.activity, a.log, a.clock.Now)

		pruned := 0
		failures := 0
		for _, ac := range configs {
			tuple := build.Tuple{Component: ac.Component, Branch: ac.Branch}
			res, err := retain.Prune(ctx, tuple)
			if err != nil {
				a.activity.Tuple(ctx, activity.LevelError, activity.OpCleanup, tuple,
					build.Coordinate{}, 0, fmt.Sprintf("cleanup failed: %v", err))
				failures++
				continue
			}
			pruned += res.Marked
			if res.FailedPaths > 0 {
				failures++
			}
		}

		cutoff := a.clock.Now().AddDate(0, 0, -a.cfg.LogRetentionDays(ctx))
		purged, err := a.store.PurgeActivity(ctx, cutoff)
		if err != nil {
			a.log.Warn("failed to purge activity log", slog.String("error", err.Error()))
			failures++
		}

		fmt.Printf("pruned=%d purged_log_rows=%d failures=%d\n", pruned, purged, failures)
		if failures > 0 {
			return exitWith(1, errors.New("cleanup completed with failures"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
