package cli

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/buildforge/wincore/internal/store"
)

// statusCmd prints each active tuple with its tracked coordinate and last
// download / extraction statuses.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show active tuples and their tracked builds",
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
		trackings, err := a.store.ListTracking(ctx)
		if err != nil {
			return err
		}

		byTuple := make(map[string]*store.Tracking, len(trackings))
		for _, tr := range trackings {
			byTuple[fmt.Sprintf("%d/%d", tr.ComponentID, tr.BranchID)] = tr
		}

		fmt.Printf("%-30s %-14s %-12s %-12s %-10s %s\n",
			"TUPLE", "BUILD", "DOWNLOAD", "EXTRACTION", "SIZE", "LAST ERROR")

		var totalSize int64
		tracked := 0
		for _, ac := range configs {
			key := fmt.Sprintf("%d/%d", ac.Component.ID, ac.Branch.ID)
			name := fmt.Sprintf("%s@%s", ac.Component.Name, ac.Branch.Name)
			tr, ok := byTuple[key]
			if !ok {
				fmt.Printf("%-30s %-14s %-12s %-12s %-10s\n", name, "-", "-", "-", "-")
				continue
			}
			tracked++
			totalSize += tr.SizeBytes
			fmt.Printf("%-30s %-14s %-12s %-12s %-10s %s\n",
				name, tr.Coordinate.String(),
				tr.DownloadStatus, tr.ExtractionStatus,
				units.HumanSize(float64(tr.SizeBytes)),
				tr.ErrorMessage)
		}
		fmt.Printf("\n%d active tuples, %d tracked, %s on latest builds\n",
			len(configs), tracked, units.HumanSize(float64(totalSize)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
