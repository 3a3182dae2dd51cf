package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// pollCmd runs one polling cycle over every eligible tuple.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one polling cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sched, err := a.newScheduler(ctx)
		if err != nil {
			return err
		}

		summary, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		if summary.Failed > 0 {
			return exitWith(1, errors.New("one or more tuples failed"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
