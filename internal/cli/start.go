package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// startCmd runs continuous polling until SIGINT or SIGTERM.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run continuous polling until signalled",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		// Refuses to start without credentials.
		sched, err := a.newScheduler(ctx)
		if err != nil {
			return err
		}
		return sched.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
