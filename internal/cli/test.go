package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildforge/wincore/internal/jfrog"
)

// testCmd verifies the database and the artifact repository are reachable
// with the configured credentials.
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify database and artifact repository connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return exitWith(2, err)
		}
		defer a.Close()

		if err := a.store.Ping(ctx); err != nil {
			return exitWith(2, fmt.Errorf("database unreachable: %w", err))
		}
		fmt.Println("database: ok")

		client, err := a.newClient(ctx)
		if err != nil {
			// Missing credentials count as an auth failure.
			return exitWith(3, err)
		}
		if err := client.CheckAuth(ctx); err != nil {
			if errors.Is(err, jfrog.ErrUnauthorized) {
				return exitWith(3, fmt.Errorf("artifact repository rejected credentials: %w", err))
			}
			return exitWith(4, fmt.Errorf("artifact repository unreachable: %w", err))
		}
		fmt.Println("artifact repository: ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
