package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildforge/wincore/internal/config"
)

// configCmd prints every recognized system config key. The repository
// password is always redacted.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print recognized system configuration keys and values",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		for _, key := range config.Keys {
			val, ok, err := a.cfg.Get(ctx, key)
			if err != nil {
				return err
			}
			switch {
			case !ok:
				fmt.Printf("%-26s <unset>\n", key)
			case key == config.KeyJFrogPass:
				fmt.Printf("%-26s ********\n", key)
			default:
				fmt.Printf("%-26s %s\n", key, val)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
