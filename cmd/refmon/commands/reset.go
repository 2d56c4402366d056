package commands

import (
	"fmt"

	"github.com/editorialops/referee-monitor/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset <platform>",
	Short: "Deletes the stored snapshot of a platform.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("")
		if err != nil {
			return err
		}
		if _, err := config.Select(cfg.Platforms, args); err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if err := store.Reset(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot of %s removed\n", args[0])
		return nil
	},
}
