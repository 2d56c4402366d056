package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(snapshotsCmd)
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Prints the stored snapshot of every platform.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig("")
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		platforms, err := store.Platforms(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Platform", "Extracted", "Manuscripts", "Referees"})

		for _, name := range platforms {
			snap, err := store.Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			if snap == nil {
				continue
			}
			referees := 0
			for _, entry := range snap.Manuscripts {
				referees += len(entry.Referees)
			}
			t.AppendRow(table.Row{name, snap.ExtractionTime.UTC().Format(time.RFC3339), len(snap.Manuscripts), referees})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}
