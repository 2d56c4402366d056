package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	runPlatform string
	runNotify   bool
)

func init() {
	runCmd.Flags().StringVarP(&runPlatform, "platform", "p", "", "run only this platform")
	runCmd.Flags().BoolVar(&runNotify, "notify", false, "send the run report to the configured notifiers")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the configured platforms once and prints a summary.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(runPlatform)
		if err != nil {
			return err
		}
		svc, _, err := newService(cmd.Context(), cfg, runNotify)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Platform", "Manuscripts", "Referees", "New", "Transitions", "Reports", "Overdue", "Due soon", "Conflicts", "Recoveries", "Duration"})

		var errs []error
		for _, p := range cfg.Platforms {
			result, err := svc.RunPlatform(cmd.Context(), p)
			if err != nil {
				errs = append(errs, err)
				t.AppendRow(table.Row{p.Name, "failed", err.Error()})
				continue
			}
			t.AppendRow(table.Row{
				result.Platform,
				result.Stats.Manuscripts,
				result.Stats.Referees,
				len(result.Diff.NewManuscripts),
				len(result.Diff.StatusTransitions),
				len(result.Diff.NewReports),
				len(result.Diff.OverdueReviews),
				len(result.Diff.ApproachingDeadlines),
				len(result.Conflicts),
				result.Stats.Recoveries,
				result.Stats.Duration.Round(time.Millisecond).String(),
			})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()

		if len(errs) > 0 {
			return fmt.Errorf("%d of %d platforms failed: %w", len(errs), len(cfg.Platforms), errors.Join(errs...))
		}
		return nil
	},
}
