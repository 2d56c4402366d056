package commands

import (
	"fmt"

	"github.com/editorialops/referee-monitor/internal/notifications"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	deadlinesPlatform string
	deadlinesText     bool
)

func init() {
	deadlinesCmd.Flags().StringVarP(&deadlinesPlatform, "platform", "p", "", "check only this platform")
	deadlinesCmd.Flags().BoolVar(&deadlinesText, "text", false, "print the plain text digest instead of a table")
	rootCmd.AddCommand(deadlinesCmd)
}

var deadlinesCmd = &cobra.Command{
	Use:   "deadlines",
	Short: "Lists overdue and due soon reviews from the stored snapshots.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(deadlinesPlatform)
		if err != nil {
			return err
		}
		svc, _, err := newService(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Platform", "Manuscript", "Referee", "Deadline"})

		for _, p := range cfg.Platforms {
			alert, err := svc.DeadlineAlert(cmd.Context(), p.Name)
			if err != nil {
				return err
			}
			if alert == nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: no snapshot yet\n", p.Name)
				continue
			}
			if deadlinesText {
				if !alert.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), notifications.BuildDeadlineDigest(alert).Text())
				}
				continue
			}

			for _, o := range alert.Overdue {
				t.AppendRow(table.Row{p.Name, o.ManuscriptID, o.RefereeName, dayCount(o.DaysOverdue) + " overdue"})
			}
			for _, a := range alert.Approaching {
				due := "due today"
				if a.DaysRemaining > 0 {
					due = "due in " + dayCount(a.DaysRemaining)
				}
				t.AppendRow(table.Row{p.Name, a.ManuscriptID, a.RefereeName, due})
			}
		}

		if !deadlinesText {
			t.SetStyle(table.StyleRounded)
			t.Render()
		}
		return nil
	},
}
