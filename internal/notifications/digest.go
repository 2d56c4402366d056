package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/editorialops/referee-monitor/internal/analytics"
	"github.com/editorialops/referee-monitor/internal/models"
)

// Digest is a channel-neutral rendering of a notification
type Digest struct {
	Subject     string
	Title       string
	Summary     string
	GeneratedAt time.Time
	Facts       []TeamsFact
	Sections    []DigestSection
}

// DigestSection is one titled list of findings
type DigestSection struct {
	Title string
	Lines []string
}

func (d *Digest) add(title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	d.Sections = append(d.Sections, DigestSection{Title: title, Lines: lines})
}

// BuildRunDigest summarizes a platform run
func BuildRunDigest(result *models.RunResult) *Digest {
	titles := make(map[string]string, len(result.Manuscripts))
	for _, m := range result.Manuscripts {
		titles[m.ID] = m.Title
	}

	d := result.Diff
	digest := &Digest{
		Subject: fmt.Sprintf("Referee activity on %s (%d changes, %d overdue)",
			result.Platform, changeCount(d), len(d.OverdueReviews)),
		Title:       fmt.Sprintf("Referee Monitor - %s", result.Platform),
		GeneratedAt: d.ComputedAt,
		Summary: fmt.Sprintf("%d manuscripts checked: %d new, %d status changes, %d new reports",
			result.Stats.Manuscripts, len(d.NewManuscripts), len(d.StatusTransitions), len(d.NewReports)),
		Facts: []TeamsFact{
			{Name: "Manuscripts", Value: fmt.Sprintf("%d", result.Stats.Manuscripts)},
			{Name: "Referees", Value: fmt.Sprintf("%d", result.Stats.Referees)},
			{Name: "Overdue Reviews", Value: fmt.Sprintf("%d", len(d.OverdueReviews))},
			{Name: "Due Soon", Value: fmt.Sprintf("%d", len(d.ApproachingDeadlines))},
			{Name: "Reminder Effectiveness", Value: effectiveness(result.Analytics.ReminderEffectiveness)},
			{Name: "Avg Response", Value: fmt.Sprintf("%.1f days", result.Analytics.ResponseDistribution.AvgDays)},
		},
	}
	if result.Stats.LowConfidence > 0 {
		digest.Facts = append(digest.Facts, TeamsFact{
			Name:  "Low-confidence Fields",
			Value: fmt.Sprintf("%d", result.Stats.LowConfidence),
		})
	}

	var lines []string
	for _, id := range d.NewManuscripts {
		lines = append(lines, manuscriptLine(id, titles[id]))
	}
	digest.add("New Manuscripts", lines)

	lines = nil
	for _, t := range d.StatusTransitions {
		if t.NewReferee {
			lines = append(lines, fmt.Sprintf("%s: %s added as %s", t.ManuscriptID, t.RefereeName, t.NewStatus))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s %s -> %s", t.ManuscriptID, t.RefereeName, t.OldStatus, t.NewStatus))
	}
	digest.add("Status Changes", lines)

	lines = nil
	for _, r := range d.NewReports {
		lines = append(lines, fmt.Sprintf("%s: report from %s", r.ManuscriptID, r.RefereeName))
	}
	digest.add("New Reports", lines)

	digest.add("Overdue Reviews", overdueLines(d.OverdueReviews))
	digest.add("Due Soon", approachingLines(d.ApproachingDeadlines))

	lines = nil
	for _, c := range result.Conflicts {
		lines = append(lines, fmt.Sprintf("%s: referee %s matches author %s (by %s)",
			c.ManuscriptID, c.RefereeName, c.Match.AuthorName, c.Match.MatchedBy))
	}
	digest.add("Possible Conflicts of Interest", lines)

	lines = nil
	for _, r := range result.Analytics.Referees {
		if r.Quality != analytics.QualityPoor {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s, reliability %d after %d reminders",
			r.ManuscriptID, r.RefereeName, r.ReliabilityScore, r.RemindersReceived))
	}
	digest.add("Unresponsive Referees", lines)

	return digest
}

// BuildDeadlineDigest summarizes a deadline check
func BuildDeadlineDigest(alert *models.DeadlineAlert) *Digest {
	digest := &Digest{
		Subject: fmt.Sprintf("Referee deadlines on %s (%d overdue, %d due soon)",
			alert.Platform, len(alert.Overdue), len(alert.Approaching)),
		Title:       fmt.Sprintf("Referee Deadlines - %s", alert.Platform),
		GeneratedAt: alert.GeneratedAt,
		Summary:     fmt.Sprintf("%d reviews overdue, %d due soon", len(alert.Overdue), len(alert.Approaching)),
	}
	digest.add("Overdue Reviews", overdueLines(alert.Overdue))
	digest.add("Due Soon", approachingLines(alert.Approaching))
	return digest
}

func overdueLines(reviews []models.OverdueReview) []string {
	var lines []string
	for _, o := range reviews {
		lines = append(lines, fmt.Sprintf("%s: %s, %s overdue", o.ManuscriptID, o.RefereeName, days(o.DaysOverdue)))
	}
	return lines
}

func approachingLines(deadlines []models.ApproachingDeadline) []string {
	var lines []string
	for _, a := range deadlines {
		if a.DaysRemaining == 0 {
			lines = append(lines, fmt.Sprintf("%s: %s, due today", a.ManuscriptID, a.RefereeName))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s, due in %s", a.ManuscriptID, a.RefereeName, days(a.DaysRemaining)))
	}
	return lines
}

func manuscriptLine(id, title string) string {
	if title == "" {
		return id
	}
	return fmt.Sprintf("%s: %s", id, title)
}

func days(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

func effectiveness(r models.ReminderEffectiveness) string {
	if r.TotalReminders == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%% (%d/%d)", r.Rate*100, r.FollowedByResponse, r.TotalReminders)
}

func changeCount(d models.StateDiff) int {
	return len(d.NewManuscripts) + len(d.StatusTransitions) + len(d.NewReports)
}

// Text renders the digest as plain text
func (d *Digest) Text() string {
	var text strings.Builder

	text.WriteString(d.Title + "\n")
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", d.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(d.Summary + "\n")

	if len(d.Facts) > 0 {
		text.WriteString("\nSUMMARY\n")
		text.WriteString("=======\n")
		for _, f := range d.Facts {
			text.WriteString(fmt.Sprintf("%s: %s\n", f.Name, f.Value))
		}
	}

	for _, s := range d.Sections {
		heading := strings.ToUpper(s.Title)
		text.WriteString("\n" + heading + "\n")
		text.WriteString(strings.Repeat("=", len(heading)) + "\n")
		for _, line := range s.Lines {
			text.WriteString("- " + line + "\n")
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the Referee Monitor.\n")
	return text.String()
}
