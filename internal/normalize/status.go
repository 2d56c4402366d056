package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/editorialops/referee-monitor/internal/models"
)

// StatusFragment is what a referee status cell tells us
type StatusFragment struct {
	Status        models.RefereeStatus
	InvitedDate   *time.Time
	DueDate       *time.Time
	SubmittedDate *time.Time
	// Notes lists parts that could not be parsed with confidence
	Notes []string
}

type statusRule struct {
	pattern *regexp.Regexp
	status  models.RefereeStatus
}

// Longer phrases come first so "report submitted" wins over "submitted" style substrings.
var statusRules = []statusRule{
	{regexp.MustCompile(`(?i)\b(report|review)\s+(submitted|received|returned|completed|uploaded)\b`), models.StatusReportSubmitted},
	{regexp.MustCompile(`(?i)\bsubmitted\s+(a\s+|the\s+)?(report|review)\b`), models.StatusReportSubmitted},
	{regexp.MustCompile(`(?i)\b(declined|decline|unable to review|unavailable)\b`), models.StatusDeclined},
	{regexp.MustCompile(`(?i)\b(overdue|past due|late report)\b`), models.StatusOverdue},
	{regexp.MustCompile(`(?i)\b(accepted|agreed|agreed to review|awaiting report)\b`), models.StatusAccepted},
	{regexp.MustCompile(`(?i)\b(invited|invitation sent|awaiting response|contacted|pending)\b`), models.StatusInvited},
	{regexp.MustCompile(`(?i)\b(complete|completed|returned)\b`), models.StatusReportSubmitted},
}

// dateLabel matches "Invited: <date>"-style markers inside status text
var dateLabel = regexp.MustCompile(`(?i)\b(invited|due|agreed|accepted|submitted|returned|received)\s*:`)

// ParseStatusFragment reads status keyword and embedded dates from a status cell.
// Keyword recognition does not depend on dates being present; missing or unparsable
// dates stay nil.
func ParseStatusFragment(text string) StatusFragment {
	text = CleanText(text)
	frag := StatusFragment{Status: models.StatusUnknown}
	if text == "" {
		return frag
	}

	labels := dateLabel.FindAllStringSubmatchIndex(text, -1)
	var remainder strings.Builder
	cursor := 0
	impliedAccepted := false

	for i, loc := range labels {
		remainder.WriteString(text[cursor:loc[0]])
		remainder.WriteString(" ")

		end := len(text)
		if i+1 < len(labels) {
			end = labels[i+1][0]
		}
		label := strings.ToLower(text[loc[2]:loc[3]])
		raw := strings.TrimSpace(text[loc[1]:end])
		cursor = end

		date, rest := leadingDate(raw)
		remainder.WriteString(rest)
		remainder.WriteString(" ")
		if date == nil {
			frag.Notes = append(frag.Notes, fmt.Sprintf("unparsable %s date %q", label, raw))
			continue
		}

		switch label {
		case "invited":
			frag.InvitedDate = date
		case "due":
			frag.DueDate = date
		case "agreed", "accepted":
			impliedAccepted = true
		case "submitted", "returned", "received":
			frag.SubmittedDate = date
		}
	}
	remainder.WriteString(text[cursor:])

	keywords := remainder.String()
	for _, rule := range statusRules {
		if rule.pattern.MatchString(keywords) {
			frag.Status = rule.status
			return frag
		}
	}

	switch {
	case frag.SubmittedDate != nil:
		frag.Status = models.StatusReportSubmitted
	case impliedAccepted:
		frag.Status = models.StatusAccepted
	case frag.InvitedDate != nil:
		frag.Status = models.StatusInvited
	default:
		frag.Notes = append(frag.Notes, fmt.Sprintf("unrecognized status %q", text))
	}
	return frag
}

// leadingDate parses the longest prefix of raw that is a date and returns the leftover text.
// Strict layouts are tried on every prefix before the lenient fallback.
func leadingDate(raw string) (*time.Time, string) {
	words := strings.Fields(raw)
	for _, parse := range []func(string) (time.Time, bool){parseStrict, ParseTimestamp} {
		for n := len(words); n > 0; n-- {
			if t, ok := parse(strings.Join(words[:n], " ")); ok {
				return &t, strings.Join(words[n:], " ")
			}
		}
	}
	return nil, raw
}
