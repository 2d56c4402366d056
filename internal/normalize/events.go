package normalize

import (
	"regexp"
	"sort"

	"github.com/editorialops/referee-monitor/internal/models"
)

type eventRule struct {
	pattern *regexp.Regexp
	kind    models.EventKind
}

// Reminders mention the invitation or the report, so they are matched first
var eventRules = []eventRule{
	{regexp.MustCompile(`(?i)\b(reminder|remind|reminding|follow[- ]?up|chase|chasing|gentle nudge)\b`), models.EventReminder},
	{regexp.MustCompile(`(?i)\b((report|review)\s+(submitted|received|uploaded|returned)|submitted\s+(a\s+|the\s+|my\s+)?(report|review)|referee report)\b`), models.EventReportSubmission},
	{regexp.MustCompile(`(?i)\b(declin(e|ed|es|ing)|unable to review|cannot review|not available to review)\b`), models.EventDecline},
	{regexp.MustCompile(`(?i)\b(agree|agreed|agrees|accepted|accept(s)? (the )?invitation|happy to review|willing to review)\b`), models.EventAgreement},
	{regexp.MustCompile(`(?i)\b(decision|accept manuscript|reject(ed)?|minor revision|major revision|revise and resubmit)\b`), models.EventDecision},
	{regexp.MustCompile(`(?i)\b(invitation|invite|invited|inviting|request to review)\b`), models.EventInvitation},
}

// ClassifyEvent recognizes the kind of a timeline event from its text
func ClassifyEvent(text string) models.EventKind {
	text = CleanText(text)
	for _, rule := range eventRules {
		if rule.pattern.MatchString(text) {
			return rule.kind
		}
	}
	return models.EventOther
}

// SortTimeline orders events ascending by parsed timestamp. Events without a timestamp
// follow the parsed ones in their original relative order.
func SortTimeline(events []models.TimelineEvent) []models.TimelineEvent {
	parsed := make([]models.TimelineEvent, 0, len(events))
	var unparsed []models.TimelineEvent
	for _, e := range events {
		if e.Parsed() {
			parsed = append(parsed, e)
		} else {
			unparsed = append(unparsed, e)
		}
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].Timestamp.Before(*parsed[j].Timestamp)
	})
	return append(parsed, unparsed...)
}
