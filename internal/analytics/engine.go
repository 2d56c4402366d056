// Package analytics derives referee and communication metrics from manuscript timelines.
package analytics

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/normalize"
)

// DefaultReminderWindowDays is how long after a reminder a response still counts as prompted by it
const DefaultReminderWindowDays = 7

// Quality tags
const (
	QualityExcellent        = "excellent"
	QualityGood             = "good"
	QualityFair             = "fair"
	QualityPoor             = "poor"
	QualityInsufficientData = "insufficient_data"
)

var emailInText = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)

// Engine computes analytics. It holds no state between calls.
type Engine struct {
	ReminderWindowDays int
	Clock              func() time.Time
}

// NewEngine creates an engine with the given reminder window in days
func NewEngine(reminderWindowDays int) *Engine {
	if reminderWindowDays <= 0 {
		reminderWindowDays = DefaultReminderWindowDays
	}
	return &Engine{ReminderWindowDays: reminderWindowDays, Clock: time.Now}
}

// Reliability scores a referee from reminders received and responses sent
func Reliability(reminders, responses int) int {
	if responses < 1 {
		return 50
	}
	score := 100 - 20*reminders
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Quality tags a reliability score
func Quality(score, responses int) string {
	switch {
	case responses < 1:
		return QualityInsufficientData
	case score >= 80:
		return QualityExcellent
	case score >= 60:
		return QualityGood
	case score >= 40:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Analyze recomputes the report from scratch. The returned records are copies of manuscripts
// with referee Stats filled in; manuscripts itself is not modified.
func (e *Engine) Analyze(platform string, manuscripts []models.ManuscriptRecord) (models.AnalyticsReport, []models.ManuscriptRecord) {
	report := models.AnalyticsReport{
		Platform:    platform,
		GeneratedAt: e.now(),
		Referees:    []models.RefereeMetrics{},
		Spans:       []models.CommunicationSpan{},
	}

	annotated := make([]models.ManuscriptRecord, 0, len(manuscripts))
	var latencies []float64
	var stamps []time.Time

	for _, m := range manuscripts {
		copied := m.Clone()
		for i := range copied.Referees {
			ref := &copied.Referees[i]
			metrics, latency := e.refereeMetrics(m, *ref)
			if latency > 0 {
				latencies = append(latencies, latency)
			}
			ref.Stats = &models.RefereeStats{
				ResponseTimeDays:  metrics.ResponseTimeDays,
				RemindersReceived: metrics.RemindersReceived,
				ResponsesSent:     metrics.ResponsesSent,
				ReliabilityScore:  metrics.ReliabilityScore,
				Quality:           metrics.Quality,
			}
			report.Referees = append(report.Referees, metrics)
		}
		annotated = append(annotated, copied)

		report.Spans = append(report.Spans, span(m))
		for _, ev := range m.Timeline {
			if ev.Parsed() {
				stamps = append(stamps, *ev.Timestamp)
			}
		}
	}

	report.Pattern = pattern(stamps)
	report.ResponseDistribution = distribution(latencies)
	report.ReminderEffectiveness = e.effectiveness(manuscripts)
	return report, annotated
}

func (e *Engine) refereeMetrics(m models.ManuscriptRecord, ref models.RefereeRecord) (models.RefereeMetrics, float64) {
	metrics := models.RefereeMetrics{
		ManuscriptID: m.ID,
		RefereeName:  ref.Name,
		RefereeKey:   normalize.NameKey(ref.Name),
	}

	var invited, agreed *time.Time
	for _, ev := range m.Timeline {
		if !eventConcerns(ev, ref) {
			continue
		}
		switch {
		case ev.Kind == models.EventReminder:
			metrics.RemindersReceived++
		case ev.Kind.IsResponse():
			metrics.ResponsesSent++
		}
		if !ev.Parsed() {
			continue
		}
		if ev.Kind == models.EventInvitation && invited == nil {
			invited = ev.Timestamp
		}
		if ev.Kind == models.EventAgreement && agreed == nil {
			agreed = ev.Timestamp
		}
	}

	var latency float64
	if invited != nil && agreed != nil && agreed.After(*invited) {
		latency = agreed.Sub(*invited).Hours() / 24
		metrics.ResponseTimeDays = round2(latency)
	}
	metrics.ReliabilityScore = Reliability(metrics.RemindersReceived, metrics.ResponsesSent)
	metrics.Quality = Quality(metrics.ReliabilityScore, metrics.ResponsesSent)
	return metrics, latency
}

// effectiveness counts reminders followed within the window by an agreement or report
// from the reminded referee, or from the same actor when no referee matches
func (e *Engine) effectiveness(manuscripts []models.ManuscriptRecord) models.ReminderEffectiveness {
	window := time.Duration(e.window()) * 24 * time.Hour
	var out models.ReminderEffectiveness

	for _, m := range manuscripts {
		for i, ev := range m.Timeline {
			if ev.Kind != models.EventReminder || !ev.Parsed() {
				continue
			}
			out.TotalReminders++

			target, matched := reminded(m, ev)
			deadline := ev.Timestamp.Add(window)
			for _, next := range m.Timeline[i+1:] {
				if !next.Parsed() || !next.Timestamp.After(*ev.Timestamp) || next.Timestamp.After(deadline) {
					continue
				}
				if next.Kind != models.EventAgreement && next.Kind != models.EventReportSubmission {
					continue
				}
				if (matched && eventConcerns(next, target)) || (!matched && sameActor(ev, next)) {
					out.FollowedByResponse++
					break
				}
			}
		}
	}

	if out.TotalReminders > 0 {
		out.Rate = round2(float64(out.FollowedByResponse) / float64(out.TotalReminders))
	}
	return out
}

func (e *Engine) window() int {
	if e.ReminderWindowDays <= 0 {
		return DefaultReminderWindowDays
	}
	return e.ReminderWindowDays
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock().UTC()
}

func reminded(m models.ManuscriptRecord, ev models.TimelineEvent) (models.RefereeRecord, bool) {
	for _, r := range m.Referees {
		if eventConcerns(ev, r) {
			return r, true
		}
	}
	return models.RefereeRecord{}, false
}

// eventConcerns matches an event to a referee: by exact email when both sides carry one,
// otherwise by the referee's last name appearing as a word in the actor or text.
func eventConcerns(ev models.TimelineEvent, ref models.RefereeRecord) bool {
	emails := emailInText.FindAllString(ev.Actor+" "+ev.RawText, -1)
	if ref.Email != nil && *ref.Email != "" && len(emails) > 0 {
		for _, e := range emails {
			if strings.EqualFold(e, *ref.Email) {
				return true
			}
		}
		return false
	}

	_, last := normalize.SplitName(ref.Name)
	if len(last) < 2 {
		return false
	}
	haystack := " " + normalize.NameKey(ev.Actor) + " " + normalize.NameKey(ev.RawText) + " "
	return strings.Contains(haystack, " "+last+" ")
}

func sameActor(a, b models.TimelineEvent) bool {
	return a.Actor != "" && strings.EqualFold(a.Actor, b.Actor)
}

func span(m models.ManuscriptRecord) models.CommunicationSpan {
	s := models.CommunicationSpan{ManuscriptID: m.ID, EventCount: len(m.Timeline)}
	for _, ev := range m.Timeline {
		if !ev.Parsed() {
			s.Unparsed++
			continue
		}
		ts := *ev.Timestamp
		if s.FirstEvent == nil || ts.Before(*s.FirstEvent) {
			s.FirstEvent = &ts
		}
		if s.LastEvent == nil || ts.After(*s.LastEvent) {
			s.LastEvent = &ts
		}
	}
	if s.FirstEvent != nil {
		s.SpanDays = round2(s.LastEvent.Sub(*s.FirstEvent).Hours() / 24)
	}
	return s
}

// pattern finds the most common weekday and hour; ties go to the earliest
func pattern(stamps []time.Time) models.CommunicationPattern {
	p := models.CommunicationPattern{Samples: len(stamps)}
	if len(stamps) == 0 {
		return p
	}

	var weekdays [7]int
	var hours [24]int
	for _, ts := range stamps {
		ts = ts.UTC()
		weekdays[ts.Weekday()]++
		hours[ts.Hour()]++
	}

	peakDay := time.Sunday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if weekdays[d] > weekdays[peakDay] {
			peakDay = d
		}
	}
	peakHour := 0
	for h := 1; h < 24; h++ {
		if hours[h] > hours[peakHour] {
			peakHour = h
		}
	}
	p.PeakWeekday = &peakDay
	p.PeakHour = &peakHour
	return p
}

func distribution(latencies []float64) models.ResponseDistribution {
	d := models.ResponseDistribution{Count: len(latencies)}
	if len(latencies) == 0 {
		return d
	}
	d.MinDays, d.MaxDays = latencies[0], latencies[0]
	var sum float64
	for _, l := range latencies {
		sum += l
		d.MinDays = math.Min(d.MinDays, l)
		d.MaxDays = math.Max(d.MaxDays, l)
	}
	d.AvgDays = round2(sum / float64(len(latencies)))
	d.MinDays = round2(d.MinDays)
	d.MaxDays = round2(d.MaxDays)
	return d
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
