package analytics

import (
	"testing"
	"time"

	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(day, hour int) *time.Time {
	t := time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func ptr(s string) *string {
	return &s
}

func testManuscript() models.ManuscriptRecord {
	return models.ManuscriptRecord{
		ID: "M-1",
		Referees: []models.RefereeRecord{
			{Name: "Lee Chen", Email: ptr("lee@mit.edu"), Status: models.StatusReportSubmitted},
			{Name: "Sam Park", Status: models.StatusAccepted},
		},
		Timeline: []models.TimelineEvent{
			{Timestamp: at(1, 9), Actor: "Editor", Kind: models.EventInvitation, RawText: "Invitation sent to Lee Chen"},
			{Timestamp: at(1, 9), Actor: "Editor", Kind: models.EventInvitation, RawText: "Invitation sent to Sam Park"},
			{Timestamp: at(3, 9), Actor: "lee@mit.edu", Kind: models.EventAgreement, RawText: "Agreed to review"},
			{Timestamp: at(10, 9), Actor: "Editor", Kind: models.EventReminder, RawText: "Reminder to Sam Park"},
			{Timestamp: at(12, 15), Actor: "Sam Park", Kind: models.EventAgreement, RawText: "Agreed to review"},
			{Timestamp: at(20, 9), Actor: "Editor", Kind: models.EventReminder, RawText: "Reminder to Sam Park"},
			{RawTimestamp: "??", Actor: "lee@mit.edu", Kind: models.EventReportSubmission, RawText: "Report submitted"},
		},
	}
}

func testEngine() *Engine {
	e := NewEngine(7)
	e.Clock = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestReliability(t *testing.T) {
	tests := []struct {
		reminders int
		responses int
		score     int
		quality   string
	}{
		{0, 1, 100, QualityExcellent},
		{1, 1, 80, QualityExcellent},
		{2, 1, 60, QualityGood},
		{3, 2, 40, QualityFair},
		{4, 1, 20, QualityPoor},
		{5, 1, 0, QualityPoor},
		{7, 2, 0, QualityPoor},
		{0, 0, 50, QualityInsufficientData},
		{3, 0, 50, QualityInsufficientData},
	}

	for _, tt := range tests {
		score := Reliability(tt.reminders, tt.responses)
		assert.Equal(t, tt.score, score, "reminders=%d responses=%d", tt.reminders, tt.responses)
		assert.Equal(t, tt.quality, Quality(score, tt.responses))
	}
}

func TestEngine_Analyze_RefereeMetrics(t *testing.T) {
	report, annotated := testEngine().Analyze("sicon", []models.ManuscriptRecord{testManuscript()})

	require.Len(t, report.Referees, 2)
	lee, sam := report.Referees[0], report.Referees[1]

	assert.Equal(t, "chen lee", lee.RefereeKey)
	assert.Equal(t, 2.0, lee.ResponseTimeDays)
	assert.Equal(t, 0, lee.RemindersReceived)
	assert.Equal(t, 2, lee.ResponsesSent, "unparsed events still count as responses")
	assert.Equal(t, 100, lee.ReliabilityScore)
	assert.Equal(t, QualityExcellent, lee.Quality)

	assert.Equal(t, 11.25, sam.ResponseTimeDays)
	assert.Equal(t, 2, sam.RemindersReceived)
	assert.Equal(t, 1, sam.ResponsesSent)
	assert.Equal(t, 60, sam.ReliabilityScore)
	assert.Equal(t, QualityGood, sam.Quality)

	require.Len(t, annotated, 1)
	require.NotNil(t, annotated[0].Referees[1].Stats)
	assert.Equal(t, 60, annotated[0].Referees[1].Stats.ReliabilityScore)
}

func TestEngine_Analyze_DoesNotMutateInput(t *testing.T) {
	input := []models.ManuscriptRecord{testManuscript()}
	testEngine().Analyze("sicon", input)
	for _, r := range input[0].Referees {
		assert.Nil(t, r.Stats)
	}
}

func TestEngine_Analyze_Aggregates(t *testing.T) {
	report, _ := testEngine().Analyze("sicon", []models.ManuscriptRecord{testManuscript()})

	assert.Equal(t, "sicon", report.Platform)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), report.GeneratedAt)

	dist := report.ResponseDistribution
	assert.Equal(t, 2, dist.Count)
	assert.Equal(t, 6.63, dist.AvgDays)
	assert.Equal(t, 2.0, dist.MinDays)
	assert.Equal(t, 11.25, dist.MaxDays)

	eff := report.ReminderEffectiveness
	assert.Equal(t, 2, eff.TotalReminders)
	assert.Equal(t, 1, eff.FollowedByResponse)
	assert.Equal(t, 0.5, eff.Rate)

	require.Len(t, report.Spans, 1)
	span := report.Spans[0]
	assert.Equal(t, 19.0, span.SpanDays)
	assert.Equal(t, 7, span.EventCount)
	assert.Equal(t, 1, span.Unparsed)

	require.NotNil(t, report.Pattern.PeakWeekday)
	assert.Equal(t, time.Monday, *report.Pattern.PeakWeekday, "Monday and Wednesday tie, earliest wins")
	assert.Equal(t, 9, *report.Pattern.PeakHour)
	assert.Equal(t, 6, report.Pattern.Samples)
}

func TestEngine_AgreementBeforeInvitationIgnored(t *testing.T) {
	m := models.ManuscriptRecord{
		ID:       "M-2",
		Referees: []models.RefereeRecord{{Name: "Ana Diaz"}},
		Timeline: []models.TimelineEvent{
			{Timestamp: at(2, 9), Actor: "Ana Diaz", Kind: models.EventAgreement, RawText: "Agreed"},
			{Timestamp: at(5, 9), Actor: "Editor", Kind: models.EventInvitation, RawText: "Invitation to Ana Diaz"},
		},
	}

	report, _ := testEngine().Analyze("sicon", []models.ManuscriptRecord{m})
	require.Len(t, report.Referees, 1)
	assert.Equal(t, 0.0, report.Referees[0].ResponseTimeDays)
	assert.Equal(t, 0, report.ResponseDistribution.Count)
}

func TestEngine_EmptyInput(t *testing.T) {
	report, annotated := testEngine().Analyze("sicon", nil)
	assert.Empty(t, report.Referees)
	assert.Empty(t, annotated)
	assert.Nil(t, report.Pattern.PeakWeekday)
	assert.Equal(t, 0.0, report.ReminderEffectiveness.Rate)
}

func TestPattern_TiesBreakEarliest(t *testing.T) {
	tuesday := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)

	p := pattern([]time.Time{tuesday, monday})
	assert.Equal(t, time.Monday, *p.PeakWeekday)
	assert.Equal(t, 10, *p.PeakHour)
}
