package models

import "time"

// RefereeMetrics are the per-referee analytics of one manuscript
type RefereeMetrics struct {
	ManuscriptID      string  `json:"manuscript_id"`
	RefereeName       string  `json:"referee_name"`
	RefereeKey        string  `json:"referee_key"`
	ResponseTimeDays  float64 `json:"response_time_days"`
	RemindersReceived int     `json:"reminders_received"`
	ResponsesSent     int     `json:"responses_sent"`
	ReliabilityScore  int     `json:"reliability_score"`
	Quality           string  `json:"quality"`
}

// CommunicationSpan is the time between the first and last parsed event of a manuscript
type CommunicationSpan struct {
	ManuscriptID string     `json:"manuscript_id"`
	FirstEvent   *time.Time `json:"first_event,omitempty"`
	LastEvent    *time.Time `json:"last_event,omitempty"`
	SpanDays     float64    `json:"span_days"`
	EventCount   int        `json:"event_count"`
	Unparsed     int        `json:"unparsed"`
}

// CommunicationPattern summarizes when communication happens
type CommunicationPattern struct {
	PeakWeekday *time.Weekday `json:"peak_weekday,omitempty"`
	PeakHour    *int          `json:"peak_hour,omitempty"`
	Samples     int           `json:"samples"`
}

// ResponseDistribution summarizes invitation to acceptance latency
type ResponseDistribution struct {
	Count   int     `json:"count"`
	AvgDays float64 `json:"avg_days"`
	MinDays float64 `json:"min_days"`
	MaxDays float64 `json:"max_days"`
}

// ReminderEffectiveness is the share of reminders followed by a timely response
type ReminderEffectiveness struct {
	TotalReminders     int     `json:"total_reminders"`
	FollowedByResponse int     `json:"followed_by_response"`
	Rate               float64 `json:"rate"`
}

// AnalyticsReport is derived from the current timelines on every run and never mutated incrementally
type AnalyticsReport struct {
	Platform              string                `json:"platform"`
	GeneratedAt           time.Time             `json:"generated_at"`
	Referees              []RefereeMetrics      `json:"referees"`
	Spans                 []CommunicationSpan   `json:"spans"`
	Pattern               CommunicationPattern  `json:"pattern"`
	ResponseDistribution  ResponseDistribution  `json:"response_distribution"`
	ReminderEffectiveness ReminderEffectiveness `json:"reminder_effectiveness"`
}
