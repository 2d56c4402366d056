package models

import (
	"strings"
	"time"
)

// RefereeStatus is the lifecycle state of a referee on a manuscript
type RefereeStatus string

const (
	StatusInvited         RefereeStatus = "invited"
	StatusAccepted        RefereeStatus = "accepted"
	StatusDeclined        RefereeStatus = "declined"
	StatusReportSubmitted RefereeStatus = "report_submitted"
	StatusOverdue         RefereeStatus = "overdue"
	StatusUnknown         RefereeStatus = "unknown"
)

// ParseRefereeStatus maps a stored status label back to the enum.
// Anything unrecognized is Unknown.
func ParseRefereeStatus(s string) RefereeStatus {
	switch RefereeStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusInvited:
		return StatusInvited
	case StatusAccepted:
		return StatusAccepted
	case StatusDeclined:
		return StatusDeclined
	case StatusReportSubmitted:
		return StatusReportSubmitted
	case StatusOverdue:
		return StatusOverdue
	default:
		return StatusUnknown
	}
}

// EventKind classifies a timeline event
type EventKind string

const (
	EventInvitation       EventKind = "invitation"
	EventAgreement        EventKind = "agreement"
	EventDecline          EventKind = "decline"
	EventReminder         EventKind = "reminder"
	EventReportSubmission EventKind = "report_submission"
	EventDecision         EventKind = "decision"
	EventOther            EventKind = "other"
)

// IsResponse reports whether the event kind is a referee replying to the editor.
func (k EventKind) IsResponse() bool {
	return k == EventAgreement || k == EventDecline || k == EventReportSubmission
}

// TimelineEvent is one timestamped communication or workflow action on a manuscript
type TimelineEvent struct {
	Timestamp    *time.Time `json:"timestamp,omitempty"` // UTC, nil when RawTimestamp could not be parsed
	RawTimestamp string     `json:"raw_timestamp"`
	Actor        string     `json:"actor"` // email or free-text name
	Kind         EventKind  `json:"kind"`
	RawText      string     `json:"raw_text"`
}

// Parsed reports whether the event carries a usable timestamp.
func (e TimelineEvent) Parsed() bool {
	return e.Timestamp != nil
}

// AuthorRecord is one author on a manuscript
type AuthorRecord struct {
	Name          string   `json:"name"`
	Email         *string  `json:"email,omitempty"`
	Institution   *string  `json:"institution,omitempty"`
	Department    *string  `json:"department,omitempty"`
	Country       *string  `json:"country,omitempty"`
	LowConfidence bool     `json:"low_confidence,omitempty"`
	Notes         []string `json:"notes,omitempty"`
}

// ConflictMatch records the author a referee was matched against
type ConflictMatch struct {
	AuthorName  string  `json:"author_name"`
	AuthorEmail *string `json:"author_email,omitempty"`
	MatchedBy   string  `json:"matched_by"` // "email" or "name"
}

// RefereeStats holds metrics derived from the manuscript timeline
type RefereeStats struct {
	ResponseTimeDays  float64 `json:"response_time_days"`
	RemindersReceived int     `json:"reminders_received"`
	ResponsesSent     int     `json:"responses_sent"`
	ReliabilityScore  int     `json:"reliability_score"`
	Quality           string  `json:"quality"`
}

// RefereeRecord is one referee on a manuscript
type RefereeRecord struct {
	Name                string          `json:"name"`
	Email               *string         `json:"email,omitempty"`
	Institution         *string         `json:"institution,omitempty"`
	Department          *string         `json:"department,omitempty"`
	Country             *string         `json:"country,omitempty"`
	Status              RefereeStatus   `json:"status"`
	InvitedDate         *time.Time      `json:"invited_date,omitempty"`
	DueDate             *time.Time      `json:"due_date,omitempty"`
	SubmittedDate       *time.Time      `json:"submitted_date,omitempty"`
	ReminderCount       int             `json:"reminder_count"`
	ReportAvailable     bool            `json:"report_available"`
	ConflictWithAuthors bool            `json:"conflict_with_authors"`
	ConflictMatches     []ConflictMatch `json:"conflict_matches,omitempty"`
	LowConfidence       bool            `json:"low_confidence,omitempty"`
	Notes               []string        `json:"notes,omitempty"`
	Stats               *RefereeStats   `json:"stats,omitempty"`
}

// ManuscriptRecord is the canonical form of one manuscript extracted from a platform
type ManuscriptRecord struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Authors        []AuthorRecord  `json:"authors"`
	Referees       []RefereeRecord `json:"referees"`
	SubmissionDate *time.Time      `json:"submission_date,omitempty"`
	Status         string          `json:"status"`
	Documents      []string        `json:"documents,omitempty"`
	Timeline       []TimelineEvent `json:"timeline,omitempty"`
	LowConfidence  bool            `json:"low_confidence,omitempty"`
	Notes          []string        `json:"notes,omitempty"`
}

// Clone returns a deep copy so consumers can annotate without mutating the source.
func (m ManuscriptRecord) Clone() ManuscriptRecord {
	out := m
	out.Authors = append([]AuthorRecord(nil), m.Authors...)
	out.Referees = make([]RefereeRecord, len(m.Referees))
	for i, r := range m.Referees {
		r.ConflictMatches = append([]ConflictMatch(nil), r.ConflictMatches...)
		r.Notes = append([]string(nil), r.Notes...)
		if r.Stats != nil {
			stats := *r.Stats
			r.Stats = &stats
		}
		out.Referees[i] = r
	}
	out.Documents = append([]string(nil), m.Documents...)
	out.Timeline = append([]TimelineEvent(nil), m.Timeline...)
	out.Notes = append([]string(nil), m.Notes...)
	return out
}
