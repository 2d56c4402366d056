package models

import "time"

// ConflictFlag is one referee/author overlap found on a manuscript
type ConflictFlag struct {
	ManuscriptID string        `json:"manuscript_id"`
	RefereeName  string        `json:"referee_name"`
	RefereeKey   string        `json:"referee_key"`
	Match        ConflictMatch `json:"match"`
}

// RunStats counts what a platform run processed
type RunStats struct {
	Manuscripts        int           `json:"manuscripts"`
	Referees           int           `json:"referees"`
	LowConfidence      int           `json:"low_confidence"`
	UnknownStatuses    int           `json:"unknown_statuses"`
	UnparsedTimestamps int           `json:"unparsed_timestamps"`
	Rejected           int           `json:"rejected"`
	Recoveries         int           `json:"recoveries"`
	Duration           time.Duration `json:"duration"`
}

// RunResult is everything one successful platform run produced. Manuscripts carry referee Stats.
type RunResult struct {
	Platform    string             `json:"platform"`
	StartedAt   time.Time          `json:"started_at"`
	Manuscripts []ManuscriptRecord `json:"manuscripts"`
	Diff        StateDiff          `json:"diff"`
	Analytics   AnalyticsReport    `json:"analytics"`
	Conflicts   []ConflictFlag     `json:"conflicts"`
	Stats       RunStats           `json:"stats"`
}

// DeadlineAlert lists reviews that are overdue or due soon, computed from the last snapshot
type DeadlineAlert struct {
	Platform    string                `json:"platform"`
	GeneratedAt time.Time             `json:"generated_at"`
	Overdue     []OverdueReview       `json:"overdue"`
	Approaching []ApproachingDeadline `json:"approaching"`
}

// Empty reports whether the alert has nothing to say
func (a DeadlineAlert) Empty() bool {
	return len(a.Overdue) == 0 && len(a.Approaching) == 0
}
