package models

import "time"

// StatusTransition records a referee whose status changed between two runs
type StatusTransition struct {
	ManuscriptID string        `json:"manuscript_id"`
	RefereeKey   string        `json:"referee_key"`
	RefereeName  string        `json:"referee_name"`
	OldStatus    RefereeStatus `json:"old_status"`
	NewStatus    RefereeStatus `json:"new_status"`
	NewReferee   bool          `json:"new_referee,omitempty"`
	DetectedAt   time.Time     `json:"detected_at"`
}

// NewReport signals that a referee report became available
type NewReport struct {
	ManuscriptID string `json:"manuscript_id"`
	RefereeKey   string `json:"referee_key"`
	RefereeName  string `json:"referee_name"`
}

// OverdueReview is an accepted review past its due date
type OverdueReview struct {
	ManuscriptID string `json:"manuscript_id"`
	RefereeKey   string `json:"referee_key"`
	RefereeName  string `json:"referee_name"`
	DaysOverdue  int    `json:"days_overdue"`
}

// ApproachingDeadline is an accepted review due within the configured window
type ApproachingDeadline struct {
	ManuscriptID  string `json:"manuscript_id"`
	RefereeKey    string `json:"referee_key"`
	RefereeName   string `json:"referee_name"`
	DaysRemaining int    `json:"days_remaining"`
}

// StateDiff is the set of changes between the previous snapshot and the current run.
// It is computed fresh each run and never persisted.
type StateDiff struct {
	Platform             string                `json:"platform"`
	ComputedAt           time.Time             `json:"computed_at"`
	NewManuscripts       []string              `json:"new_manuscripts"`
	StatusTransitions    []StatusTransition    `json:"status_transitions"`
	NewReports           []NewReport           `json:"new_reports"`
	OverdueReviews       []OverdueReview       `json:"overdue_reviews"`
	ApproachingDeadlines []ApproachingDeadline `json:"approaching_deadlines"`
}

// HasChanges reports whether anything changed since the previous run.
// Overdue and approaching lists are point-in-time and do not count.
func (d StateDiff) HasChanges() bool {
	return len(d.NewManuscripts) > 0 || len(d.StatusTransitions) > 0 || len(d.NewReports) > 0
}

// HasSignals reports whether the diff carries anything worth notifying about.
func (d StateDiff) HasSignals() bool {
	return d.HasChanges() || len(d.OverdueReviews) > 0 || len(d.ApproachingDeadlines) > 0
}

// SnapshotEntry is the persisted state of one manuscript
type SnapshotEntry struct {
	Hash       string           `json:"hash"`
	Referees   []RefereeRecord  `json:"referees"`
	Manuscript ManuscriptRecord `json:"manuscript"`
}

// Snapshot is the persisted canonical extraction of one platform as of the last successful run
type Snapshot struct {
	Platform       string                   `json:"platform"`
	ExtractionTime time.Time                `json:"extraction_time"`
	Manuscripts    map[string]SnapshotEntry `json:"manuscripts"`
}

// Records returns the manuscripts held by the snapshot. Order is unspecified.
func (s *Snapshot) Records() []ManuscriptRecord {
	if s == nil {
		return nil
	}
	records := make([]ManuscriptRecord, 0, len(s.Manuscripts))
	for _, entry := range s.Manuscripts {
		records = append(records, entry.Manuscript)
	}
	return records
}
