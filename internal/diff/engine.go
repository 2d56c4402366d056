// Package diff computes change signals between the previous snapshot and the current extraction.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/normalize"
)

// DefaultApproachingWindowDays is how far ahead a due date counts as approaching
const DefaultApproachingWindowDays = 7

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now calls f
func (f ClockFunc) Now() time.Time { return f() }

// Engine computes StateDiffs
type Engine struct {
	Platform              string
	Clock                 Clock
	ApproachingWindowDays int
}

// NewEngine creates an engine using the system clock
func NewEngine(platform string, approachingWindowDays int) *Engine {
	if approachingWindowDays <= 0 {
		approachingWindowDays = DefaultApproachingWindowDays
	}
	return &Engine{Platform: platform, Clock: SystemClock{}, ApproachingWindowDays: approachingWindowDays}
}

// RefereeKey identifies a referee across runs
func RefereeKey(r models.RefereeRecord) string {
	if key := normalize.NameKey(r.Name); key != "" {
		return key
	}
	if r.Email != nil {
		return strings.ToLower(*r.Email)
	}
	return ""
}

// ManuscriptHash fingerprints the referee-relevant state of a manuscript
func ManuscriptHash(m models.ManuscriptRecord) string {
	type projected struct{ key, name, status, email string }
	refs := make([]projected, 0, len(m.Referees))
	for _, r := range m.Referees {
		email := ""
		if r.Email != nil {
			email = strings.ToLower(*r.Email)
		}
		refs = append(refs, projected{RefereeKey(r), r.Name, string(r.Status), email})
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].key < refs[j].key })

	h := sha256.New()
	h.Write([]byte(m.ID))
	for _, r := range refs {
		h.Write([]byte{0})
		h.Write([]byte(r.key + "\x1f" + r.name + "\x1f" + r.status + "\x1f" + r.email))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Diff compares current records against the previous snapshot, which may be nil on a first run.
// Overdue and approaching lists are computed from current records only.
func (e *Engine) Diff(previous *models.Snapshot, current []models.ManuscriptRecord) models.StateDiff {
	now := e.now()
	result := models.StateDiff{
		Platform:             e.Platform,
		ComputedAt:           now,
		NewManuscripts:       []string{},
		StatusTransitions:    []models.StatusTransition{},
		NewReports:           []models.NewReport{},
		OverdueReviews:       []models.OverdueReview{},
		ApproachingDeadlines: []models.ApproachingDeadline{},
	}

	var prior map[string]models.SnapshotEntry
	if previous != nil {
		prior = previous.Manuscripts
	}

	for _, m := range current {
		entry, seen := prior[m.ID]
		if !seen {
			result.NewManuscripts = append(result.NewManuscripts, m.ID)
		} else if entry.Hash != ManuscriptHash(m) || reportsChanged(entry.Referees, m.Referees) {
			e.compareReferees(&result, m, entry.Referees, now)
		}
		e.deadlines(&result, m, now)
	}
	return result
}

func (e *Engine) compareReferees(result *models.StateDiff, m models.ManuscriptRecord, before []models.RefereeRecord, now time.Time) {
	old := make(map[string]models.RefereeRecord, len(before))
	for _, r := range before {
		old[RefereeKey(r)] = r
	}

	for _, r := range m.Referees {
		key := RefereeKey(r)
		prev, existed := old[key]

		if !existed {
			result.StatusTransitions = append(result.StatusTransitions, models.StatusTransition{
				ManuscriptID: m.ID,
				RefereeKey:   key,
				RefereeName:  r.Name,
				OldStatus:    models.StatusUnknown,
				NewStatus:    r.Status,
				NewReferee:   true,
				DetectedAt:   now,
			})
		} else if prev.Status != r.Status {
			result.StatusTransitions = append(result.StatusTransitions, models.StatusTransition{
				ManuscriptID: m.ID,
				RefereeKey:   key,
				RefereeName:  r.Name,
				OldStatus:    prev.Status,
				NewStatus:    r.Status,
				DetectedAt:   now,
			})
		}

		newlySubmitted := r.Status == models.StatusReportSubmitted && (!existed || prev.Status != models.StatusReportSubmitted)
		newlyAvailable := r.Status == models.StatusAccepted && r.ReportAvailable && (!existed || !prev.ReportAvailable)
		if newlySubmitted || newlyAvailable {
			result.NewReports = append(result.NewReports, models.NewReport{
				ManuscriptID: m.ID,
				RefereeKey:   key,
				RefereeName:  r.Name,
			})
		}
	}
}

func (e *Engine) deadlines(result *models.StateDiff, m models.ManuscriptRecord, now time.Time) {
	today := civilDay(now)
	window := e.ApproachingWindowDays
	if window <= 0 {
		window = DefaultApproachingWindowDays
	}

	for _, r := range m.Referees {
		if r.Status != models.StatusAccepted || r.DueDate == nil {
			continue
		}
		days := daysBetween(today, civilDay(*r.DueDate))
		switch {
		case days < 0:
			result.OverdueReviews = append(result.OverdueReviews, models.OverdueReview{
				ManuscriptID: m.ID,
				RefereeKey:   RefereeKey(r),
				RefereeName:  r.Name,
				DaysOverdue:  -days,
			})
		case days <= window:
			result.ApproachingDeadlines = append(result.ApproachingDeadlines, models.ApproachingDeadline{
				ManuscriptID:  m.ID,
				RefereeKey:    RefereeKey(r),
				RefereeName:   r.Name,
				DaysRemaining: days,
			})
		}
	}
}

// reportsChanged catches report availability flips, which the hash does not cover
func reportsChanged(before, after []models.RefereeRecord) bool {
	available := make(map[string]bool, len(before))
	for _, r := range before {
		available[RefereeKey(r)] = r.ReportAvailable
	}
	for _, r := range after {
		if r.ReportAvailable && !available[RefereeKey(r)] {
			return true
		}
	}
	return false
}

func (e *Engine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

func civilDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
