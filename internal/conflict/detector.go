// Package conflict flags referees who also appear among a manuscript's authors.
package conflict

import (
	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/editorialops/referee-monitor/internal/normalize"
	"github.com/sirupsen/logrus"
)

// Detector annotates referees that match an author
type Detector struct{}

// NewDetector creates a conflict detector
func NewDetector() *Detector {
	return &Detector{}
}

// Annotate sets ConflictWithAuthors and ConflictMatches on matching referees of m and returns
// the flags raised. Referees are never removed. Name matching tolerates initials, so distinct
// people with the same surname and initial are flagged too; the recorded match lets a human
// dismiss those.
func (d *Detector) Annotate(m *models.ManuscriptRecord) []models.ConflictFlag {
	if m == nil || len(m.Authors) == 0 {
		return nil
	}

	authors := normalize.NewAuthorSet(m.Authors)
	var flags []models.ConflictFlag
	for i := range m.Referees {
		ref := &m.Referees[i]
		c := normalize.ClassifyAuthorVsReferee(normalize.Candidate{
			Name:             ref.Name,
			Email:            ref.Email,
			HasRefereeSignal: true,
		}, authors)
		if !c.IsAuthor || c.MatchedAuthor == nil {
			continue
		}

		match := models.ConflictMatch{
			AuthorName:  c.MatchedAuthor.Name,
			AuthorEmail: c.MatchedAuthor.Email,
			MatchedBy:   c.MatchedBy,
		}
		ref.ConflictWithAuthors = true
		ref.ConflictMatches = append(ref.ConflictMatches, match)
		flags = append(flags, models.ConflictFlag{
			ManuscriptID: m.ID,
			RefereeName:  ref.Name,
			RefereeKey:   normalize.NameKey(ref.Name),
			Match:        match,
		})

		logrus.WithFields(logrus.Fields{
			"manuscript": m.ID,
			"matched_by": c.MatchedBy,
		}).Warn("Referee matches a manuscript author")
	}
	return flags
}

// AnnotateAll runs Annotate over every manuscript
func (d *Detector) AnnotateAll(manuscripts []models.ManuscriptRecord) []models.ConflictFlag {
	var flags []models.ConflictFlag
	for i := range manuscripts {
		flags = append(flags, d.Annotate(&manuscripts[i])...)
	}
	return flags
}
