package normalize

import (
	"strings"

	"github.com/editorialops/referee-monitor/internal/models"
)

// Match methods recorded on classifications and conflict matches
const (
	MatchedByEmail = "email"
	MatchedByName  = "name"
)

// Candidate is a person seen on a manuscript whose role is being decided
type Candidate struct {
	Name  string
	Email *string
	// HasRefereeSignal is set when the row came from a referee table or carries a referee status
	HasRefereeSignal bool
}

// AuthorSet indexes a manuscript's authors by email and name key
type AuthorSet struct {
	authors []models.AuthorRecord
	byEmail map[string]int
	byKey   map[string]int
}

// NewAuthorSet builds the lookup for one manuscript's authors
func NewAuthorSet(authors []models.AuthorRecord) AuthorSet {
	set := AuthorSet{
		authors: authors,
		byEmail: make(map[string]int, len(authors)),
		byKey:   make(map[string]int, len(authors)),
	}
	for i, a := range authors {
		if a.Email != nil && *a.Email != "" {
			set.byEmail[normalizeEmail(*a.Email)] = i
		}
		if key := NameKey(a.Name); key != "" {
			if _, seen := set.byKey[key]; !seen {
				set.byKey[key] = i
			}
		}
	}
	return set
}

// Len returns the number of authors in the set
func (s AuthorSet) Len() int {
	return len(s.authors)
}

// Classification is the outcome of deciding whether a candidate is an author, a referee or both
type Classification struct {
	IsAuthor      bool
	IsReferee     bool
	MatchedAuthor *models.AuthorRecord
	MatchedBy     string
}

// ClassifyAuthorVsReferee matches the candidate against the author set, by exact email first
// and by name otherwise. Name matching tolerates initials, so two different people sharing a
// surname and initial will match.
func ClassifyAuthorVsReferee(c Candidate, authors AuthorSet) Classification {
	var out Classification

	if c.Email != nil && *c.Email != "" {
		if i, ok := authors.byEmail[normalizeEmail(*c.Email)]; ok {
			out.IsAuthor = true
			out.MatchedAuthor = &authors.authors[i]
			out.MatchedBy = MatchedByEmail
		}
	}

	if !out.IsAuthor {
		key := NameKey(c.Name)
		if i, ok := authors.byKey[key]; ok && key != "" {
			out.IsAuthor = true
			out.MatchedAuthor = &authors.authors[i]
			out.MatchedBy = MatchedByName
		} else {
			for i := range authors.authors {
				if NamesMatch(c.Name, authors.authors[i].Name) {
					out.IsAuthor = true
					out.MatchedAuthor = &authors.authors[i]
					out.MatchedBy = MatchedByName
					break
				}
			}
		}
	}

	out.IsReferee = c.HasRefereeSignal || !out.IsAuthor
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
