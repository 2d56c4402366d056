package extraction

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Strategy is the per-platform selector set used to walk a manuscript list and its detail pages.
// Selector fields left empty are skipped.
type Strategy struct {
	ListURL string `yaml:"list_url" validate:"required,url"`
	// RowSelector matches one element per manuscript on the list page.
	RowSelector string `yaml:"row" validate:"required"`
	// RowIDSelector, inside a row, holds the manuscript id.
	RowIDSelector string `yaml:"row_id" validate:"required"`
	// RowLinkSelector, inside a row, is the element whose href leads to the detail page.
	RowLinkSelector string `yaml:"row_link"`
	// DetailURLTemplate builds the detail URL when rows carry no link; "{id}" is replaced.
	DetailURLTemplate string `yaml:"detail_url"`

	ReadySelector  string        `yaml:"ready"`
	ReadyTimeout   time.Duration `yaml:"ready_timeout"`
	Title          string        `yaml:"title"`
	SubmissionDate string        `yaml:"submission_date"`
	Status         string        `yaml:"status"`
	Authors        string        `yaml:"authors"`
	Documents      string        `yaml:"documents"`

	RefereeRow         string `yaml:"referee_row"`
	RefereeName        string `yaml:"referee_name"`
	RefereeEmail       string `yaml:"referee_email"`
	RefereeAffiliation string `yaml:"referee_affiliation"`
	RefereeStatus      string `yaml:"referee_status"`
	RefereeReminders   string `yaml:"referee_reminders"`
	RefereeReport      string `yaml:"referee_report"`

	EventRow       string `yaml:"event_row"`
	EventTimestamp string `yaml:"event_timestamp"`
	EventActor     string `yaml:"event_actor"`
	EventKind      string `yaml:"event_kind"`
	EventText      string `yaml:"event_text"`
}

// DetailURL resolves where the detail page of a manuscript lives
func (s Strategy) DetailURL(id, href string) (string, error) {
	if href != "" {
		base, err := url.Parse(s.ListURL)
		if err != nil {
			return "", fmt.Errorf("invalid list url: %w", err)
		}
		ref, err := url.Parse(href)
		if err != nil {
			return "", fmt.Errorf("invalid detail link %q: %w", href, err)
		}
		return base.ResolveReference(ref).String(), nil
	}
	if s.DetailURLTemplate == "" {
		return "", fmt.Errorf("manuscript %s has no detail link and no detail url template", id)
	}
	return strings.ReplaceAll(s.DetailURLTemplate, "{id}", url.PathEscape(id)), nil
}
