// Package extraction walks a platform's manuscript pages through a session and collects raw fragments.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/editorialops/referee-monitor/internal/driver"
	"github.com/editorialops/referee-monitor/internal/normalize"
	"github.com/editorialops/referee-monitor/internal/session"
	"github.com/sirupsen/logrus"
)

// Sessions is the part of the session manager the extractor drives
type Sessions interface {
	Navigate(ctx context.Context, h *session.Handle, url string) error
	Step(ctx context.Context, h *session.Handle, name string, fn session.StepFunc) error
}

// Ensure the session manager satisfies Sessions
var _ Sessions = (*session.Manager)(nil)

// Listing is one row of the manuscript list
type Listing struct {
	ID        string
	DetailURL string
}

// Extractor collects raw manuscripts using a selector strategy
type Extractor struct {
	platform string
	strategy Strategy
	sessions Sessions
	log      *logrus.Entry
}

// NewExtractor creates an extractor for one platform
func NewExtractor(platform string, strategy Strategy, sessions Sessions) *Extractor {
	if strategy.ReadyTimeout <= 0 {
		strategy.ReadyTimeout = 15 * time.Second
	}
	return &Extractor{
		platform: platform,
		strategy: strategy,
		sessions: sessions,
		log:      logrus.WithField("platform", platform),
	}
}

// Extract reads every manuscript listed on the platform. Each page read is one guarded step,
// so a dead session is recovered and the step re-run from its entry point.
func (e *Extractor) Extract(ctx context.Context, h *session.Handle) ([]normalize.RawManuscript, error) {
	listings, err := e.List(ctx, h)
	if err != nil {
		return nil, err
	}

	e.log.Infof("Found %d manuscripts", len(listings))
	manuscripts := make([]normalize.RawManuscript, 0, len(listings))
	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := e.Detail(ctx, h, l)
		if err != nil {
			return nil, err
		}
		manuscripts = append(manuscripts, raw)
	}
	return manuscripts, nil
}

// List reads the manuscript list page
func (e *Extractor) List(ctx context.Context, h *session.Handle) ([]Listing, error) {
	if err := e.sessions.Navigate(ctx, h, e.strategy.ListURL); err != nil {
		return nil, fmt.Errorf("open manuscript list: %w", err)
	}

	var listings []Listing
	err := e.sessions.Step(ctx, h, "list-manuscripts", func(ctx context.Context, d driver.Driver) error {
		listings = listings[:0]
		rows, err := d.Query(ctx, e.strategy.RowSelector)
		if err != nil {
			return err
		}
		for _, row := range rows {
			id, err := textIn(ctx, d, row, e.strategy.RowIDSelector)
			if err != nil {
				return err
			}
			id = normalize.CleanText(id)
			if id == "" {
				e.log.Warn("Skipping manuscript row without id")
				continue
			}
			href, err := attrIn(ctx, d, row, e.strategy.RowLinkSelector, "href")
			if err != nil {
				return err
			}
			detail, err := e.strategy.DetailURL(id, href)
			if err != nil {
				return err
			}
			listings = append(listings, Listing{ID: id, DetailURL: detail})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list manuscripts: %w", err)
	}
	return listings, nil
}

// Detail reads one manuscript detail page
func (e *Extractor) Detail(ctx context.Context, h *session.Handle, l Listing) (normalize.RawManuscript, error) {
	if err := e.sessions.Navigate(ctx, h, l.DetailURL); err != nil {
		return normalize.RawManuscript{}, fmt.Errorf("open manuscript %s: %w", l.ID, err)
	}

	var raw normalize.RawManuscript
	err := e.sessions.Step(ctx, h, "read-manuscript", func(ctx context.Context, d driver.Driver) error {
		raw = normalize.RawManuscript{ID: l.ID}
		return e.readDetail(ctx, d, &raw)
	})
	if err != nil {
		return normalize.RawManuscript{}, fmt.Errorf("read manuscript %s: %w", l.ID, err)
	}

	e.log.WithFields(logrus.Fields{
		"manuscript": l.ID,
		"referees":   len(raw.Referees),
		"events":     len(raw.Events),
	}).Debug("Read manuscript")
	return raw, nil
}

func (e *Extractor) readDetail(ctx context.Context, d driver.Driver, raw *normalize.RawManuscript) error {
	s := e.strategy
	if s.ReadySelector != "" {
		if err := d.WaitFor(ctx, s.ReadySelector, s.ReadyTimeout); err != nil {
			return err
		}
	}

	var err error
	if raw.Title, err = text(ctx, d, s.Title); err != nil {
		return err
	}
	if raw.SubmissionDate, err = text(ctx, d, s.SubmissionDate); err != nil {
		return err
	}
	if raw.Status, err = text(ctx, d, s.Status); err != nil {
		return err
	}
	if raw.Authors, err = allHTML(ctx, d, s.Authors); err != nil {
		return err
	}
	if raw.Documents, err = links(ctx, d, s.Documents); err != nil {
		return err
	}

	if s.RefereeRow != "" {
		rows, err := d.Query(ctx, s.RefereeRow)
		if err != nil {
			return err
		}
		for _, row := range rows {
			ref, err := e.readReferee(ctx, d, row)
			if err != nil {
				return err
			}
			raw.Referees = append(raw.Referees, ref)
		}
	}

	if s.EventRow != "" {
		rows, err := d.Query(ctx, s.EventRow)
		if err != nil {
			return err
		}
		for _, row := range rows {
			ev, err := e.readEvent(ctx, d, row)
			if err != nil {
				return err
			}
			raw.Events = append(raw.Events, ev)
		}
	}
	return nil
}

func (e *Extractor) readReferee(ctx context.Context, d driver.Driver, row driver.Node) (normalize.RawReferee, error) {
	s := e.strategy
	var ref normalize.RawReferee
	var err error

	if ref.Name, err = htmlIn(ctx, d, row, s.RefereeName); err != nil {
		return ref, err
	}
	if ref.Email, err = textIn(ctx, d, row, s.RefereeEmail); err != nil {
		return ref, err
	}
	if ref.Email == "" {
		// platforms often only expose the address as a mailto link
		mailto, err := attrIn(ctx, d, row, s.RefereeEmail, "href")
		if err != nil {
			return ref, err
		}
		ref.Email = mailto
	}
	if ref.Affiliation, err = textIn(ctx, d, row, s.RefereeAffiliation); err != nil {
		return ref, err
	}
	if ref.Status, err = textIn(ctx, d, row, s.RefereeStatus); err != nil {
		return ref, err
	}
	if ref.Reminders, err = textIn(ctx, d, row, s.RefereeReminders); err != nil {
		return ref, err
	}
	if ref.ReportLink, err = attrIn(ctx, d, row, s.RefereeReport, "href"); err != nil {
		return ref, err
	}
	return ref, nil
}

func (e *Extractor) readEvent(ctx context.Context, d driver.Driver, row driver.Node) (normalize.RawEvent, error) {
	s := e.strategy
	var ev normalize.RawEvent
	var err error

	if ev.Timestamp, err = textIn(ctx, d, row, s.EventTimestamp); err != nil {
		return ev, err
	}
	if ev.Actor, err = textIn(ctx, d, row, s.EventActor); err != nil {
		return ev, err
	}
	if ev.Kind, err = textIn(ctx, d, row, s.EventKind); err != nil {
		return ev, err
	}
	if s.EventText == "" {
		ev.Text, err = d.Text(ctx, row)
	} else {
		ev.Text, err = textIn(ctx, d, row, s.EventText)
	}
	return ev, err
}
