package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/editorialops/referee-monitor/internal/models"
	"github.com/sirupsen/logrus"
)

// RawManuscript is one manuscript as scraped, before any interpretation
type RawManuscript struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Authors        []string     `json:"authors"`
	Referees       []RawReferee `json:"referees"`
	SubmissionDate string       `json:"submission_date"`
	Status         string       `json:"status"`
	Documents      []string     `json:"documents"`
	Events         []RawEvent   `json:"events"`
}

// RawReferee is one row of a manuscript's referee table
type RawReferee struct {
	Name        string `json:"name"` // may carry the affiliation after the name
	Email       string `json:"email"`
	Affiliation string `json:"affiliation"`
	Status      string `json:"status"`
	Reminders   string `json:"reminders"`
	ReportLink  string `json:"report_link"`
}

// RawEvent is one row of a manuscript's audit trail or correspondence history
type RawEvent struct {
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`
	Kind      string `json:"kind"` // platform's own label, may be empty
	Text      string `json:"text"`
}

var (
	emailPattern = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	firstNumber  = regexp.MustCompile(`\d+`)
)

// Normalizer turns raw manuscripts into canonical records
type Normalizer struct {
	Platform string
	Rules    []AffiliationRule
}

// NewNormalizer returns a normalizer using DefaultRules
func NewNormalizer(platform string) *Normalizer {
	return &Normalizer{Platform: platform, Rules: DefaultRules}
}

// Normalize builds the canonical record. Rows are never dropped: fields that cannot be read
// with confidence stay empty or Unknown and the record is flagged. The only rejection is a
// manuscript without an id, reported as *ParsingAmbiguityError.
func (n *Normalizer) Normalize(raw RawManuscript, acc *Accumulator) (models.ManuscriptRecord, error) {
	if acc == nil {
		acc = NewAccumulator()
	}

	id := CleanText(raw.ID)
	if id == "" {
		acc.Rejected++
		err := &ParsingAmbiguityError{Field: "id", Raw: raw.ID, Reason: "manuscript id is empty"}
		acc.note(err)
		return models.ManuscriptRecord{}, err
	}

	log := logrus.WithFields(logrus.Fields{"platform": n.Platform, "manuscript": id})
	record := models.ManuscriptRecord{
		ID:     id,
		Title:  CleanText(raw.Title),
		Status: CleanText(raw.Status),
	}
	flag := func(errs ...error) {
		for _, err := range errs {
			record.LowConfidence = true
			record.Notes = append(record.Notes, err.Error())
			acc.note(err)
			log.WithField("reason", err.Error()).Warn("Low-confidence field")
		}
	}

	if s := CleanText(raw.SubmissionDate); s != "" {
		record.SubmissionDate = ParseDate(s)
		if record.SubmissionDate == nil {
			flag(&ParsingAmbiguityError{Manuscript: id, Field: "submission_date", Raw: s, Reason: "unrecognized date format"})
		}
	}

	for _, cell := range raw.Authors {
		for _, line := range SplitMultiValueCell(cell) {
			author := n.author(line)
			if author.LowConfidence {
				flag(&ParsingAmbiguityError{Manuscript: id, Field: "author", Raw: line, Reason: "no name left after removing email"})
			}
			record.Authors = append(record.Authors, author)
		}
	}

	for _, row := range raw.Referees {
		referee, problems := n.referee(id, row)
		if referee.Status == models.StatusUnknown {
			acc.UnknownStatuses++
		}
		flag(problems...)
		record.Referees = append(record.Referees, referee)
	}

	for _, doc := range raw.Documents {
		if doc = strings.TrimSpace(doc); doc != "" {
			record.Documents = append(record.Documents, doc)
		}
	}

	timeline := make([]models.TimelineEvent, 0, len(raw.Events))
	for _, ev := range raw.Events {
		event := n.event(ev)
		if !event.Parsed() {
			acc.UnparsedTimestamps++
			if event.RawTimestamp != "" {
				log.WithField("raw_timestamp", event.RawTimestamp).Debug("Unparsed event timestamp")
			}
		}
		timeline = append(timeline, event)
	}
	record.Timeline = SortTimeline(timeline)

	acc.Manuscripts++
	acc.Authors += len(record.Authors)
	acc.Referees += len(record.Referees)
	if record.LowConfidence {
		acc.LowConfidence++
	}
	return record, nil
}

func (n *Normalizer) author(line string) models.AuthorRecord {
	email, rest := extractEmail(line)
	aff := SeparateWithRules(rest, n.rules())
	author := models.AuthorRecord{
		Name:        aff.Name,
		Email:       email,
		Institution: aff.Institution,
		Department:  aff.Department,
		Country:     aff.Country,
	}
	if author.Name == "" {
		author.LowConfidence = true
		author.Notes = append(author.Notes, "name missing")
	}
	return author
}

func (n *Normalizer) referee(manuscript string, row RawReferee) (models.RefereeRecord, []error) {
	var problems []error

	email, rest := extractEmail(row.Name)
	if e := strings.TrimSpace(row.Email); e != "" {
		if m := emailPattern.FindString(e); m != "" {
			email = strPtr(strings.ToLower(m))
		}
	}

	// Name cells sometimes hold "Name<br>Affiliation"
	lines := SplitMultiValueCell(rest)
	nameLine := ""
	if len(lines) > 0 {
		nameLine = lines[0]
	}
	aff := SeparateWithRules(nameLine, n.rules())
	if len(lines) > 1 && aff.Institution == nil {
		aff.Institution = strPtr(strings.Join(lines[1:], ", "))
	}
	if a := CleanText(row.Affiliation); a != "" {
		extra := Affiliation{}
		assignSegments(&extra, splitSegments(a))
		// the affiliation cell only overrides what it actually names
		if extra.Institution != nil {
			aff.Institution = extra.Institution
		}
		if extra.Department != nil {
			aff.Department = extra.Department
		}
		if extra.Country != nil {
			aff.Country = extra.Country
		}
	}

	frag := ParseStatusFragment(row.Status)
	ref := models.RefereeRecord{
		Name:            aff.Name,
		Email:           email,
		Institution:     aff.Institution,
		Department:      aff.Department,
		Country:         aff.Country,
		Status:          frag.Status,
		InvitedDate:     frag.InvitedDate,
		DueDate:         frag.DueDate,
		SubmittedDate:   frag.SubmittedDate,
		ReportAvailable: strings.TrimSpace(row.ReportLink) != "",
	}

	if ref.Name == "" {
		problems = append(problems, &ParsingAmbiguityError{Manuscript: manuscript, Field: "referee_name", Raw: row.Name, Reason: "empty referee name"})
	}
	for _, note := range frag.Notes {
		problems = append(problems, &ParsingAmbiguityError{Manuscript: manuscript, Field: "referee_status", Raw: row.Status, Reason: note})
	}

	if r := strings.TrimSpace(row.Reminders); r != "" {
		count, err := strconv.Atoi(firstNumber.FindString(r))
		if err != nil {
			problems = append(problems, &ParsingAmbiguityError{Manuscript: manuscript, Field: "reminders", Raw: r, Reason: "no count found"})
		} else {
			ref.ReminderCount = count
		}
	}

	if len(problems) > 0 {
		ref.LowConfidence = true
		for _, p := range problems {
			ref.Notes = append(ref.Notes, p.Error())
		}
	}
	return ref, problems
}

func (n *Normalizer) event(ev RawEvent) models.TimelineEvent {
	text := CleanText(ev.Text)
	raw := CleanText(ev.Timestamp)
	event := models.TimelineEvent{
		RawTimestamp: raw,
		Actor:        CleanText(ev.Actor),
		RawText:      text,
		Kind:         models.EventOther,
	}
	if t, ok := ParseTimestamp(raw); ok {
		event.Timestamp = &t
	}
	if ev.Kind != "" {
		event.Kind = ClassifyEvent(ev.Kind)
	}
	if event.Kind == models.EventOther {
		event.Kind = ClassifyEvent(text)
	}
	return event
}

func (n *Normalizer) rules() []AffiliationRule {
	if len(n.Rules) == 0 {
		return DefaultRules
	}
	return n.Rules
}

// extractEmail pulls the first email address out of s and returns the remaining text
func extractEmail(s string) (*string, string) {
	loc := emailPattern.FindStringIndex(s)
	if loc == nil {
		return nil, s
	}
	email := strings.ToLower(s[loc[0]:loc[1]])
	rest := s[:loc[0]] + s[loc[1]:]
	rest = strings.NewReplacer("<>", "", "()", "", "[]", "").Replace(rest)
	return &email, strings.Trim(CleanText(rest), " ,;-")
}

