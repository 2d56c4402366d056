package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layouts tried in order. Inputs are upper-cased first so AM/PM and month names match.
var timestampLayouts = []string{
	"02-Jan-2006 03:04 PM",
	"2-Jan-2006 3:04 PM",
	"02-Jan-2006 15:04:05",
	"02-Jan-2006 15:04",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-January-2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02 Jan 2006 15:04",
}

// UTC offsets of the zone abbreviations editorial platforms print after timestamps
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"Z":    0,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"BST":  1 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
}

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	trailingZone = regexp.MustCompile(`\s+\(?([A-Za-z]{1,4})\)?$`)
)

// ParseTimestamp parses the date formats seen on editorial platforms and returns UTC.
// ok is false when nothing matched; callers keep the raw string.
func ParseTimestamp(raw string) (time.Time, bool) {
	s, loc, ok := prepareTimestamp(raw)
	if !ok {
		return time.Time{}, false
	}
	if t, ok := parseLayouts(s, loc); ok {
		return t, true
	}
	return parseFallback(s, loc)
}

// parseStrict is ParseTimestamp without the dateparse fallback
func parseStrict(raw string) (time.Time, bool) {
	s, loc, ok := prepareTimestamp(raw)
	if !ok {
		return time.Time{}, false
	}
	return parseLayouts(s, loc)
}

func prepareTimestamp(raw string) (string, *time.Location, bool) {
	s := spaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")
	s = strings.Trim(s, " .,;")
	if s == "" {
		return "", nil, false
	}
	s = strings.ToUpper(s)

	loc := time.UTC
	if m := trailingZone.FindStringSubmatch(s); m != nil {
		if offset, known := zoneOffsets[m[1]]; known {
			loc = time.FixedZone(m[1], offset)
			s = strings.TrimSpace(s[:len(s)-len(m[0])])
		}
	}
	return s, loc, true
}

func parseLayouts(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// words dateparse may legitimately see in a timestamp
var dateWords = map[string]bool{
	"JAN": true, "JANUARY": true, "FEB": true, "FEBRUARY": true, "MAR": true, "MARCH": true,
	"APR": true, "APRIL": true, "MAY": true, "JUN": true, "JUNE": true, "JUL": true, "JULY": true,
	"AUG": true, "AUGUST": true, "SEP": true, "SEPT": true, "SEPTEMBER": true, "OCT": true,
	"OCTOBER": true, "NOV": true, "NOVEMBER": true, "DEC": true, "DECEMBER": true,
	"MON": true, "MONDAY": true, "TUE": true, "TUESDAY": true, "WED": true, "WEDNESDAY": true,
	"THU": true, "THURSDAY": true, "FRI": true, "FRIDAY": true, "SAT": true, "SATURDAY": true,
	"SUN": true, "SUNDAY": true,
	"AM": true, "PM": true, "T": true, "Z": true, "ST": true, "ND": true, "RD": true, "TH": true,
}

var letterRun = regexp.MustCompile(`[A-Z]+`)

// onlyDateWords reports whether every alphabetic word of s can belong to a timestamp
func onlyDateWords(s string) bool {
	for _, w := range letterRun.FindAllString(s, -1) {
		if _, zone := zoneOffsets[w]; !dateWords[w] && !zone {
			return false
		}
	}
	return true
}

// parseFallback hands odd formats to dateparse, which has panicked on malformed input before
func parseFallback(s string, loc *time.Location) (t time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()

	// bare numbers are never dates on these platforms, and neither is text without digits
	if strings.Trim(s, "0123456789") == "" || !strings.ContainsAny(s, "0123456789") {
		return time.Time{}, false
	}
	// trailing status words such as "2024-01-01 ACCEPTED" are not part of the date
	if !onlyDateWords(s) {
		return time.Time{}, false
	}
	parsed, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// ParseDate is ParseTimestamp returning a pointer, nil when unparsable
func ParseDate(raw string) *time.Time {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return nil
	}
	return &t
}
