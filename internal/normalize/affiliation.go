package normalize

import (
	"regexp"
	"strings"
)

// Affiliation is a personal name split from the institution text that followed it
type Affiliation struct {
	Name        string
	Institution *string
	Department  *string
	Country     *string
}

// AffiliationRule locates the boundary between a name and its affiliation.
// A rule returns ok=false when it does not apply to the line.
type AffiliationRule interface {
	Name() string
	Split(line string) (Affiliation, bool)
}

var (
	institutionKeyword = regexp.MustCompile(`(?i)\b(universit(y|ies|e|at|a)|univ|institute|institut|instituto|school|department|dept|lab|labs|laboratory|laboratories|ministry|college|center|centre|hospital|academy|faculty|polytechnic|politecnico|inria|cnrs|corporation|research|foundation|ecole)\b`)
	departmentKeyword  = regexp.MustCompile(`(?i)\b(department|dept|faculty|division|school of)\b`)
	parenAffiliation   = regexp.MustCompile(`^(.+?)\s*\((.+)\)\s*$`)
	dashSeparator      = regexp.MustCompile(`\s+[-–—]\s+|\s*[–—]\s*`)
)

// DefaultRules is the order matchers are tried in
var DefaultRules = []AffiliationRule{
	parenRule{},
	dashRule{},
	commaRule{},
}

// SeparateNameFromAffiliation splits "Name, University of X" style lines using DefaultRules.
// Without an institution keyword the whole line is kept as the name.
func SeparateNameFromAffiliation(line string) Affiliation {
	return SeparateWithRules(line, DefaultRules)
}

// SeparateWithRules is SeparateNameFromAffiliation with an explicit rule list
func SeparateWithRules(line string, rules []AffiliationRule) Affiliation {
	line = CleanText(line)
	for _, rule := range rules {
		if aff, ok := rule.Split(line); ok && aff.Name != "" {
			return aff
		}
	}
	return Affiliation{Name: line}
}

type parenRule struct{}

func (parenRule) Name() string { return "paren" }

func (parenRule) Split(line string) (Affiliation, bool) {
	m := parenAffiliation.FindStringSubmatch(line)
	if m == nil || !institutionKeyword.MatchString(m[2]) {
		return Affiliation{}, false
	}
	aff := Affiliation{Name: strings.TrimRight(strings.TrimSpace(m[1]), ",;")}
	assignSegments(&aff, splitSegments(m[2]))
	return aff, true
}

type dashRule struct{}

func (dashRule) Name() string { return "dash" }

func (dashRule) Split(line string) (Affiliation, bool) {
	loc := dashSeparator.FindStringIndex(line)
	if loc == nil {
		return Affiliation{}, false
	}
	rest := line[loc[1]:]
	if !institutionKeyword.MatchString(rest) {
		return Affiliation{}, false
	}
	aff := Affiliation{Name: strings.TrimSpace(line[:loc[0]])}
	assignSegments(&aff, splitSegments(rest))
	return aff, true
}

type commaRule struct{}

func (commaRule) Name() string { return "comma" }

// Split keeps "Last, First" intact: the boundary is the first segment that carries a keyword,
// and everything before it is the name.
func (commaRule) Split(line string) (Affiliation, bool) {
	segments := splitSegments(line)
	for i := 1; i < len(segments); i++ {
		if institutionKeyword.MatchString(segments[i]) {
			aff := Affiliation{Name: strings.Join(segments[:i], ", ")}
			assignSegments(&aff, segments[i:])
			return aff, true
		}
	}
	return Affiliation{}, false
}

func splitSegments(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// assignSegments distributes affiliation segments into department, institution and country
func assignSegments(aff *Affiliation, segments []string) {
	var institution []string
	for i, seg := range segments {
		switch {
		case aff.Department == nil && departmentKeyword.MatchString(seg) && i < len(segments)-1:
			aff.Department = strPtr(seg)
		case i == len(segments)-1 && i > 0 && !institutionKeyword.MatchString(seg) && len(strings.Fields(seg)) <= 3:
			aff.Country = strPtr(seg)
		default:
			institution = append(institution, seg)
		}
	}
	if len(institution) > 0 {
		aff.Institution = strPtr(strings.Join(institution, ", "))
	}
}

func strPtr(s string) *string {
	return &s
}
