package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var honorifics = map[string]bool{
	"dr": true, "prof": true, "professor": true, "mr": true, "mrs": true,
	"ms": true, "miss": true, "sir": true, "phd": true, "jr": true, "sr": true,
}

// NameKey returns a case-insensitive, accent- and punctuation-free key that is the same
// for "Last, First" and "First Last".
func NameKey(name string) string {
	tokens := nameTokens(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// SplitName returns the first and last name of a person in either "Last, First" or "First Last" order
func SplitName(name string) (first, last string) {
	tokens := nameTokens(name)
	if len(tokens) == 0 {
		return "", ""
	}
	if len(tokens) == 1 {
		return "", tokens[0]
	}
	return tokens[0], tokens[len(tokens)-1]
}

// NamesMatch reports whether two names plausibly denote the same person:
// identical keys, or the same surname with compatible first initials.
func NamesMatch(a, b string) bool {
	ka, kb := NameKey(a), NameKey(b)
	if ka == "" || kb == "" {
		return false
	}
	if ka == kb {
		return true
	}
	fa, la := SplitName(a)
	fb, lb := SplitName(b)
	if la != lb || fa == "" || fb == "" {
		return false
	}
	return fa[0] == fb[0] && (len(fa) == 1 || len(fb) == 1)
}

// nameTokens produces lowercase tokens in "first ... last" order
func nameTokens(name string) []string {
	name = foldAccents(CleanText(name))
	if i := strings.Index(name, ","); i >= 0 {
		name = name[i+1:] + " " + name[:i]
	}

	var tokens []string
	for _, tok := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		tok = strings.ToLower(strings.Trim(tok, "'"))
		if tok == "" || honorifics[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
