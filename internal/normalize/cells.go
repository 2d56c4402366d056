package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockElements end a logical entry inside a table cell
const blockElements = "p, div, li, tr, h1, h2, h3, h4, h5, h6"

// SplitMultiValueCell splits a cell holding several logical entries separated by line breaks.
// Markup breaks (<br>, block elements) and literal newlines separate entries; commas never do,
// so "Last, F." stays one entry. Order is preserved and empty entries are dropped.
func SplitMultiValueCell(raw string) []string {
	text := raw
	if looksLikeMarkup(raw) {
		text = markupToLines(raw)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var entries []string
	for _, line := range strings.Split(text, "\n") {
		line = CleanText(line)
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries
}

// CleanText collapses whitespace, including non-breaking spaces, and trims
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

func looksLikeMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

func markupToLines(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + raw + "</div>"))
	if err != nil {
		// html parsing effectively never fails; fall back to crude tag splitting
		return strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(raw)
	}

	body := doc.Find("body")
	body.Find("br").ReplaceWithHtml("\n")
	body.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return body.Text()
}
