package normalize

import "fmt"

// ParsingAmbiguityError describes a field that could not be read with confidence.
// It is never fatal: the record is flagged and the error text kept as a note.
type ParsingAmbiguityError struct {
	Manuscript string
	Field      string
	Raw        string
	Reason     string
}

func (e *ParsingAmbiguityError) Error() string {
	if e.Manuscript == "" {
		return fmt.Sprintf("ambiguous %s %q: %s", e.Field, e.Raw, e.Reason)
	}
	return fmt.Sprintf("manuscript %s: ambiguous %s %q: %s", e.Manuscript, e.Field, e.Raw, e.Reason)
}
