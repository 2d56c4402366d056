package normalize

// Accumulator counts what one run's normalization saw. One is created per run and
// passed explicitly; it is not safe for concurrent use.
type Accumulator struct {
	Manuscripts        int      `json:"manuscripts"`
	Authors            int      `json:"authors"`
	Referees           int      `json:"referees"`
	LowConfidence      int      `json:"low_confidence"`
	UnknownStatuses    int      `json:"unknown_statuses"`
	UnparsedTimestamps int      `json:"unparsed_timestamps"`
	Rejected           int      `json:"rejected"`
	Ambiguities        []string `json:"ambiguities,omitempty"`
}

// NewAccumulator returns an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func (a *Accumulator) note(err error) {
	if a == nil {
		return
	}
	a.Ambiguities = append(a.Ambiguities, err.Error())
}
