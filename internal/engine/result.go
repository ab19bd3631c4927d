package engine

import (
	"github.com/tartampluch/icaltz/internal/config"
	"github.com/tartampluch/icaltz/internal/zone"
)

// Result is the outcome of resolving one input value.
type Result struct {
	// Line is the 1-based position of the value in its input, 0 when the
	// value did not come from a stream.
	Line int

	// Property names the iCalendar property the value was read from
	// (DTSTART, DTEND), empty for plain values.
	Property string

	// Input is the DATE-TIME text as resolved.
	Input string

	Instant zone.ResolvedInstant

	// Err is set when the value could not be resolved; Instant is then zero.
	Err error
}

// Outcome labels the result for metrics and logs: the resolution kind, or
// config.OutcomeError.
func (r Result) Outcome() string {
	if r.Err != nil {
		return config.OutcomeError
	}
	return r.Instant.Kind.String()
}

// Stats summarizes a batch of results.
type Stats struct {
	Total  int
	Failed int
}

// Summarize counts total and failed results.
func Summarize(results []Result) Stats {
	s := Stats{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
		}
	}
	return s
}
