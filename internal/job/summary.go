package job

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is how a single (account, bill type) pair ended.
type Outcome uint8

const (
	OutcomeFetched Outcome = iota
	OutcomeEmpty
	OutcomeQueryFailed
	OutcomeInvalidResponse
	OutcomeMissingURL
	OutcomeRecordFailed
	OutcomeFetchFailed
	OutcomeStoreFailed

	outcomeCount
)

var outcomeNames = [outcomeCount]string{
	OutcomeFetched:         "fetched",
	OutcomeEmpty:           "empty",
	OutcomeQueryFailed:     "query_failed",
	OutcomeInvalidResponse: "invalid_response",
	OutcomeMissingURL:      "missing_url",
	OutcomeRecordFailed:    "record_failed",
	OutcomeFetchFailed:     "fetch_failed",
	OutcomeStoreFailed:     "store_failed",
}

func (o Outcome) String() string {
	if o >= outcomeCount {
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
	return outcomeNames[o]
}

// Failed reports whether the outcome counts as an error. An empty bill is not one.
func (o Outcome) Failed() bool {
	return o != OutcomeFetched && o != OutcomeEmpty
}

// Summary counts the outcomes of one run.
type Summary struct {
	Date      string
	Attempted int
	Empty     int
	Errored   int
	Fetched   int
	Outcomes  map[Outcome]int
	Duration  time.Duration
}

func newSummary(date string) Summary {
	return Summary{Date: date, Outcomes: make(map[Outcome]int)}
}

func (s *Summary) record(o Outcome) {
	s.Attempted++
	s.Outcomes[o]++
	switch {
	case o == OutcomeFetched:
		s.Fetched++
	case o == OutcomeEmpty:
		s.Empty++
	default:
		s.Errored++
	}
}

// Breakdown lists the non-zero failure outcomes, e.g. "fetch_failed=1 query_failed=2".
func (s Summary) Breakdown() string {
	parts := make([]string, 0, len(s.Outcomes))
	for o := Outcome(0); o < outcomeCount; o++ {
		if n := s.Outcomes[o]; n > 0 && o.Failed() {
			parts = append(parts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	return strings.Join(parts, " ")
}

func (s Summary) String() string {
	return fmt.Sprintf("date=%s attempted=%d fetched=%d empty=%d errored=%d",
		s.Date, s.Attempted, s.Fetched, s.Empty, s.Errored)
}
