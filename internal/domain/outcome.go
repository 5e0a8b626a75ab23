package domain

import "time"

// JobOutcome is the terminal record for one dispatched job. Failure ==
// nil means success and Output holds the transformed bytes; otherwise
// Output is empty and Failure says why. Every submitted job ends in
// exactly one JobOutcome.
type JobOutcome struct {
	JobID     string
	Operation string
	Output    []byte
	MediaType string
	Failure   *Failure
	Elapsed   time.Duration
}

func (o JobOutcome) Succeeded() bool {
	return o.Failure == nil
}
