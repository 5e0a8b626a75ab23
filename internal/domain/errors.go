package domain

import (
	"context"
	"errors"
)

var ErrDecode = errors.New("decode_error")
var ErrFetch = errors.New("fetch_error")
var ErrTimeout = errors.New("timeout")
var ErrExecution = errors.New("execution_error")
var ErrUnknownOperation = errors.New("unknown_operation")
var ErrInvalidRequest = errors.New("invalid_request")

// FailureKind labels why a job produced no output. Values appear
// verbatim in API responses and journal rows.
type FailureKind string

const (
	FailureDecode    FailureKind = "decode_error"
	FailureFetch     FailureKind = "fetch_error"
	FailureTimeout   FailureKind = "timeout"
	FailureExecution FailureKind = "execution_error"
	FailureInternal  FailureKind = "internal_error"
)

// Failure is the terminal error record of a single job. Diagnostics
// carries raw transformer output when any was captured; it is never
// interpreted.
type Failure struct {
	Kind        FailureKind `json:"kind"`
	Message     string      `json:"message"`
	Diagnostics string      `json:"diagnostics,omitempty"`
}

// FailureFromErr maps an error from any job phase onto the failure
// taxonomy. Deadline expiry and cancellation both count as timeout
// no matter which phase observed them first.
func FailureFromErr(err error) *Failure {
	if err == nil {
		return nil
	}
	kind := FailureInternal
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = FailureTimeout
	case errors.Is(err, ErrDecode):
		kind = FailureDecode
	case errors.Is(err, ErrFetch):
		kind = FailureFetch
	case errors.Is(err, ErrExecution):
		kind = FailureExecution
	}
	return &Failure{Kind: kind, Message: err.Error()}
}
