// Package audit provides the structured audit trail shared by every stage of
// the wound-care evaluation pipeline, and the invariant-violation error type
// that is the only failure allowed to cross the pipeline boundary.
package audit

import (
	"errors"
	"fmt"
)

// Kind classifies an audit entry by the failure taxonomy of the pipeline.
type Kind string

const (
	KindInfo      Kind = "info"
	KindInput     Kind = "input_error"
	KindOutcome   Kind = "outcome"
	KindInvariant Kind = "invariant_violation"
)

// Entry is one structured audit record.
type Entry struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Kind   Kind   `json:"kind"`
}

// Trail is an ordered, append-only audit log.
type Trail []Entry

// Info appends an informational entry.
func (t *Trail) Info(code, format string, args ...any) {
	t.add(KindInfo, code, format, args...)
}

// Input appends an input-error entry. Input errors are recovered locally.
func (t *Trail) Input(code, format string, args ...any) {
	t.add(KindInput, code, format, args...)
}

// Outcome appends a business-outcome entry (e.g. a failed coverage criterion).
func (t *Trail) Outcome(code, format string, args ...any) {
	t.add(KindOutcome, code, format, args...)
}

// Invariant appends an invariant-violation entry and returns the matching error.
func (t *Trail) Invariant(code, format string, args ...any) error {
	t.add(KindInvariant, code, format, args...)
	return Violation(code, fmt.Sprintf(format, args...))
}

func (t *Trail) add(kind Kind, code, format string, args ...any) {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	*t = append(*t, Entry{Code: code, Detail: detail, Kind: kind})
}

// Append copies the entries of other onto t.
func (t *Trail) Append(other Trail) {
	*t = append(*t, other...)
}

// Has reports whether an entry with the given code exists.
func (t Trail) Has(code string) bool {
	for _, e := range t {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the entry codes in order.
func (t Trail) Codes() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.Code
	}
	return out
}

// Map returns a new trail with fn applied to every detail string.
func (t Trail) Map(fn func(string) string) Trail {
	out := make(Trail, len(t))
	for i, e := range t {
		e.Detail = fn(e.Detail)
		out[i] = e
	}
	return out
}

// ErrInvariantViolation marks programming errors that must fail fast.
var ErrInvariantViolation = errors.New("invariant violation")

// ViolationError carries the code of a violated invariant.
type ViolationError struct {
	Code   string
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariantViolation, e.Code, e.Detail)
}

func (e *ViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// Violation builds an invariant-violation error.
func Violation(code, detail string) error {
	return &ViolationError{Code: code, Detail: detail}
}
