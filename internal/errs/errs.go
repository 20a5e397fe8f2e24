package errs

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors so callers can decide between retrying,
// alerting an operator, or surfacing the failure to the client.
type Kind string

const (
	// KindValidation marks bad input from the caller (4xx class).
	KindValidation Kind = "validation"
	// KindRetryable marks transient infrastructure failures; the operation
	// may be retried as-is.
	KindRetryable Kind = "retryable_infra"
	// KindNonRetryable marks infrastructure failures that need operator
	// intervention (quota exceeded, insufficient funds).
	KindNonRetryable Kind = "non_retryable_infra"
	// KindConflict marks a conflicting ledger commitment: the chain already
	// holds a different fingerprint for the batch. Data-integrity alert.
	KindConflict Kind = "conflicting_commitment"
	// KindConcurrency marks a transition rejected because another transition
	// for the same batch is in flight.
	KindConcurrency Kind = "already_in_progress"
	// KindNotFound marks a missing record.
	KindNotFound Kind = "not_found"
	// KindTimeout marks an ambiguous ledger submission: the transaction may
	// or may not have landed. Callers must Lookup before retrying Submit.
	KindTimeout Kind = "timeout"
)

// Error is the error type carried across component boundaries.
type Error struct {
	Kind Kind
	Op   string // component operation, e.g. "cas.put", "ledger.submit"
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error without a wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap creates an Error wrapping a cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of err, or empty string if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the operation that produced err may be retried
// as-is. Timeouts are not retryable as-is: the caller must reconcile first.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}
