package domain

import (
	"errors"
	"fmt"
)

// ValidationError marks bad input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientError wraps network or 5xx-class failures that are worth
// retrying with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError is fatal for the current request. Never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth: " + e.Reason }

// CapacityError indicates a scoring batch exceeded the model context limit
// and should be split and retried smaller.
type CapacityError struct {
	BatchSize int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("batch of %d too large for scoring call", e.BatchSize)
}

// ErrPartialEnrichment marks a single item whose synthesis came back
// malformed; the item degrades to its raw excerpt and ships anyway.
var ErrPartialEnrichment = errors.New("enrichment output malformed")

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
