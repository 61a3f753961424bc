package uploader

import (
	"context"
	"errors"
)

// Sentinel errors forming the failure taxonomy of a run. Collaborators wrap
// these with %w so callers can classify failures with errors.Is.
var (
	// ErrInvalidQuery rejects a run before any work happens (limit <= 0).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrSourceUnavailable indicates the upstream cannot be reached or
	// answered with a non-success status.
	ErrSourceUnavailable = errors.New("record source unavailable")

	// ErrSourceMalformed indicates an item the source yielded cannot be
	// parsed into a Record.
	ErrSourceMalformed = errors.New("record source yielded a malformed item")

	// ErrSourceExhausted is returned by Source.Next when the sequence ends.
	// It is a control signal, not a failure.
	ErrSourceExhausted = errors.New("record source exhausted")

	// ErrConnection marks a transient backend connection failure. Writes
	// hitting it are retried with backoff; persistent failure aborts the run.
	ErrConnection = errors.New("storage connection failed")

	// ErrConstraintViolation means the backend already holds a record with
	// this identity. Folded into duplicate accounting.
	ErrConstraintViolation = errors.New("storage constraint violation")

	// ErrPermanentWrite is fatal for a single record. The run continues
	// until such failures exceed the configured threshold.
	ErrPermanentWrite = errors.New("permanent storage write failure")

	// ErrNotFound is returned by read operations when no persisted record
	// carries the requested identity.
	ErrNotFound = errors.New("record not found")
)

// IsRetryable reports whether a storage error is worth retrying.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrConnection)
}
