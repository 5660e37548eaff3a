package entity

import "errors"

var (
	// ErrInvalidRequest is returned synchronously by submit for malformed searches
	ErrInvalidRequest = errors.New("invalid search request")

	// ErrJobNotFound signals that a job record is absent or expired
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal signals a mutation attempt on a completed or failed job
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrTransientLookup marks an upstream fare lookup failure worth retrying later
	// (rate limit, 5xx, timeout)
	ErrTransientLookup = errors.New("transient fare lookup failure")

	// ErrCancelled is the cause attached to jobs stopped by their owner or shutdown
	ErrCancelled = errors.New("cancelled")
)
