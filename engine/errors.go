package engine

import "errors"

var (
	// ErrEngineClosed is returned when an operation is attempted on a
	// closed engine.
	ErrEngineClosed = errors.New("engine closed")

	// ErrJobNotFound is returned when the referenced job is unknown.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when attempting to cancel a job that
	// already reached a terminal state.
	ErrJobTerminal = errors.New("job already terminal")

	// ErrRetriesExhausted marks an activity failure that consumed every
	// allowed attempt. It converts the underlying transient failure into
	// a permanent one.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrHistoryDiverged indicates the replay journal contains an event
	// that contradicts the current execution, which points at storage
	// corruption or non-deterministic activity identity.
	ErrHistoryDiverged = errors.New("replay history diverged")
)
