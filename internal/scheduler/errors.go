package scheduler

import "errors"

// Sentinel errors for the scheduler package.
// Use errors.Is to check: errors.Is(err, scheduler.ErrStaleGesture).
var (
	// ErrStaleGesture marks an event older than the state it would mutate.
	// Callers drop and log it; it is never a user-facing failure.
	ErrStaleGesture = errors.New("scheduler: stale gesture")
	// ErrUnknownKind marks a gesture kind outside the closed set.
	ErrUnknownKind = errors.New("scheduler: unknown gesture kind")
	// ErrInvalidConfig marks tuning values out of bounds.
	ErrInvalidConfig = errors.New("scheduler: invalid config")
)
