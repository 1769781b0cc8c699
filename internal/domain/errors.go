// Package domain holds cross-component domain types: the error taxonomy the
// pipeline, scheduler and HTTP layer all speak.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrRaceConflict marks dedup critical-section contention past the wait
	// bound: retried immediately once by the caller, then surfaced as a
	// transient failure.
	ErrRaceConflict = errors.New("race conflict")
	// ErrNotFound marks a missing row where the caller required one.
	ErrNotFound = errors.New("not found")
	// ErrAborted marks an ingestion job stopped at a chunk boundary on
	// request.
	ErrAborted = errors.New("job aborted")
	// ErrPartial marks a job that committed some work while other pieces
	// failed. Terminal; the committed portion stands.
	ErrPartial = errors.New("job partially failed")
)

// ValidationError is malformed caller input: rejected synchronously, never
// retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CollaboratorError marks a failed external call (LLM, TTS, embeddings, OCR,
// vector store) after the retry policy gave up. The affected chunk or fact is
// marked failed for manual retry; sibling work continues.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func NewCollaborator(name string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: name, Err: err}
}

// IsCollaborator reports whether err is (or wraps) a CollaboratorError.
func IsCollaborator(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
