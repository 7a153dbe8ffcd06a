package coa

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned when Run is called while another run is active.
	ErrRunInProgress = errors.New("a pipeline run is already in progress")

	// ErrAborted marks a run that was cancelled before it finished.
	ErrAborted = errors.New("pipeline run aborted")
)

// ValidationError rejects a run before any work starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InferenceError wraps a failure of the generation backend during a run.
type InferenceError struct {
	Stage      string // "worker", "context_update" or "synthesis"
	ChunkIndex int    // -1 when not tied to a chunk
	Err        error
}

func (e *InferenceError) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("inference failed at %s (chunk %d): %v", e.Stage, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("inference failed at %s: %v", e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// EmitError means the event sink refused an event, usually because the
// consumer went away.
type EmitError struct {
	Event EventType
	Err   error
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("emit %s event: %v", e.Event, e.Err)
}

func (e *EmitError) Unwrap() error { return e.Err }
