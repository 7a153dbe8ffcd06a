package stream

import (
	"fmt"

	"chain-of-agents-be/pkg/coa"
)

// WorkerMessage is one worker frame as seen by a client. ID is the 1-based
// arrival position.
type WorkerMessage struct {
	ID       int
	Content  string
	Progress *coa.Progress
}

// RunState is the client-side view of a run, built by applying frames in
// arrival order.
//
// Completion and partial results are separate signals: a stream that ends
// without a manager frame is not Completed, yet PartialAvailable may still
// report the worker results that did arrive. Err is set when the server
// reported a failure in an error frame.
type RunState struct {
	TotalChunks int
	TotalPages  int
	Workers     []WorkerMessage
	FinalAnswer string
	Err         error

	completed bool
}

// Apply folds one frame into the state. Only a metadata frame with an
// unreadable payload returns an error; the rest of the state is untouched.
func (s *RunState) Apply(frame Frame) error {
	switch frame.Type {
	case FrameMetadata:
		meta, err := frame.Metadata()
		if err != nil {
			return &DecodeError{Line: frame.Content, Err: err}
		}
		s.TotalChunks = meta.TotalChunks
		s.TotalPages = meta.TotalPages
	case FrameWorker:
		s.Workers = append(s.Workers, WorkerMessage{
			ID:       len(s.Workers) + 1,
			Content:  frame.Content,
			Progress: frame.Progress,
		})
	case FrameManager:
		s.FinalAnswer = frame.Content
		s.completed = true
	case FrameError:
		s.Err = &RunError{Message: frame.Content}
	default:
		return &DecodeError{Line: string(frame.Type), Err: fmt.Errorf("%w: %q", ErrUnknownFrameType, frame.Type)}
	}
	return nil
}

// Completed reports whether the terminal manager frame has arrived.
func (s *RunState) Completed() bool { return s.completed }

// PartialAvailable reports whether any worker result arrived.
func (s *RunState) PartialAvailable() bool { return len(s.Workers) > 0 }

// Failed reports whether the server signalled a failure.
func (s *RunState) Failed() bool { return s.Err != nil }
