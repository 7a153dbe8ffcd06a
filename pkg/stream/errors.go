package stream

import (
	"errors"
	"fmt"
)

var (
	ErrMissingPrefix    = errors.New(`frame is missing the "data: " prefix`)
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrInvalidText      = errors.New("frame is not valid UTF-8")
)

// DecodeError describes a single frame that could not be decoded. It is
// never fatal to the stream.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:80] + "..."
	}
	return fmt.Sprintf("decode frame %q: %v", line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError is a failure of the connection to the server: an
// unreachable host, a non-success status or a broken body.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("server returned %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("could not reach server: %v", e.Err)
	default:
		return "transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// RunError is the failure reported by the server in an error frame after
// the stream had started.
type RunError struct {
	Message string
}

func (e *RunError) Error() string {
	return "run failed on server: " + e.Message
}
