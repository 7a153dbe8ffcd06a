package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chain-of-agents-be/pkg/coa"
)

type FrameType string

const (
	FrameMetadata FrameType = "metadata"
	FrameWorker   FrameType = "worker"
	FrameManager  FrameType = "manager"
	FrameError    FrameType = "error"
)

func (t FrameType) valid() bool {
	switch t {
	case FrameMetadata, FrameWorker, FrameManager, FrameError:
		return true
	}
	return false
}

const dataPrefix = "data: "

// Frame is one message of the event stream.
type Frame struct {
	Type     FrameType     `json:"type"`
	Content  string        `json:"content"`
	Progress *coa.Progress `json:"progress,omitempty"`
}

// Metadata is the payload carried as JSON text in a metadata frame's content.
type Metadata struct {
	TotalChunks int `json:"total_chunks"`
	TotalPages  int `json:"total_pages"`
}

// FrameFromEvent maps a pipeline event to its wire frame.
func FrameFromEvent(event coa.Event) (Frame, error) {
	switch e := event.(type) {
	case coa.MetadataEvent:
		content, err := json.Marshal(Metadata{TotalChunks: e.TotalChunks, TotalPages: e.TotalPages})
		if err != nil {
			return Frame{}, fmt.Errorf("marshal metadata: %w", err)
		}
		return Frame{Type: FrameMetadata, Content: string(content)}, nil
	case coa.WorkerEvent:
		progress := e.Result.Progress
		return Frame{Type: FrameWorker, Content: e.Result.Analysis, Progress: &progress}, nil
	case coa.ManagerEvent:
		return Frame{Type: FrameManager, Content: e.Answer}, nil
	default:
		return Frame{}, fmt.Errorf("%w: %T", ErrUnknownFrameType, event)
	}
}

// ErrorFrame reports a run failure to the client.
func ErrorFrame(err error) Frame {
	return Frame{Type: FrameError, Content: err.Error()}
}

// Encode renders f as "data: <json>\n\n".
func (f Frame) Encode() ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	out := make([]byte, 0, len(dataPrefix)+len(payload)+2)
	out = append(out, dataPrefix...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out, nil
}

// Metadata decodes the content of a metadata frame.
func (f Frame) Metadata() (Metadata, error) {
	var m Metadata
	if f.Type != FrameMetadata {
		return m, fmt.Errorf("frame type %q has no metadata", f.Type)
	}
	if err := json.Unmarshal([]byte(f.Content), &m); err != nil {
		return m, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

// EventWriter writes pipeline events as frames and flushes after each one.
// It implements coa.Sink.
type EventWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewEventWriter(w *bufio.Writer) *EventWriter {
	return &EventWriter{w: w}
}

func (ew *EventWriter) Emit(ctx context.Context, event coa.Event) error {
	frame, err := FrameFromEvent(event)
	if err != nil {
		return err
	}
	return ew.WriteFrame(frame)
}

func (ew *EventWriter) WriteFrame(frame Frame) error {
	data, err := frame.Encode()
	if err != nil {
		return err
	}

	ew.mu.Lock()
	defer ew.mu.Unlock()
	if _, err := ew.w.Write(data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := ew.w.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}
