package coa

import "context"

type EventType string

const (
	EventMetadata EventType = "metadata"
	EventWorker   EventType = "worker"
	EventManager  EventType = "manager"
)

// Event is one of MetadataEvent, WorkerEvent or ManagerEvent.
type Event interface {
	Type() EventType
	sealed()
}

// MetadataEvent is emitted once, before any worker event.
type MetadataEvent struct {
	TotalChunks int `json:"total_chunks"`
	TotalPages  int `json:"total_pages"`
}

// WorkerEvent carries one chunk's analysis, in chunk order.
type WorkerEvent struct {
	Result WorkerResult
}

// ManagerEvent carries the final answer and is always the last event.
type ManagerEvent struct {
	Answer string
}

func (MetadataEvent) Type() EventType { return EventMetadata }
func (WorkerEvent) Type() EventType   { return EventWorker }
func (ManagerEvent) Type() EventType  { return EventManager }

func (MetadataEvent) sealed() {}
func (WorkerEvent) sealed()   {}
func (ManagerEvent) sealed()  {}

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type WorkerResult struct {
	ChunkIndex int      `json:"chunk_index"`
	Analysis   string   `json:"analysis"`
	Progress   Progress `json:"progress"`
}

// Sink receives events as the run advances. An error stops the run.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error { return f(ctx, event) }
