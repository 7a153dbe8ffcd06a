package coa

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle         State = "idle"
	StateChunking     State = "chunking"
	StateProcessing   State = "processing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ContextPolicy selects how knowledge is carried from one chunk to the next.
type ContextPolicy string

const (
	// PolicyRawCarry passes the previous worker analysis forward as-is and
	// synthesizes once at the end.
	PolicyRawCarry ContextPolicy = "raw"

	// PolicyManagerAccumulate folds every analysis into a manager-maintained
	// running context, which becomes the final answer.
	PolicyManagerAccumulate ContextPolicy = "accumulate"
)

func ParseContextPolicy(s string) (ContextPolicy, error) {
	switch ContextPolicy(s) {
	case PolicyRawCarry, "":
		return PolicyRawCarry, nil
	case PolicyManagerAccumulate:
		return PolicyManagerAccumulate, nil
	default:
		return "", fmt.Errorf("unknown context policy %q (want %q or %q)", s, PolicyRawCarry, PolicyManagerAccumulate)
	}
}

// Document is the extracted text of the input plus its page count.
type Document struct {
	Text      string
	PageCount int
}

// Request is one pipeline invocation. A zero ID is replaced by a fresh one.
type Request struct {
	ID       uuid.UUID
	Document Document
	Query    string
}

// Session is the per-run state. Observers receive copies.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	Query           string        `json:"query"`
	Policy          ContextPolicy `json:"policy"`
	State           State         `json:"state"`
	TotalChunks     int           `json:"total_chunks"`
	TotalPages      int           `json:"total_pages"`
	ChunksProcessed int           `json:"chunks_processed"`
	RunningContext  string        `json:"running_context,omitempty"`
	FinalAnswer     *string       `json:"final_answer,omitempty"`
	Error           string        `json:"error,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      *time.Time    `json:"finished_at,omitempty"`
}

func newSession(req Request, policy ContextPolicy) *Session {
	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Session{
		ID:         id,
		Query:      req.Query,
		Policy:     policy,
		State:      StateIdle,
		TotalPages: req.Document.PageCount,
		StartedAt:  time.Now(),
	}
}

func (s *Session) finish(state State, err error) {
	now := time.Now()
	s.State = state
	s.FinishedAt = &now
	if err != nil {
		s.Error = err.Error()
	}
}
