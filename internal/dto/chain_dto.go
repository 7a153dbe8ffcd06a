package dto

import (
	"time"

	"github.com/google/uuid"
)

type ProcessTextRequest struct {
	Text  string `json:"text" validate:"required"`
	Query string `json:"query" validate:"required"`
}

type ProcessResponse struct {
	Result string `json:"result"`
}

type HealthResponse struct {
	Status       string `json:"status"`
	WorkerModel  string `json:"worker_model,omitempty"`
	ManagerModel string `json:"manager_model,omitempty"`
}

// RunFinishedMessage is published on the in-process bus when a run ends.
type RunFinishedMessage struct {
	RunId       uuid.UUID `json:"run_id"`
	State       string    `json:"state"`
	Query       string    `json:"query"`
	Answer      string    `json:"answer,omitempty"`
	Error       string    `json:"error,omitempty"`
	TotalChunks int       `json:"total_chunks"`
	TotalPages  int       `json:"total_pages"`
	CacheKey    string    `json:"cache_key,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	FinishedAt  time.Time `json:"finished_at"`
}
