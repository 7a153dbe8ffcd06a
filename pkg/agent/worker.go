package agent

import (
	"context"
	"fmt"
	"strings"

	"chain-of-agents-be/internal/constant"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/chunker"
	"chain-of-agents-be/pkg/llm"
)

const (
	workerTemperature = 0.3
	workerMaxTokens   = 512
)

// Worker analyzes one chunk at a time against the query.
type Worker struct {
	provider llm.LLMProvider
	prompt   string
	model    string
	logger   logger.ILogger
}

func NewWorker(provider llm.LLMProvider, prompts Prompts, model string, log logger.ILogger) *Worker {
	return &Worker{
		provider: provider,
		prompt:   prompts.Worker,
		model:    model,
		logger:   log,
	}
}

// Process returns the worker's analysis of chunk. previous is the cognitive
// unit carried from earlier chunks, nil on the first one.
func (w *Worker) Process(ctx context.Context, chunk chunker.Chunk, query string, previous *string) (string, error) {
	prev := constant.NoPreviousContext
	if previous != nil && strings.TrimSpace(*previous) != "" {
		prev = *previous
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: w.prompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf(constant.WorkerChunkPrompt, query, chunk.Text, prev)},
	}

	w.logger.Debug("WORKER", "Processing chunk", map[string]interface{}{
		"chunk_index": chunk.Index,
		"word_count":  chunk.WordCount,
		"has_context": previous != nil,
	})

	out, err := complete(ctx, w.provider, messages,
		llm.WithTemperature(workerTemperature),
		llm.WithMaxTokens(workerMaxTokens),
		llm.WithModel(w.model),
	)
	if err != nil {
		return "", fmt.Errorf("worker chunk %d: %w", chunk.Index, err)
	}
	return out, nil
}

// complete drains the provider's token stream into the final trimmed text.
func complete(ctx context.Context, provider llm.LLMProvider, messages []llm.Message, opts ...llm.Option) (string, error) {
	stream, err := provider.Stream(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	text, err := llm.Collect(stream)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
