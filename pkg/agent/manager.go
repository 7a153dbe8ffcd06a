package agent

import (
	"context"
	"fmt"
	"strings"

	"chain-of-agents-be/internal/constant"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/llm"
)

const (
	managerTemperature = 0.3
	managerMaxTokens   = 1024
)

// Manager merges worker output, either all at once or one analysis at a time.
type Manager struct {
	provider llm.LLMProvider
	prompt   string
	model    string
	logger   logger.ILogger
}

func NewManager(provider llm.LLMProvider, prompts Prompts, model string, log logger.ILogger) *Manager {
	return &Manager{
		provider: provider,
		prompt:   prompts.Manager,
		model:    model,
		logger:   log,
	}
}

// Synthesize produces the final answer from every worker output in chunk order.
func (m *Manager) Synthesize(ctx context.Context, workerOutputs []string, query string) (string, error) {
	m.logger.Debug("MANAGER", "Synthesizing final answer", map[string]interface{}{
		"worker_outputs": len(workerOutputs),
	})

	out, err := m.call(ctx, fmt.Sprintf(constant.ManagerSynthesisPrompt, query, FormatWorkerOutputs(workerOutputs)))
	if err != nil {
		return "", fmt.Errorf("manager synthesis: %w", err)
	}
	return out, nil
}

// UpdateContext folds one worker response into the running context.
func (m *Manager) UpdateContext(ctx context.Context, currentContext, workerResponse, query string) (string, error) {
	current := currentContext
	if strings.TrimSpace(current) == "" {
		current = constant.NoPreviousContext
	}

	out, err := m.call(ctx, fmt.Sprintf(constant.ManagerUpdateContextPrompt, query, current, workerResponse))
	if err != nil {
		return "", fmt.Errorf("manager context update: %w", err)
	}
	return out, nil
}

func (m *Manager) call(ctx context.Context, userPrompt string) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: m.prompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}
	return complete(ctx, m.provider, messages,
		llm.WithTemperature(managerTemperature),
		llm.WithMaxTokens(managerMaxTokens),
		llm.WithModel(m.model),
	)
}

// FormatWorkerOutputs numbers each output from 1 and separates them by blank lines.
func FormatWorkerOutputs(outputs []string) string {
	parts := make([]string, len(outputs))
	for i, out := range outputs {
		parts[i] = fmt.Sprintf("Worker %d: %s", i+1, out)
	}
	return strings.Join(parts, "\n\n")
}
