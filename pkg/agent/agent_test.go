package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chain-of-agents-be/internal/constant"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/chunker"
	"chain-of-agents-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	reply    string
	err      error
	messages [][]llm.Message
	options  []llm.Options
}

func (p *recordingProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *recordingProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *recordingProvider) Stream(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.TokenStream, error) {
	p.messages = append(p.messages, history)
	p.options = append(p.options, llm.ApplyOptions(llm.Options{}, opts...))
	if p.err != nil {
		return nil, p.err
	}
	words := strings.SplitAfter(p.reply, " ")
	return llm.Once(func(yield func(string, error) bool) {
		for _, w := range words {
			if !yield(w, nil) {
				return
			}
		}
	}), nil
}

func TestWorker_Process(t *testing.T) {
	p := &recordingProvider{reply: "  chunk mentions revenue  "}
	w := NewWorker(p, DefaultPrompts(), "worker-model", logger.NewNopLogger())

	out, err := w.Process(context.Background(), chunker.Chunk{Index: 0, Text: "Revenue grew.", WordCount: 2}, "What grew?", nil)
	require.NoError(t, err)
	assert.Equal(t, "chunk mentions revenue", out)

	require.Len(t, p.messages, 1)
	msgs := p.messages[0]
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, constant.WorkerSystemPrompt, msgs[0].Content)
	assert.Contains(t, msgs[1].Content, "Query: What grew?")
	assert.Contains(t, msgs[1].Content, "Revenue grew.")
	assert.Contains(t, msgs[1].Content, "Previous Cognitive Unit: None")

	assert.Equal(t, "worker-model", p.options[0].Model)
	assert.Equal(t, 512, p.options[0].MaxTokens)
	assert.Equal(t, 0.3, p.options[0].Temperature)
}

func TestWorker_ProcessWithPreviousContext(t *testing.T) {
	p := &recordingProvider{reply: "ok"}
	w := NewWorker(p, DefaultPrompts(), "", logger.NewNopLogger())

	prev := "earlier finding"
	_, err := w.Process(context.Background(), chunker.Chunk{Index: 1, Text: "more"}, "q", &prev)
	require.NoError(t, err)
	assert.Contains(t, p.messages[0][1].Content, "Previous Cognitive Unit: earlier finding")
}

func TestWorker_PropagatesFailure(t *testing.T) {
	boom := errors.New("backend down")
	w := NewWorker(&recordingProvider{err: boom}, DefaultPrompts(), "", logger.NewNopLogger())

	_, err := w.Process(context.Background(), chunker.Chunk{Index: 3}, "q", nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "worker chunk 3")
}

func TestManager_Synthesize(t *testing.T) {
	p := &recordingProvider{reply: "final answer"}
	m := NewManager(p, DefaultPrompts(), "manager-model", logger.NewNopLogger())

	out, err := m.Synthesize(context.Background(), []string{"first", "second"}, "What is discussed?")
	require.NoError(t, err)
	assert.Equal(t, "final answer", out)

	user := p.messages[0][1].Content
	assert.Contains(t, user, "Worker 1: first\n\nWorker 2: second")
	assert.Contains(t, user, "Query: What is discussed?")
	assert.Equal(t, 1024, p.options[0].MaxTokens)
	assert.Equal(t, "manager-model", p.options[0].Model)
}

func TestManager_UpdateContext(t *testing.T) {
	p := &recordingProvider{reply: "merged"}
	m := NewManager(p, DefaultPrompts(), "", logger.NewNopLogger())

	out, err := m.UpdateContext(context.Background(), "", "new fact", "q")
	require.NoError(t, err)
	assert.Equal(t, "merged", out)

	user := p.messages[0][1].Content
	assert.Contains(t, user, "Current summary:\nNone")
	assert.Contains(t, user, "new fact")
}

func TestLoadPrompts(t *testing.T) {
	prompts, err := LoadPrompts("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), prompts)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker: |\n  Custom worker role.\n"), 0o600))

	prompts, err = LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, "Custom worker role.\n", prompts.Worker)
	assert.Equal(t, constant.ManagerSystemPrompt, prompts.Manager)

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
