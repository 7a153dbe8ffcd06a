package factory

import (
	"testing"

	"chain-of-agents-be/pkg/llm/huggingface"
	"chain-of-agents-be/pkg/llm/ollama"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider("ollama", "llama3", "", "")
	require.NoError(t, err)
	o, ok := p.(*ollama.OllamaProvider)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434", o.BaseURL)

	p, err = NewLLMProvider("huggingface", "mistral", "", "key")
	require.NoError(t, err)
	assert.IsType(t, &huggingface.HuggingFaceProvider{}, p)

	_, err = NewLLMProvider("huggingface", "mistral", "", "")
	assert.Error(t, err)

	_, err = NewLLMProvider("gemini", "x", "", "")
	assert.Error(t, err)
}
