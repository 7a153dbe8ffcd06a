package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chain-of-agents-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "manager-model", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 1024, req.Options.NumPredict)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "Hello there!"},
			"done":    true,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "worker-model")
	out, err := p.Chat(context.Background(),
		[]llm.Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		llm.WithModel("manager-model"), llm.WithMaxTokens(1024))

	require.NoError(t, err)
	assert.Equal(t, "Hello there!", out)
}

func TestOllamaProvider_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Write([]byte(`{"message":{"role":"assistant","content":"Hello"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":" world"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "test")
	stream, err := p.Stream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	var deltas []string
	for d, err := range stream {
		require.NoError(t, err)
		deltas = append(deltas, d)
	}
	assert.Equal(t, []string{"Hello", " world"}, deltas)
}

func TestOllamaProvider_StreamErrorLine(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"par"},"done":false}` + "\n"))
		w.Write([]byte(`{"error":"model crashed"}` + "\n"))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "test")
	stream, err := p.Stream(context.Background(), nil)
	require.NoError(t, err)

	_, err = llm.Collect(stream)
	assert.ErrorContains(t, err, "model crashed")
}

func TestOllamaProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL, "test")

	_, err := p.Generate(context.Background(), "test")
	assert.Error(t, err)

	_, err = p.Stream(context.Background(), nil)
	assert.Error(t, err)

	assert.Error(t, p.Ping(context.Background()))
}

func TestOllamaProvider_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	assert.NoError(t, NewOllamaProvider(server.URL, "test").Ping(context.Background()))
}
