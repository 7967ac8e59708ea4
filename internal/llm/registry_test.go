package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/chat"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry("https://openrouter.ai/api/v1", "sk-test", []string{"deepseek/deepseek-r1", "openai/gpt-4o-mini"})

	params, err := registry.Resolve("deepseek/deepseek-r1")
	require.NoError(t, err)
	assert.Equal(t, "deepseek/deepseek-r1", params.Engine)
	assert.Equal(t, "https://openrouter.ai/api/v1", params.BaseURL)
	assert.Equal(t, "sk-test", params.APIKey)

	_, err = registry.Resolve("made-up-model")
	assert.ErrorIs(t, err, chat.ErrUnknownModel)
}

func TestRegistrySetAPIKey(t *testing.T) {
	registry := NewRegistry("https://openrouter.ai/api/v1", "", []string{"openai/gpt-4o-mini"})
	registry.SetAPIKey("sk-rotated")

	params, err := registry.Resolve("openai/gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "sk-rotated", params.APIKey)
	assert.Equal(t, "sk-rotated", registry.APIKey())
}

func TestRegistryMergeKeepsOrderAndNames(t *testing.T) {
	registry := NewRegistry("https://openrouter.ai/api/v1", "sk-test", []string{"deepseek/deepseek-r1"})
	registry.Merge([]chat.ModelInfo{
		{ID: "deepseek/deepseek-r1", Name: "DeepSeek R1"},
		{ID: "openai/gpt-4o-mini", Name: "GPT-4o mini"},
	})

	models := registry.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "deepseek/deepseek-r1", models[0].ID)
	assert.Equal(t, "DeepSeek R1", models[0].Name)
	assert.Equal(t, "openai/gpt-4o-mini", models[1].ID)
}

func TestCatalogRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"deepseek/deepseek-r1","name":"DeepSeek R1"},{"id":"anthropic/claude-sonnet","name":"Claude Sonnet"}]}`))
	}))
	defer server.Close()

	registry := NewRegistry(server.URL, "sk-test", nil)
	RefreshRegistry(context.Background(), registry, NewCatalogClient(server.URL))

	models := registry.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "DeepSeek R1", models[0].Name)

	_, err := registry.Resolve("anthropic/claude-sonnet")
	assert.NoError(t, err)
}

func TestCatalogRefreshFailureKeepsConfiguredModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	registry := NewRegistry(server.URL, "sk-test", []string{"openai/gpt-4o-mini"})
	RefreshRegistry(context.Background(), registry, NewCatalogClient(server.URL))

	require.Len(t, registry.Models(), 1)
}
