package llm

import (
	"fmt"
	"sync"

	"chat-backend/internal/chat"
)

// Registry maps model identifiers to upstream connection parameters. All
// registered models share one endpoint and API key, which is how an
// OpenRouter-style aggregator exposes many models behind a single base URL.
type Registry struct {
	mu      sync.RWMutex
	baseURL string
	apiKey  string
	order   []string
	models  map[string]chat.ModelInfo
}

func NewRegistry(baseURL, apiKey string, modelIDs []string) *Registry {
	r := &Registry{
		baseURL: baseURL,
		apiKey:  apiKey,
		models:  make(map[string]chat.ModelInfo, len(modelIDs)),
	}
	for _, id := range modelIDs {
		r.add(chat.ModelInfo{ID: id, Name: id})
	}
	return r
}

func (r *Registry) add(info chat.ModelInfo) {
	if _, exists := r.models[info.ID]; !exists {
		r.order = append(r.order, info.ID)
	}
	r.models[info.ID] = info
}

func (r *Registry) Resolve(modelID string) (chat.ModelParams, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, exists := r.models[modelID]; !exists {
		return chat.ModelParams{}, fmt.Errorf("model %q is not registered: %w", modelID, chat.ErrUnknownModel)
	}
	return chat.ModelParams{
		Engine:  modelID,
		BaseURL: r.baseURL,
		APIKey:  r.apiKey,
	}, nil
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []chat.ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]chat.ModelInfo, 0, len(r.order))
	for _, id := range r.order {
		models = append(models, r.models[id])
	}
	return models
}

func (r *Registry) APIKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apiKey
}

func (r *Registry) SetAPIKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apiKey = key
}

// Merge adds catalog entries for already-registered models, refreshing their
// display names, and registers models not seen before.
func (r *Registry) Merge(infos []chat.ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, info := range infos {
		if info.Name == "" {
			info.Name = info.ID
		}
		r.add(info)
	}
}
