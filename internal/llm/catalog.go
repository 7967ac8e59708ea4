package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"

	"chat-backend/internal/chat"
)

// CatalogClient fetches the model catalog from an OpenRouter-compatible
// endpoint (GET {base}/models).
type CatalogClient struct {
	http *resty.Client
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		http: resty.New().SetBaseURL(baseURL),
	}
}

type catalogModel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type catalogResponse struct {
	Data []catalogModel `json:"data"`
}

func (c *CatalogClient) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	var catalog catalogResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&catalog).
		Get("/models")
	if err != nil {
		return nil, fmt.Errorf("fetching model catalog: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetching model catalog: status %d", resp.StatusCode())
	}

	models := make([]chat.ModelInfo, 0, len(catalog.Data))
	for _, m := range catalog.Data {
		models = append(models, chat.ModelInfo{ID: m.ID, Name: m.Name})
	}
	return models, nil
}

// RefreshRegistry merges the upstream catalog into the registry. Catalog
// failures are logged and non-fatal; the registry keeps its configured
// models.
func RefreshRegistry(ctx context.Context, registry *Registry, catalog *CatalogClient) {
	models, err := catalog.ListModels(ctx)
	if err != nil {
		slog.Warn("could not refresh model catalog", "error", err)
		return
	}
	registry.Merge(models)
	slog.Info("model catalog refreshed", "models", len(models))
}
