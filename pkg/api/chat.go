package api

import (
	"time"

	"github.com/google/uuid"
)

type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GetModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

type StartSessionRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
}

type ChatSessionMetadata struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type GetSessionsResponse struct {
	Sessions []ChatSessionMetadata `json:"sessions"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type ChatRequest struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

// ChatStreamEvent is one frame of the NDJSON response to a message submit.
// Type is "chunk" while tokens arrive, "message" when a transcript message is
// appended or sealed, and "status" on session state transitions.
type ChatStreamEvent struct {
	Type    string           `json:"type"`
	Status  string           `json:"status,omitempty"`
	Chunk   string           `json:"chunk,omitempty"`
	Message *ChatHistoryItem `json:"message,omitempty"`
}

type ChatHistoryItem struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp string    `json:"timestamp"`
	Metadata  any       `json:"metadata,omitempty"`
}

// HistoryQuery holds pagination query params for the history endpoint.
type HistoryQuery struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type CancelResponse struct {
	Stopped bool `json:"stopped"`
}

type ApiKey struct {
	ApiKey string `json:"api_key"`
}

type LoginRequest struct {
	Passcode string `json:"passcode"`
}
