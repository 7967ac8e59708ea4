package chat

import "context"

// ModelParams is the connection information needed to open a stream against
// an upstream model.
type ModelParams struct {
	Engine  string // upstream model name, e.g. "deepseek/deepseek-r1"
	BaseURL string
	APIKey  string
}

type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Registry maps a model identifier to connection parameters. Resolve fails
// with an error matching ErrUnknownModel for unregistered identifiers.
type Registry interface {
	Resolve(modelID string) (ModelParams, error)
	Models() []ModelInfo
}

// Callbacks receive stream lifecycle notifications from a transport. The
// transport must call OnStreamStart before the first OnChunk, deliver chunks
// in order, and finish with exactly one OnStreamEnd. Callbacks may be invoked
// from the transport's own goroutine.
type Callbacks interface {
	OnStreamStart()
	OnChunk(text string)
	OnStreamEnd(err error)
}

// StreamHandle allows best-effort cancellation of an in-flight stream. The
// underlying request may not abort immediately; chunks that arrive after
// cancellation are dropped by the session.
type StreamHandle interface {
	Cancel()
}

// Transport opens a token stream against an upstream model, seeded with the
// conversation so far.
type Transport interface {
	OpenStream(ctx context.Context, params ModelParams, history []Message, cb Callbacks) (StreamHandle, error)
}
