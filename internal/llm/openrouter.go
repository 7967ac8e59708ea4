package llm

import (
	"context"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"chat-backend/internal/chat"
)

// OpenAITransport streams chat completions over the OpenAI wire protocol,
// which is what OpenRouter and most hosted model providers speak.
type OpenAITransport struct{}

func NewOpenAITransport() *OpenAITransport {
	return &OpenAITransport{}
}

type cancelHandle struct {
	cancel context.CancelFunc
}

func (h *cancelHandle) Cancel() { h.cancel() }

func (t *OpenAITransport) OpenStream(ctx context.Context, params chat.ModelParams, history []chat.Message, cb chat.Callbacks) (chat.StreamHandle, error) {
	client := openai.NewClient(
		option.WithAPIKey(params.APIKey),
		option.WithBaseURL(params.BaseURL),
	)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()

		stream := client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    params.Engine,
			Messages: messages,
		})
		defer stream.Close()

		started := false
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !started {
				cb.OnStreamStart()
				started = true
			}
			cb.OnChunk(delta)
		}

		err := stream.Err()
		if err == nil && !started {
			// Zero-content completions still open and close the stream so
			// the transcript records an (empty) assistant turn.
			cb.OnStreamStart()
		}
		cb.OnStreamEnd(err)
	}()

	return &cancelHandle{cancel: cancel}, nil
}
