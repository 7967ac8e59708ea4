package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"chat-backend/internal/chat"
)

// LangchainTransport is an alternate transport built on langchaingo's openai
// client. Selected with LLM_TRANSPORT=langchain.
type LangchainTransport struct{}

func NewLangchainTransport() *LangchainTransport {
	return &LangchainTransport{}
}

func (t *LangchainTransport) OpenStream(ctx context.Context, params chat.ModelParams, history []chat.Message, cb chat.Callbacks) (chat.StreamHandle, error) {
	client, err := openai.New(
		openai.WithToken(params.APIKey),
		openai.WithModel(params.Engine),
		openai.WithBaseURL(params.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create client: %w", err)
	}

	messages := make([]llms.MessageContent, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case chat.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		default:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer cancel()

		started := false
		_, err := client.GenerateContent(ctx, messages, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if !started {
				cb.OnStreamStart()
				started = true
			}
			cb.OnChunk(string(chunk))
			return nil
		}))
		if err == nil && !started {
			cb.OnStreamStart()
		}
		cb.OnStreamEnd(err)
	}()

	return &cancelHandle{cancel: cancel}, nil
}
