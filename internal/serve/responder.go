package serve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docuchat/docuchat/internal/chat"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Responder produces the assistant reply for one message, emitting it
// token by token. Returning an error from emit aborts the reply.
type Responder interface {
	Respond(ctx context.Context, req chat.ChatRequest, emit func(token string) error) error
}

// NewResponder picks the responder named by cfg.Provider.
func NewResponder(cfg config.ServeConfig) (Responder, error) {
	switch cfg.Provider {
	case "", "echo":
		return EchoResponder{Delay: 40 * time.Millisecond}, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("provider openai needs serve.openai_api_key or OPENAI_API_KEY")
		}
		return NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.SystemPrompt), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want echo or openai)", cfg.Provider)
	}
}

// EchoResponder answers with a fixed Persian prefix followed by the user's
// message, split on spaces. It needs no credentials.
type EchoResponder struct {
	// Delay is slept between tokens to make streaming visible.
	Delay time.Duration
}

const echoPrefix = "پاسخ آزمایشی: "

func (e EchoResponder) Respond(ctx context.Context, req chat.ChatRequest, emit func(string) error) error {
	for _, token := range strings.SplitAfter(echoPrefix+req.Message, " ") {
		if token == "" {
			continue
		}
		if e.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.Delay):
			}
		}
		if err := emit(token); err != nil {
			return err
		}
	}
	return nil
}

// OpenAIResponder streams chat completions from OpenAI or a compatible API.
type OpenAIResponder struct {
	client       openai.Client
	systemPrompt string
}

func NewOpenAIResponder(apiKey, baseURL, systemPrompt string, opts ...option.RequestOption) *OpenAIResponder {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIResponder{
		client:       openai.NewClient(reqOpts...),
		systemPrompt: systemPrompt,
	}
}

func (o *OpenAIResponder) Respond(ctx context.Context, req chat.ChatRequest, emit func(string) error) error {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if o.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(o.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Message))

	stream := o.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	})
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if err := emit(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}
	return nil
}
