package services

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the LLM interface for OpenAI compatible chat completion APIs.
// Pointing BaseURL at https://openrouter.ai/api/v1 makes it an alternative OpenRouter client.
type OpenAI struct {
	apiKey       string
	systemPrompt string

	client *goopenai.Client

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance from cfg. An empty BaseURL selects the OpenAI API.
func NewOpenAI(cfg Config, logger *slog.Logger) OpenAI {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = cfg.httpClient()

	return OpenAI{
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		client:       goopenai.NewClientWithConfig(clientCfg),
		logger:       logger.With(slog.String("module", "openai")),
	}
}

func openAIMessages(messages []models.Message, systemPrompt string) []goopenai.ChatCompletionMessage {
	wms := wireMessages(messages, systemPrompt)
	msgs := make([]goopenai.ChatCompletionMessage, len(wms))
	for i, wm := range wms {
		msgs[i] = goopenai.ChatCompletionMessage{
			Role:    wm.Role,
			Content: wm.Content,
		}
	}
	return msgs
}

// Chat is a wrapper around the OpenAI streaming chat completion API.
func (o OpenAI) Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := validateHistory(messages); err != nil {
			yield("", err)
			return
		}
		if o.apiKey == "" {
			yield("", unauthenticatedError())
			return
		}

		req := goopenai.ChatCompletionRequest{
			Model:    model,
			Messages: openAIMessages(messages, o.systemPrompt),
			Stream:   true,
		}

		o.logger.Debug("Request", slog.String("model", model), slog.Int("messages", len(req.Messages)))

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			if isCanceled(err) {
				return
			}
			yield("", openAIError("error sending request", err))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if isCanceled(err) || ctx.Err() != nil {
					return
				}
				yield("", openAIError("error receiving response", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			if content := response.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

// openAIError keeps the HTTP status the client library reports, if any.
func openAIError(msg string, err error) *TransportError {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &TransportError{Code: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &TransportError{Code: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}
	return &TransportError{Code: http.StatusBadGateway, Message: msg, Err: err}
}
