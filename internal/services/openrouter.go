package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// OpenRouter provides an implementation of the LLM interface for interacting with OpenRouter's language models.
type OpenRouter struct {
	apiKey       string
	baseURL      string
	systemPrompt string

	client *http.Client

	logger *slog.Logger
}

type openRouterChatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
	Error   *openRouterError            `json:"error,omitempty"`
}

type openRouterStreamingChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

type openRouterError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// NewOpenRouter creates a new OpenRouter instance from cfg. An empty BaseURL selects the public
// OpenRouter API.
func NewOpenRouter(cfg Config, logger *slog.Logger) OpenRouter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openRouterAPIEndpoint
	}
	return OpenRouter{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		systemPrompt: cfg.SystemPrompt,
		client:       cfg.httpClient(),
		logger:       logger.With(slog.String("module", "openrouter")),
	}
}

// Chat streams responses from the OpenRouter API for a given sequence of messages. It returns an iterator
// that yields text fragments in arrival order, or a *TransportError. The context can be used to cancel
// ongoing requests; a canceled stream ends without an error.
func (o OpenRouter) Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := validateHistory(messages); err != nil {
			yield("", err)
			return
		}
		if o.apiKey == "" {
			yield("", unauthenticatedError())
			return
		}

		resp, err := o.doRequest(ctx, messages, model)
		if err != nil {
			if isCanceled(err) {
				return
			}
			yield("", err)
			return
		}
		defer resp.Body.Close()

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if isCanceled(err) || ctx.Err() != nil {
					return
				}
				yield("", networkError("error reading response", err))
				return
			}

			if ev.Data == "[DONE]" {
				return
			}

			var res openRouterStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", malformedError("error unmarshaling response", err))
				return
			}
			if res.Error != nil {
				yield("", &TransportError{
					Code:    http.StatusBadGateway,
					Message: fmt.Sprintf("openrouter error %d: %s", res.Error.Code, res.Error.Message),
				})
				return
			}

			if len(res.Choices) == 0 {
				continue
			}

			if content := res.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
	}
}

func (o OpenRouter) doRequest(ctx context.Context, messages []models.Message, model string) (*http.Response, error) {
	reqBody := openRouterChatRequest{
		Model:    model,
		Messages: wireMessages(messages, o.systemPrompt),
		Stream:   true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &TransportError{Code: http.StatusInternalServerError, Message: "error marshaling request", Err: err}
	}

	o.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, &TransportError{Code: http.StatusInternalServerError, Message: "error creating request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/MegaGrindStone/openrouter-chat/")
	req.Header.Set("X-Title", "OpenRouter Chat")

	resp, err := o.client.Do(req)
	if err != nil {
		if isCanceled(err) {
			return nil, err
		}
		return nil, networkError("error sending request", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return resp, nil
}
