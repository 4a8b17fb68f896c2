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

// Anthropic provides an interface to the Anthropic API for large language model interactions. It implements
// the LLM interface and handles streaming chat completions using Claude models.
type Anthropic struct {
	apiKey       string
	baseURL      string
	systemPrompt string
	maxTokens    int

	client *http.Client

	logger *slog.Logger
}

type anthropicChatRequest struct {
	Model     string        `json:"model"`
	Messages  []wireMessage `json:"messages"`
	System    string        `json:"system,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicAPIVersion  = "2023-06-01"
)

// NewAnthropic creates a new Anthropic instance from cfg. MaxTokens must be set, since the Anthropic
// API requires it on every request.
func NewAnthropic(cfg Config, logger *slog.Logger) Anthropic {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicAPIEndpoint
	}
	return Anthropic{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		client:       cfg.httpClient(),
		logger:       logger.With(slog.String("module", "anthropic")),
	}
}

// extractSystemMessage splits a leading system entry off the wire messages, since Anthropic takes the
// system instruction as a separate field.
func extractSystemMessage(messages []wireMessage) (string, []wireMessage) {
	if len(messages) == 0 {
		return "", messages
	}

	if messages[0].Role == string(models.RoleSystem) {
		return messages[0].Content, messages[1:]
	}

	return "", messages
}

// Chat streams responses from the Anthropic API for a given sequence of messages. It returns an iterator
// that yields text fragments and a *TransportError on failure. The context can be used to cancel ongoing
// requests.
func (a Anthropic) Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := validateHistory(messages); err != nil {
			yield("", err)
			return
		}
		if a.apiKey == "" {
			yield("", unauthenticatedError())
			return
		}

		system, msgs := extractSystemMessage(wireMessages(messages, a.systemPrompt))

		reqBody := anthropicChatRequest{
			Model:     model,
			Messages:  msgs,
			Stream:    true,
			System:    system,
			MaxTokens: a.maxTokens,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", &TransportError{Code: http.StatusInternalServerError, Message: "error marshaling request", Err: err})
			return
		}

		a.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.baseURL+"/messages", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", &TransportError{Code: http.StatusInternalServerError, Message: "error creating request", Err: err})
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)

		resp, err := a.client.Do(req)
		if err != nil {
			if isCanceled(err) {
				return
			}
			yield("", networkError("error sending request", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			yield("", statusError(resp))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				if isCanceled(err) || ctx.Err() != nil {
					return
				}
				yield("", networkError("error reading response", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", malformedError("error unmarshaling error", err))
					return
				}
				yield("", &TransportError{
					Code:    http.StatusBadGateway,
					Message: fmt.Sprintf("anthropic error %s: %s", e.Error.Type, e.Error.Message),
				})
				return
			case "message_stop":
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", malformedError("error unmarshaling response", err))
					return
				}
				if res.Delta.Text == "" {
					continue
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				continue
			}
		}
	}
}
