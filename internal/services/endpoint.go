package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
)

// Endpoint is a transport for servers that answer a chat request with a plain text body streamed
// chunk by chunk, such as this project's own /api/chat handler.
type Endpoint struct {
	url          string
	apiKey       string
	systemPrompt string

	client *http.Client

	logger *slog.Logger
}

type endpointChatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []wireMessage `json:"messages"`
}

const endpointReadSize = 4 << 10

// NewEndpoint creates a new Endpoint posting to cfg.BaseURL, the full URL of the chat handler. The API
// key is optional here; when set it is sent as a bearer token.
func NewEndpoint(cfg Config, logger *slog.Logger) Endpoint {
	return Endpoint{
		url:          cfg.BaseURL,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		client:       cfg.httpClient(),
		logger:       logger.With(slog.String("module", "endpoint")),
	}
}

// Chat posts the history and yields body chunks as they arrive. Chunk boundaries follow the network,
// not the model's tokens.
func (e Endpoint) Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := validateHistory(messages); err != nil {
			yield("", err)
			return
		}

		jsonBody, err := json.Marshal(endpointChatRequest{
			Model:    model,
			Messages: wireMessages(messages, e.systemPrompt),
		})
		if err != nil {
			yield("", &TransportError{Code: http.StatusInternalServerError, Message: "error marshaling request", Err: err})
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", &TransportError{Code: http.StatusInternalServerError, Message: "error creating request", Err: err})
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/plain")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
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

		buf := make([]byte, endpointReadSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if !yield(string(buf[:n]), nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				if isCanceled(err) || ctx.Err() != nil {
					return
				}
				e.logger.Debug("Stream read failed", slog.String("err", err.Error()))
				yield("", networkError("error reading response", err))
				return
			}
		}
	}
}
