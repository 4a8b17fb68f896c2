package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and handles streaming chat completions.
type Ollama struct {
	host         string
	systemPrompt string

	client *api.Client

	logger *slog.Logger
}

const ollamaDefaultHost = "http://localhost:11434"

// NewOllama creates a new Ollama instance. cfg.BaseURL is the Ollama server URL and defaults to the
// local server. An Ollama server needs no API key.
func NewOllama(cfg Config, logger *slog.Logger) (Ollama, error) {
	host := cfg.BaseURL
	if host == "" {
		host = ollamaDefaultHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:         host,
		systemPrompt: cfg.SystemPrompt,
		client:       api.NewClient(u, cfg.httpClient()),
		logger:       logger.With(slog.String("module", "ollama")),
	}, nil
}

// Chat implements the LLM interface by streaming responses from the Ollama model. Fragments are yielded
// incrementally as the server produces them.
func (o Ollama) Chat(ctx context.Context, messages []models.Message, model string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := validateHistory(messages); err != nil {
			yield("", err)
			return
		}

		wms := wireMessages(messages, o.systemPrompt)
		msgs := make([]api.Message, len(wms))
		for i, wm := range wms {
			msgs[i] = api.Message{
				Role:    wm.Role,
				Content: wm.Content,
			}
		}

		t := true
		req := api.ChatRequest{
			Model:    model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped || res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		})
		if err == nil || stopped || isCanceled(err) {
			return
		}

		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			yield("", &TransportError{Code: statusErr.StatusCode, Message: statusErr.ErrorMessage, Err: err})
			return
		}
		yield("", &TransportError{Code: http.StatusBadGateway, Message: "error sending request", Err: err})
	}
}
