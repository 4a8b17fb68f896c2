package services

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/MegaGrindStone/openrouter-chat/internal/models"
)

// DefaultSystemPrompt is the persona instruction sent ahead of every conversation unless the
// configuration overrides it.
const DefaultSystemPrompt = `You are a helpful, concise assistant. Answer in Markdown. ` +
	`Use fenced code blocks with a language tag for code. ` +
	`If you are not sure about something, say so instead of guessing.`

// DefaultModel is the model used when neither the request nor the configuration names one.
const DefaultModel = "openai/gpt-4o-mini"

// Config is the explicit construction value for every provider. Fields a provider has no use for
// are ignored.
type Config struct {
	APIKey       string
	BaseURL      string
	SystemPrompt string
	// MaxTokens is only required by Anthropic.
	MaxTokens int

	// HTTPClient defaults to a fresh http.Client.
	HTTPClient *http.Client
}

// wireMessage is the role + text pair every provider sends upstream.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResolveModel picks the model for a request: the requested id, then the configured default, then
// DefaultModel.
func ResolveModel(requested, configured string) string {
	if requested != "" {
		return requested
	}
	if configured != "" {
		return configured
	}
	return DefaultModel
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{}
}

// validateHistory checks the input constraint shared by all providers: the history must end with the
// user's turn.
func validateHistory(messages []models.Message) error {
	if len(messages) == 0 {
		return &TransportError{Code: http.StatusBadRequest, Message: "history is empty"}
	}
	if messages[len(messages)-1].Role != models.RoleUser {
		return &TransportError{Code: http.StatusBadRequest, Message: "history must end with a user message"}
	}
	return nil
}

// wireMessages flattens messages into role + text pairs, skipping the ones without text, and puts the
// system prompt in front unless the history already starts with a system message.
func wireMessages(messages []models.Message, systemPrompt string) []wireMessage {
	msgs := make([]wireMessage, 0, len(messages)+1)
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		msgs = append(msgs, wireMessage{
			Role:    string(msg.Role),
			Content: text,
		})
	}
	if systemPrompt == "" {
		return msgs
	}
	if len(msgs) > 0 && msgs[0].Role == string(models.RoleSystem) {
		return msgs
	}
	return slices.Insert(msgs, 0, wireMessage{
		Role:    string(models.RoleSystem),
		Content: systemPrompt,
	})
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
