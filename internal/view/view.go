// Package view maps conversation state to what the web page renders.
package view

import "github.com/MegaGrindStone/openrouter-chat/internal/models"

// Turn is one renderable message.
type Turn struct {
	ID    string
	Role  models.Role
	Label string
	Text  string

	// Open is true while the message still receives fragments.
	Open bool
	// InProgress marks the trailing open turn while the reply is streaming, so the page can show a
	// typing indicator on it and nowhere else.
	InProgress bool
}

// Derive turns messages into renderable turns. It has no side effects.
func Derive(messages []models.Message, status models.Status) []Turn {
	turns := make([]Turn, len(messages))
	for i, msg := range messages {
		turns[i] = Turn{
			ID:    msg.ID,
			Role:  msg.Role,
			Label: msg.Role.Label(),
			Text:  msg.Text(),
			Open:  msg.Open,
		}
	}
	if n := len(turns); n > 0 && status == models.StatusStreaming && turns[n-1].Open {
		turns[n-1].InProgress = true
	}
	return turns
}
