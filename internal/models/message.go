package models

import (
	"errors"
	"strings"
	"time"
)

// Message represents an individual turn within a conversation. It contains the core components of a
// chat message including its unique identifier, the participant's role, the ordered content parts, and
// the time when the message was created.
//
// A message is Open only while an assistant reply is still being streamed into it. Once sealed, the
// message is immutable.
type Message struct {
	ID        string
	Role      Role
	Parts     []Part
	CreatedAt time.Time

	Open bool
}

// Part is a message content part with its type.
type Part struct {
	Type PartType

	// Text would be filled if Type is PartTypeText.
	Text string
}

// Role represents the role of a message participant.
type Role string

// PartType represents the type of content in message parts.
type PartType string

const (
	// RoleUser represents a user message. A message with this role would only contain text content.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message, which is the one that gets streamed.
	RoleAssistant Role = "assistant"
	// RoleSystem represents a system instruction.
	RoleSystem Role = "system"

	// PartTypeText represents text content.
	PartTypeText PartType = "text"
)

// ErrMessageSealed is returned when appending to a message that is no longer open.
var ErrMessageSealed = errors.New("message is sealed")

// NewUserMessage creates a sealed user message holding text.
func NewUserMessage(id, text string, createdAt time.Time) Message {
	return Message{
		ID:   id,
		Role: RoleUser,
		Parts: []Part{
			{
				Type: PartTypeText,
				Text: text,
			},
		},
		CreatedAt: createdAt,
	}
}

// NewAssistantMessage creates an empty open assistant message, ready to receive streamed text.
func NewAssistantMessage(id string, createdAt time.Time) Message {
	return Message{
		ID:        id,
		Role:      RoleAssistant,
		CreatedAt: createdAt,
		Open:      true,
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Text renders the message's text parts in order.
func (m Message) Text() string {
	return RenderParts(m.Parts)
}

// AppendText appends text to the message's sole text part, creating it on first use. It returns
// ErrMessageSealed if the message has been sealed.
func (m *Message) AppendText(text string) error {
	if !m.Open {
		return ErrMessageSealed
	}
	for i := range m.Parts {
		if m.Parts[i].Type == PartTypeText {
			m.Parts[i].Text += text
			return nil
		}
	}
	m.Parts = append(m.Parts, Part{
		Type: PartTypeText,
		Text: text,
	})
	return nil
}

// Seal marks the message complete. Sealing a sealed message does nothing.
func (m *Message) Seal() {
	m.Open = false
}

// Clone returns a copy of the message that shares no memory with m.
func (m Message) Clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = make([]Part, len(m.Parts))
		copy(c.Parts, m.Parts)
	}
	return c
}

// RenderParts renders a slice of Part into a string. Parts that don't carry text are skipped.
func RenderParts(parts []Part) string {
	var sb strings.Builder
	for _, part := range parts {
		switch part.Type {
		case PartTypeText:
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
