package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SerializationError reports an inbound message that could not be fully understood. The message it
// belongs to is still usable; it was degraded rather than dropped.
type SerializationError struct {
	Index  int
	Reason string
	Err    error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("message %d: %s: %v", e.Index, e.Reason, e.Err)
	}
	return fmt.Sprintf("message %d: %s", e.Index, e.Reason)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// inboundMessage accepts both UI-format messages (structured parts) and direct-format messages
// (flat content). Which fields are set decides the shape.
type inboundMessage struct {
	ID      string          `json:"id"`
	Role    Role            `json:"role"`
	Parts   json.RawMessage `json:"parts"`
	Content json.RawMessage `json:"content"`
}

type inboundPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// inboundShapes is tried in order; the first shape that yields parts wins.
var inboundShapes = []func(inboundMessage) ([]Part, bool){
	structuredParts,
	flatContent,
	contentParts,
}

// ParseMessage decodes one inbound message. When the message has neither structured parts nor flat
// text, the returned message is an empty text turn together with a *SerializationError. A missing or
// unknown role becomes RoleUser, also reported.
func ParseMessage(raw json.RawMessage) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Parts:     []Part{{Type: PartTypeText}},
		CreatedAt: time.Now(),
	}

	var in inboundMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return msg, &SerializationError{Reason: "malformed message", Err: err}
	}
	if in.ID != "" {
		msg.ID = in.ID
	}

	var roleErr error
	if in.Role.Valid() {
		msg.Role = in.Role
	} else {
		roleErr = &SerializationError{Reason: fmt.Sprintf("unknown role %q", in.Role)}
	}

	for _, shape := range inboundShapes {
		if parts, ok := shape(in); ok {
			msg.Parts = parts
			return msg, roleErr
		}
	}

	return msg, &SerializationError{Reason: "message has neither parts nor text content"}
}

// ParseMessages decodes every inbound message, keeping order. Messages that fail to decode are kept in
// degraded form; the returned errors describe them.
func ParseMessages(raws []json.RawMessage) ([]Message, []error) {
	msgs := make([]Message, len(raws))
	var errs []error
	for i, raw := range raws {
		msg, err := ParseMessage(raw)
		if err != nil {
			if se, ok := err.(*SerializationError); ok {
				se.Index = i
			}
			errs = append(errs, err)
		}
		msgs[i] = msg
	}
	return msgs, errs
}

func structuredParts(in inboundMessage) ([]Part, bool) {
	return textParts(in.Parts)
}

func flatContent(in inboundMessage) ([]Part, bool) {
	if len(in.Content) == 0 {
		return nil, false
	}
	var text string
	if err := json.Unmarshal(in.Content, &text); err != nil {
		return nil, false
	}
	return []Part{{Type: PartTypeText, Text: text}}, true
}

func contentParts(in inboundMessage) ([]Part, bool) {
	return textParts(in.Content)
}

func textParts(raw json.RawMessage) ([]Part, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var ps []inboundPart
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, false
	}
	var parts []Part
	for _, p := range ps {
		if p.Type != string(PartTypeText) {
			continue
		}
		parts = append(parts, Part{Type: PartTypeText, Text: p.Text})
	}
	return parts, len(parts) > 0
}
