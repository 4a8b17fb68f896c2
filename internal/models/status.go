package models

// Status is the request lifecycle state of a conversation.
type Status string

const (
	// StatusReady means the conversation accepts a new submit.
	StatusReady Status = "ready"
	// StatusSubmitted means a user message was sent and no reply fragment has arrived yet.
	StatusSubmitted Status = "submitted"
	// StatusStreaming means reply fragments are being applied to the open assistant message.
	StatusStreaming Status = "streaming"
	// StatusError means the last request failed. It returns to StatusReady after acknowledgement.
	StatusError Status = "error"
)

// Busy reports whether a request is in flight.
func (s Status) Busy() bool {
	return s == StatusSubmitted || s == StatusStreaming
}
