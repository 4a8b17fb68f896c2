package session

// ValidationError reports a submit the session refused. It never reaches the network.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid submit: " + e.Reason
}

var (
	// ErrEmptyMessage is returned when the submitted text is blank.
	ErrEmptyMessage = ValidationError{Reason: "message is empty"}
	// ErrNotReady is returned when a submit arrives while a request is in flight or an error has not
	// been acknowledged yet.
	ErrNotReady = ValidationError{Reason: "conversation is not ready"}
	// ErrClosed is returned after the session has been closed.
	ErrClosed = ValidationError{Reason: "session is closed"}
)
