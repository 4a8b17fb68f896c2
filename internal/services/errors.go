package services

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// TransportError describes a remote call that could not be completed. Code follows HTTP status
// semantics: the provider's status for non-2xx responses, 502 for network failures and malformed
// streams, 401 for a missing credential and 400 for history that cannot be sent.
type TransportError struct {
	Code    int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("transport error %d: %s", e.Code, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrMissingAPIKey is wrapped by the TransportError returned when no credential is configured.
var ErrMissingAPIKey = errors.New("missing API key")

func networkError(msg string, err error) *TransportError {
	return &TransportError{Code: http.StatusBadGateway, Message: msg, Err: err}
}

func malformedError(msg string, err error) *TransportError {
	return &TransportError{Code: http.StatusBadGateway, Message: msg, Err: err}
}

func unauthenticatedError() *TransportError {
	return &TransportError{Code: http.StatusUnauthorized, Message: "authentication failed", Err: ErrMissingAPIKey}
}

// statusError builds a TransportError out of a non-2xx response, reading a bounded part of its body.
func statusError(resp *http.Response) *TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &TransportError{Code: resp.StatusCode, Message: msg}
}
