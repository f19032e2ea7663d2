package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrCancelled is reported through OnError when the session's context is
// cancelled. It is a normal outcome, not a failure.
var ErrCancelled = errors.New("cancelled")

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// TransportError is a non-2xx response, a network failure, or a body that
// could not be read. Message is human readable.
type TransportError struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorBody matches both {"error":{"message":"..."}} and {"error":"..."}.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

// newStatusError builds a TransportError from a non-2xx response, preferring
// the provider's own message.
func newStatusError(resp *http.Response) *TransportError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := providerMessage(body)
	if msg == "" {
		msg = statusMessage(resp.StatusCode)
	}

	return &TransportError{
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

func providerMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return ""
	}

	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(eb.Error, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}

	var s string
	if err := json.Unmarshal(eb.Error, &s); err == nil {
		return strings.TrimSpace(s)
	}

	return ""
}

func statusMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "invalid or expired API key"
	case http.StatusForbidden:
		return "not permitted to access this API"
	case http.StatusTooManyRequests:
		return "too many requests, try again later"
	case http.StatusInternalServerError:
		return "internal server error"
	default:
		return fmt.Sprintf("request failed (%d)", status)
	}
}

// newNetworkError wraps a failure that happened before any response arrived.
func newNetworkError(err error) *TransportError {
	return &TransportError{
		Message: "network connection failed, check the network or proxy settings",
		Err:     err,
	}
}

// newReadError wraps a failure while reading a successful response body.
func newReadError(err error) *TransportError {
	return &TransportError{
		StatusCode: http.StatusOK,
		Message:    fmt.Sprintf("reading response stream: %v", err),
		Err:        err,
	}
}
