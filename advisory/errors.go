package advisory

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired indicates that the session cannot be recovered: the
// refresh token is missing, or the refresh call itself was rejected.
// Callers should send the user back to login.
var ErrSessionExpired = errors.New("session expired")

// ErrNoRefreshToken indicates that a refresh was needed but no refresh
// token exists in storage. It always wraps ErrSessionExpired.
var ErrNoRefreshToken = errors.New("no refresh token available")

// ErrorKind classifies an API failure for user-facing reporting.
type ErrorKind int

const (
	KindUnknown      ErrorKind = iota
	KindNetwork                // no response at all
	KindValidation             // 400
	KindUnauthorized           // 401 that survived the refresh path
	KindForbidden              // 403
	KindNotFound               // 404
	KindConflict               // 409
	KindBusinessRule           // 422
	KindRateLimited            // 429
	KindServer                 // 5xx
)

// APIError is a non-auth failure returned by the backend (or the network).
type APIError struct {
	StatusCode int
	Kind       ErrorKind
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("network error: %s", e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// UserMessage returns a short message suitable for direct display.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindNetwork:
		return "Could not reach the server. Check your connection and try again."
	case KindValidation:
		return "The request was rejected: " + e.Message
	case KindUnauthorized:
		return "Your session is no longer valid. Please sign in again."
	case KindForbidden:
		return "You do not have permission to do that."
	case KindNotFound:
		return "The requested resource was not found."
	case KindConflict:
		return "The request conflicts with the current state. Reload and try again."
	case KindBusinessRule:
		return "The request could not be processed: " + e.Message
	case KindRateLimited:
		return "Too many requests. Please wait a moment and try again."
	case KindServer:
		return "The server had a problem. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusUnprocessableEntity:
		return KindBusinessRule
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// errorResponse is the backend's error body shape.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
