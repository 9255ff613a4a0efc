package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrBadRequest     = errors.New("bad request")
	ErrAuthentication = errors.New("authentication failed")
	ErrServer         = errors.New("server error")
	ErrAPI            = errors.New("api error")
)

// APIError is a non-2xx answer from the Conso API.
// errors.Is matches it against ErrBadRequest, ErrAuthentication, ErrServer or ErrAPI.
type APIError struct {
	StatusCode int
	Message    string
	// Body is the decoded JSON body, or the raw text when it was not JSON
	Body any

	kind error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error %d", e.StatusCode)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// newAPIError classifies a failed response by status code
func newAPIError(statusCode int, body []byte) *APIError {
	decoded, message := errorDetails(body)

	apiErr := &APIError{StatusCode: statusCode, Message: message, Body: decoded, kind: ErrAPI}
	switch {
	case statusCode == http.StatusBadRequest:
		apiErr.kind = ErrBadRequest
		if apiErr.Message == "" {
			apiErr.Message = "Bad request"
		}
	case statusCode == http.StatusUnauthorized:
		apiErr.kind = ErrAuthentication
		if apiErr.Message == "" {
			apiErr.Message = "Authentication failed"
		}
	case statusCode >= http.StatusInternalServerError:
		apiErr.kind = ErrServer
		if apiErr.Message == "" {
			apiErr.Message = "Server error"
		}
	}
	return apiErr
}

// errorDetails pulls the message from an "error" or "message" key, falling back to the raw text
func errorDetails(body []byte) (any, string) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
		for _, key := range []string{"error", "message"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return obj, s
			}
		}
		return obj, ""
	}

	text := strings.TrimSpace(string(body))
	if text == "" {
		return nil, ""
	}
	return text, text
}
