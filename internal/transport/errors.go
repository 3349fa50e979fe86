package transport

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned (wrapped in an APIError) when the server
// answers 401. The session layer treats it as fatal and forces logout.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a structured error from the REST backend. The server reports
// failures as a JSON body with a "message" field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) work for 401 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == 401 {
		return ErrUnauthorized
	}
	return nil
}

// UserMessage extracts the server-provided message from an error if it is an
// APIError, falling back to the plain error text. Screens display this.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
