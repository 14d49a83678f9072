package gateway

import (
	"errors"
	"fmt"
)

// ErrEmptyReply means the remote API answered but produced no text
var ErrEmptyReply = errors.New("remote API returned an empty reply")

// APIError is an application-level failure reported by the remote API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote API error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote API error (status %d): %s", e.StatusCode, e.Message)
}
