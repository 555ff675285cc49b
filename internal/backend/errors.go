package backend

import (
	"errors"
	"fmt"
)

// Client-side error types for calls to the REST collaborator.
var (
	ErrEmptyEducatorID = errors.New("educator id cannot be empty")
	ErrEmptyRequestID  = errors.New("request id cannot be empty")
	ErrEmptyRoomID     = errors.New("room id cannot be empty")
	ErrInvalidAction   = errors.New("action must be 'accept' or 'reject'")
)

// APIError is a non-2xx backend response with the best-effort message
// extracted from the body. Poll-driven callers treat it as transient; the
// next tick is the de facto retry.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == status
	}
	return false
}
