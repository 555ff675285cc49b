package push

import "errors"

// Push subscriber error types.
var (
	ErrAlreadyRunning = errors.New("push subscriber is already running")
	ErrNotRunning     = errors.New("push subscriber is not running")
	ErrInvalidURL     = errors.New("invalid server URL for push subscription")
)
