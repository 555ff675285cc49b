package interfaces

import "errors"

// Shared error types used across interface boundaries.
var (
	ErrRequestNotFound  = errors.New("call request not found")
	ErrRoomNotFound     = errors.New("voice room not found")
	ErrTokenUnsupported = errors.New("backend does not issue room tokens")
)
