package media

import "errors"

// Media boundary error types.
var (
	// ErrNotConfigured is fatal for a join attempt: there is no retry
	// path other than fixing the deployment. The session client surfaces
	// it with remediation instructions.
	ErrNotConfigured = errors.New("media app id and server secret are not configured")

	ErrInvalidToken   = errors.New("room token is invalid or expired")
	ErrTokenWrongRoom = errors.New("room token is scoped to a different room")
	ErrTokenWrongUser = errors.New("room token was issued to a different user")
	ErrRoomFull       = errors.New("room has reached its participant limit")
	ErrAlreadyInRoom  = errors.New("user is already in the room")
)
