package monitor

import "errors"

// Monitor error types.
var (
	ErrAlreadyRunning   = errors.New("monitor is already running")
	ErrNotRunning       = errors.New("monitor is not running")
	ErrNotAuthenticated = errors.New("you must be signed in as an admin")
	ErrNotConfirmed     = errors.New("force end was not confirmed")
)
