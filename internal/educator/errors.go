package educator

import "errors"

// Responder error types.
var (
	ErrAlreadyRunning   = errors.New("responder is already running")
	ErrNotRunning       = errors.New("responder is not running")
	ErrNotAuthenticated = errors.New("you must be signed in as an educator")
	ErrGateClosed       = errors.New("voice calls are available on weekends only")
	ErrEducatorBusy     = errors.New("you already have an active room")
	ErrActionInFlight   = errors.New("this request is already being processed")

	// ErrMissingRoomID covers the defensive check on accept: the backend
	// reported success but returned no room, so navigating would strand
	// both sides in a room that does not exist.
	ErrMissingRoomID = errors.New("request was accepted but no room was created")
)
