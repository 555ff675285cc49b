package student

import "errors"

// Submitter error types. Precondition errors are surfaced to the user as
// notifications and are never retried automatically; the next poll tick
// may change the answer.
var (
	ErrAlreadyRunning        = errors.New("submitter is already running")
	ErrNotRunning            = errors.New("submitter is not running")
	ErrNotAuthenticated      = errors.New("you must be signed in as a student to request a call")
	ErrGateClosed            = errors.New("voice calls are available on weekends only")
	ErrNotEnrolled           = errors.New("you can only call educators of courses you are enrolled in")
	ErrRequestAlreadyPending = errors.New("you already have a pending request to this educator")
	ErrEducatorBusy          = errors.New("this educator is currently in another call")
	ErrRequestInFlight       = errors.New("a request to this educator is already being submitted")
	ErrRoomNotLive           = errors.New("this room is not live")
)
