package journal

import "errors"

// Journal error types.
var (
	ErrClosed         = errors.New("journal is closed")
	ErrWriteTimeout   = errors.New("journal write timed out")
	ErrEntryNotFound  = errors.New("journal entry not found")
	ErrEmptyRequestID = errors.New("request id cannot be empty")
	ErrEmptyRoomID    = errors.New("room id cannot be empty")
)
