package types

import "errors"

// Validation error types shared across all components.
var (
	ErrInvalidRequestID     = errors.New("request id cannot be empty")
	ErrInvalidStudentID     = errors.New("invalid student id format")
	ErrInvalidEducatorID    = errors.New("invalid educator id format")
	ErrInvalidUserID        = errors.New("invalid user id format")
	ErrMissingUserName      = errors.New("user display name cannot be empty")
	ErrInvalidRole          = errors.New("invalid role: must be 'student', 'educator' or 'admin'")
	ErrInvalidRequestStatus = errors.New("invalid request status")
	ErrInvalidRoomID        = errors.New("invalid room id format")
	ErrInvalidRoomStatus    = errors.New("invalid room status")
	ErrMissingRoomID        = errors.New("accepted request is missing a room id")
	ErrMissingEndTime       = errors.New("completed room is missing an end time")
)
