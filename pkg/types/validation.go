package types

import (
	"regexp"
)

// Compiled once at package initialization; id validation runs on every
// poll tick for every row.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidUserID checks if a user ID meets format requirements.
// 1-50 characters keeps ids safe for journal keys and display.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return idRegex.MatchString(userID)
}

// IsValidRoomID checks if a room identifier meets format requirements.
// Room ids are backend-generated but validated before being used as a
// token scope or journal key.
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 64 {
		return false
	}
	return idRegex.MatchString(roomID)
}

// IsValidRole checks the role against the three workflow roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleEducator, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsValidRequestStatus checks a request status read from the backend.
func IsValidRequestStatus(status string) bool {
	switch status {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected, RequestStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransitionRequest reports whether a request status change observed
// between two polls is legal. Pending may move to any terminal state;
// terminal states never move again.
func CanTransitionRequest(from, to string) bool {
	if from == to {
		return true
	}
	if from == RequestStatusPending {
		return to == RequestStatusAccepted || to == RequestStatusRejected || to == RequestStatusExpired
	}
	return false
}

// Validate ensures a call request snapshot is well formed before it
// enters any component cache.
func (r *CallRequest) Validate() error {
	if r.ID == "" {
		return ErrInvalidRequestID
	}
	if !IsValidUserID(r.StudentID) {
		return ErrInvalidStudentID
	}
	if !IsValidUserID(r.EducatorID) {
		return ErrInvalidEducatorID
	}
	if !IsValidRequestStatus(r.Status) {
		return ErrInvalidRequestStatus
	}
	// An accepted request must carry the room it was accepted into.
	if r.Status == RequestStatusAccepted && r.RoomID == "" {
		return ErrMissingRoomID
	}
	return nil
}

// Validate ensures a room snapshot is well formed.
func (v *VoiceRoom) Validate() error {
	if !IsValidRoomID(v.RoomID) {
		return ErrInvalidRoomID
	}
	if !IsValidUserID(v.EducatorID) {
		return ErrInvalidEducatorID
	}
	if v.Status != RoomStatusActive && v.Status != RoomStatusCompleted {
		return ErrInvalidRoomStatus
	}
	if v.Status == RoomStatusCompleted && v.EndedAt == nil {
		return ErrMissingEndTime
	}
	return nil
}

// Validate ensures an identity can drive the workflow.
func (id Identity) Validate() error {
	if !IsValidUserID(id.UserID) {
		return ErrInvalidUserID
	}
	if id.Name == "" {
		return ErrMissingUserName
	}
	if !IsValidRole(id.Role) {
		return ErrInvalidRole
	}
	return nil
}
