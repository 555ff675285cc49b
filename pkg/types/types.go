package types

import (
	"time"
)

// Request status constants. Values are part of the backend contract and
// must match what the server persists.
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusRejected = "rejected"
	RequestStatusExpired  = "expired"
)

// Room status constants.
const (
	RoomStatusActive    = "active"
	RoomStatusCompleted = "completed"
)

// User roles recognized by the workflow.
const (
	RoleStudent  = "student"
	RoleEducator = "educator"
	RoleAdmin    = "admin"
)

// Identity is the authenticated user on whose behalf the client acts.
// Token issuance itself belongs to the external identity provider; the
// client only carries the opaque bearer token.
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// IsZero reports whether no user is signed in.
func (id Identity) IsZero() bool {
	return id.UserID == ""
}

// CallRequest is a student's solicitation for a live voice session with a
// specific educator. Status is mutated only by the backend (accept/reject
// actions or the hourly expiry sweep); the client treats every snapshot as
// a stale cache.
type CallRequest struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	EducatorID   string    `json:"educator_id"`
	EducatorName string    `json:"educator_name"`
	Message      string    `json:"message,omitempty"`
	Status       string    `json:"status"`
	RoomID       string    `json:"room_id,omitempty"` // set once accepted
	CreatedAt    time.Time `json:"created_at"`
}

// VoiceRoom is a live session instance. A room is active from creation
// until the educator ends it, the leave callback fires, or an admin
// force-ends it. ParticipantCount is a runtime field read fresh from the
// backend, never derived from local join/leave events.
type VoiceRoom struct {
	RoomID           string     `json:"room_id"`
	EducatorID       string     `json:"educator_id"`
	EducatorName     string     `json:"educator_name"`
	Title            string     `json:"title"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	ParticipantCount int        `json:"participant_count"`
}

// Participant identifies one user inside a room, as reported by the
// backend's admin view.
type Participant struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// ActiveRoom is the admin-facing view of a live room. CurrentDuration is
// computed server-side; the monitor only sums it per poll tick.
type ActiveRoom struct {
	VoiceRoom
	Participants    []Participant `json:"participants"`
	CurrentDuration int64         `json:"current_duration"` // seconds
}

// Educator is a directory entry for an educator the student may call.
// Busy mirrors ownership of an active room and is recomputed on every
// poll, never cached durably.
type Educator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Busy bool   `json:"busy"`
}

// WeekendGate is the server-computed call-window restriction. The client
// consumes it read-only to refuse request/accept actions before any
// network call when the window is closed.
type WeekendGate struct {
	Open    bool   `json:"isWeekend"`
	Message string `json:"message"`
}

// LiveSnapshot is one poll tick of the rooms visible to a student plus
// the derived busy educator set.
type LiveSnapshot struct {
	Rooms         []*VoiceRoom `json:"rooms"`
	BusyEducators []string     `json:"busy_educators"`
}

// Room returns the live room with the given id, or nil.
func (s *LiveSnapshot) Room(roomID string) *VoiceRoom {
	if s == nil {
		return nil
	}
	for _, r := range s.Rooms {
		if r.RoomID == roomID {
			return r
		}
	}
	return nil
}

// EducatorBusy reports whether the educator currently owns an active room
// according to this snapshot.
func (s *LiveSnapshot) EducatorBusy(educatorID string) bool {
	if s == nil {
		return false
	}
	for _, id := range s.BusyEducators {
		if id == educatorID {
			return true
		}
	}
	for _, r := range s.Rooms {
		if r.EducatorID == educatorID && r.Status == RoomStatusActive {
			return true
		}
	}
	return false
}

// RoomEventKind enumerates media room callbacks surfaced to the user.
type RoomEventKind string

const (
	RoomEventUserJoined   RoomEventKind = "user_joined"
	RoomEventUserLeft     RoomEventKind = "user_left"
	RoomEventDisconnected RoomEventKind = "disconnected"
)

// RoomEvent is a single media-side occurrence inside a joined room.
// Events are cosmetic (toasts); participant counts are never reconciled
// from them.
type RoomEvent struct {
	Kind RoomEventKind
	User Participant
}

// RoomConfig fixes the media session parameters for every doubt-clearing
// room. The values are business rules, not tunables.
type RoomConfig struct {
	AudioEnabled       bool
	VideoEnabled       bool
	ChatEnabled        bool
	ScreenShareEnabled bool
	MaxParticipants    int
}

// DefaultRoomConfig returns the fixed doubt-clearing room configuration:
// audio on, video off, text chat on, screen share off, 20 participants.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		AudioEnabled:       true,
		VideoEnabled:       false,
		ChatEnabled:        true,
		ScreenShareEnabled: false,
		MaxParticipants:    20,
	}
}

// Lifecycle event kinds delivered over the push channel.
const (
	EventRequestUpdated = "request.updated"
	EventRoomStarted    = "room.started"
	EventRoomEnded      = "room.ended"
)

// Event is one lifecycle delta delivered over the push channel. The
// payload is advisory; consumers re-fetch authoritative state through the
// poller rather than applying deltas directly.
type Event struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
