package interfaces

import (
	"context"

	"voicebridge/pkg/types"
)

// Request actions accepted by the backend.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// Backend is the REST collaborator contract the coordination workflow is
// a consumer of. The server implementation is external; every method maps
// to one endpoint and returns the backend's view unmodified. All conflict
// resolution (duplicate pending requests, busy educators, gate
// enforcement) is the backend's responsibility — the client only checks
// the same preconditions locally to avoid pointless round trips.
type Backend interface {
	// CreateRequest submits a call request to an educator.
	CreateRequest(ctx context.Context, educatorID, message string) (*types.CallRequest, error)

	// MyRequests returns the caller's own call requests.
	MyRequests(ctx context.Context) ([]*types.CallRequest, error)

	// PendingRequests returns pending requests addressed to the calling
	// educator.
	PendingRequests(ctx context.Context) ([]*types.CallRequest, error)

	// ActOnRequest accepts or rejects a pending request. On accept the
	// backend creates the room and returns its id; on reject the room id
	// is empty.
	ActOnRequest(ctx context.Context, requestID, action string) (roomID string, err error)

	// StartRoom opens a room directly, bypassing the request flow.
	StartRoom(ctx context.Context, title string) (roomID string, err error)

	// Live returns rooms visible to the calling student and the busy
	// educator set.
	Live(ctx context.Context) (*types.LiveSnapshot, error)

	// Educators returns the educator directory for the calling student
	// (educators of enrolled courses).
	Educators(ctx context.Context) ([]*types.Educator, error)

	// ActiveRooms returns every active room system-wide (admin only).
	ActiveRooms(ctx context.Context) ([]*types.ActiveRoom, error)

	// JoinRoom registers the caller as a participant of a live room.
	JoinRoom(ctx context.Context, roomID string) error

	// EndRoom marks a room completed with an end timestamp.
	EndRoom(ctx context.Context, roomID string) error

	// AdminEndRoom force-ends a room regardless of participant consent.
	AdminEndRoom(ctx context.Context, roomID string) error

	// WeekendStatus returns the server-computed call-window gate.
	WeekendStatus(ctx context.Context) (types.WeekendGate, error)

	// IssueToken requests a backend-minted room access token. Backends
	// without the token endpoint return ErrTokenUnsupported.
	IssueToken(ctx context.Context, roomID string) (string, error)
}
