package media

import (
	"context"
	"sync"
	"time"

	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// LoopbackProvider is an in-process MediaProvider used by development
// deployments and the test suite. It verifies tokens exactly as a real
// SDK edge would and maintains a per-room participant registry, but moves
// no media. The external SDK is a drop-in replacement behind the same
// interface.
type LoopbackProvider struct {
	appID        string
	serverSecret string

	mu    sync.Mutex
	rooms map[string][]*LoopbackRoom // roomID -> joined members
}

// NewLoopbackProvider creates a loopback provider validating against the
// given credentials.
func NewLoopbackProvider(appID, serverSecret string) *LoopbackProvider {
	return &LoopbackProvider{
		appID:        appID,
		serverSecret: serverSecret,
		rooms:        make(map[string][]*LoopbackRoom),
	}
}

// Join admits the identity into the room after verifying the token's
// signature, scope and subject, and the room's participant limit.
func (p *LoopbackProvider) Join(ctx context.Context, roomID, token string, identity types.Identity, cfg types.RoomConfig) (interfaces.MediaRoom, error) {
	claims, err := VerifyToken(p.appID, p.serverSecret, token)
	if err != nil {
		return nil, err
	}
	if claims.RoomID != roomID {
		return nil, ErrTokenWrongRoom
	}
	if claims.Subject != identity.UserID {
		return nil, ErrTokenWrongUser
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	members := p.rooms[roomID]
	if cfg.MaxParticipants > 0 && len(members) >= cfg.MaxParticipants {
		return nil, ErrRoomFull
	}
	for _, m := range members {
		if m.user.UserID == identity.UserID {
			return nil, ErrAlreadyInRoom
		}
	}

	room := &LoopbackRoom{
		provider: p,
		roomID:   roomID,
		user: types.Participant{
			UserID:   identity.UserID,
			Name:     identity.Name,
			Role:     identity.Role,
			JoinedAt: time.Now(),
		},
		// Buffered so a slow consumer cannot stall another member's
		// leave path; overflow events are dropped, they are cosmetic.
		events: make(chan types.RoomEvent, 32),
	}

	for _, m := range members {
		m.deliver(types.RoomEvent{Kind: types.RoomEventUserJoined, User: room.user})
	}
	p.rooms[roomID] = append(members, room)

	return room, nil
}

// Participants returns the current member count of a room.
func (p *LoopbackProvider) Participants(roomID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rooms[roomID])
}

// remove drops a member from the registry and notifies the remainder.
func (p *LoopbackProvider) remove(room *LoopbackRoom) {
	p.mu.Lock()
	defer p.mu.Unlock()

	members := p.rooms[room.roomID]
	remaining := members[:0]
	for _, m := range members {
		if m != room {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == 0 {
		delete(p.rooms, room.roomID)
	} else {
		p.rooms[room.roomID] = remaining
	}

	for _, m := range remaining {
		m.deliver(types.RoomEvent{Kind: types.RoomEventUserLeft, User: room.user})
	}
}

// LoopbackRoom is one joined loopback session.
type LoopbackRoom struct {
	provider *LoopbackProvider
	roomID   string
	user     types.Participant
	events   chan types.RoomEvent
	once     sync.Once
}

// Events delivers join/leave callbacks; closed after Leave.
func (r *LoopbackRoom) Events() <-chan types.RoomEvent {
	return r.events
}

// deliver is a non-blocking send; dropped events are acceptable because
// participant counts are read from the backend, never from events.
func (r *LoopbackRoom) deliver(ev types.RoomEvent) {
	select {
	case r.events <- ev:
	default:
	}
}

// Leave disconnects the member. Safe to call more than once.
func (r *LoopbackRoom) Leave() error {
	r.once.Do(func() {
		r.provider.remove(r)
		close(r.events)
	})
	return nil
}
