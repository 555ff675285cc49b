package session

import (
	"context"
	"log"
	"sync"
	"time"

	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// Client joins and leaves voice rooms through the media SDK boundary.
// It owns the fixed room configuration and the leave protocol: however a
// session ends (explicit hangup, SDK disconnect, end-call), the backend
// is told to mark the room completed before the SDK instance is
// destroyed.
type Client struct {
	identity types.Identity
	appID    string
	roomCfg  types.RoomConfig

	backend  interfaces.Backend
	provider interfaces.MediaProvider
	tokens   interfaces.TokenSource
	journal  interfaces.Journal
	notifier interfaces.Notifier
}

// NewClient creates a room session client. appID may be empty; Join then
// fails fast with the fatal configuration error.
func NewClient(identity types.Identity, appID string, backend interfaces.Backend, provider interfaces.MediaProvider, tokens interfaces.TokenSource, journal interfaces.Journal, notifier interfaces.Notifier) *Client {
	return &Client{
		identity: identity,
		appID:    appID,
		roomCfg:  types.DefaultRoomConfig(),
		backend:  backend,
		provider: provider,
		tokens:   tokens,
		journal:  journal,
		notifier: notifier,
	}
}

// Join enters a room. Order matters: context and configuration are
// validated before anything touches the network, the token is acquired
// before the backend join is recorded, and the SDK join happens last so
// a failure leaves no dangling media session.
func (c *Client) Join(ctx context.Context, roomID string) (*ActiveSession, error) {
	if roomID == "" || c.identity.IsZero() {
		return nil, ErrMissingRoomContext
	}

	// Missing credentials are a deployment defect, not a retryable
	// condition; the provider is never invoked.
	if c.appID == "" || c.provider == nil {
		c.notifier.Error("Voice sessions are unavailable: %v. %s", ErrMediaNotConfigured, Remediation)
		return nil, ErrMediaNotConfigured
	}

	token, err := c.tokens.Token(ctx, roomID, c.identity)
	if err != nil {
		c.notifier.Error("Voice sessions are unavailable: %v. %s", err, Remediation)
		return nil, ErrMediaNotConfigured
	}

	if err := c.backend.JoinRoom(ctx, roomID); err != nil {
		c.notifier.Error("Could not join room: %v", err)
		return nil, err
	}

	room, err := c.provider.Join(ctx, roomID, token, c.identity, c.roomCfg)
	if err != nil {
		c.notifier.Error("Could not join room: %v", err)
		return nil, err
	}

	entryID, err := c.journal.RecordSession(ctx, roomID, c.identity.Role, time.Now())
	if err != nil {
		// History is best effort; the session proceeds without it.
		log.Printf("Failed to record session history for room %s: %v", roomID, err)
	}

	s := &ActiveSession{
		client:  c,
		roomID:  roomID,
		entryID: entryID,
		room:    room,
		done:    make(chan struct{}),
	}

	go s.pump()

	c.notifier.Info("Joined room %s", roomID)
	return s, nil
}

// ActiveSession is one joined room from join until leave.
type ActiveSession struct {
	client  *Client
	roomID  string
	entryID string
	room    interfaces.MediaRoom

	once sync.Once
	done chan struct{}
}

// RoomID returns the joined room's id.
func (s *ActiveSession) RoomID() string {
	return s.roomID
}

// Done is closed once the session has fully ended.
func (s *ActiveSession) Done() <-chan struct{} {
	return s.done
}

// pump translates SDK callbacks into notifications. Join/leave toasts
// are purely cosmetic; participant counts come from backend polls. A
// terminal disconnect runs the same leave protocol as a hangup.
func (s *ActiveSession) pump() {
	for event := range s.room.Events() {
		switch event.Kind {
		case types.RoomEventUserJoined:
			s.client.notifier.Info("%s joined the room", event.User.Name)
		case types.RoomEventUserLeft:
			s.client.notifier.Info("%s left the room", event.User.Name)
		case types.RoomEventDisconnected:
			s.finish(context.Background(), "Disconnected from room")
			return
		}
	}
}

// Leave is the local hangup / leave-room callback path: notify the
// backend, close the history entry, destroy the SDK instance.
func (s *ActiveSession) Leave(ctx context.Context) error {
	return s.finish(ctx, "Left room")
}

// End is the explicit end-call action. It runs the identical protocol;
// only the notification differs.
func (s *ActiveSession) End(ctx context.Context) error {
	return s.finish(ctx, "Call ended")
}

// finish runs the leave protocol exactly once.
func (s *ActiveSession) finish(ctx context.Context, toast string) error {
	var ran bool
	s.once.Do(func() {
		ran = true

		// Backend first: the room must be marked completed even if the
		// SDK teardown misbehaves.
		if err := s.client.backend.EndRoom(ctx, s.roomID); err != nil {
			s.client.notifier.Warn("Could not mark room %s as ended: %v", s.roomID, err)
		}

		if s.entryID != "" {
			if err := s.client.journal.CloseSession(ctx, s.entryID, time.Now()); err != nil {
				log.Printf("Failed to close session history for room %s: %v", s.roomID, err)
			}
		}

		if err := s.room.Leave(); err != nil {
			log.Printf("Media room teardown failed for room %s: %v", s.roomID, err)
		}

		s.client.notifier.Info("%s", toast)
		close(s.done)
	})
	if !ran {
		return ErrAlreadyEnded
	}
	return nil
}
