package push

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"voicebridge/internal/config"
	"voicebridge/internal/poll"
	"voicebridge/pkg/types"
)

// Subscriber maintains a WebSocket subscription to the backend's
// lifecycle event stream and pokes the poller when a relevant delta
// arrives. It is an accelerator, not a source of truth: events carry no
// authoritative state, and when the stream is down the poller alone keeps
// every view fresh. The join-on-accept de-duplication layer therefore
// holds regardless of which transport noticed the acceptance first.
type Subscriber struct {
	endpoint string
	identity types.Identity
	cfg      *config.PushConfig
	poller   *poll.Poller

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSubscriber builds a subscriber for the backend's /voice-room/events
// endpoint.
func NewSubscriber(serverURL string, identity types.Identity, cfg *config.PushConfig, poller *poll.Poller) (*Subscriber, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return nil, ErrInvalidURL
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, ErrInvalidURL
	}

	u.Path = "/voice-room/events"
	query := u.Query()
	query.Set("user_id", identity.UserID)
	query.Set("role", identity.Role)
	u.RawQuery = query.Encode()

	return &Subscriber{
		endpoint: u.String(),
		identity: identity,
		cfg:      cfg,
		poller:   poller,
	}, nil
}

// Start launches the connect/read/reconnect loop.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)

	return nil
}

// Stop tears the subscription down.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	s.wg.Wait()

	return nil
}

// run reconnects with capped exponential backoff. A successful session
// resets the backoff.
func (s *Subscriber) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := s.cfg.ReconnectMin

	for {
		if ctx.Err() != nil {
			return
		}

		err := s.readSession(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("Push subscription lost, falling back to polling for %s: %v", backoff, err)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff *= 2
		if backoff > s.cfg.ReconnectMax {
			backoff = s.cfg.ReconnectMax
		}
	}
}

// readSession dials once and consumes events until the connection drops.
func (s *Subscriber) readSession(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// Unblock the read loop on shutdown. The close frame tells the
	// backend this is a deliberate disconnect, not a dropped client.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		case <-done:
		}
	}()

	log.Printf("Push subscription established for user=%s", s.identity.UserID)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return err
		}

		var event types.Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}

		s.dispatch(event)
	}
}

// dispatch pokes the feeds a lifecycle event invalidates. Poking a feed
// the poller does not run is a no-op, so one mapping serves all roles.
func (s *Subscriber) dispatch(event types.Event) {
	for _, feed := range eventFeeds(event.Type) {
		s.poller.Poke(feed)
	}
}

// eventFeeds maps a lifecycle event type to the feeds it invalidates.
func eventFeeds(eventType string) []poll.Feed {
	switch eventType {
	case types.EventRequestUpdated:
		return []poll.Feed{poll.FeedOwnRequests, poll.FeedPendingRequests}
	case types.EventRoomStarted, types.EventRoomEnded:
		return []poll.Feed{poll.FeedLive, poll.FeedActiveRooms, poll.FeedEducators}
	default:
		return nil
	}
}
