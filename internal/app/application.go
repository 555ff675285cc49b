package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"voicebridge/internal/backend"
	"voicebridge/internal/config"
	"voicebridge/internal/educator"
	"voicebridge/internal/journal"
	"voicebridge/internal/media"
	"voicebridge/internal/monitor"
	"voicebridge/internal/notify"
	"voicebridge/internal/poll"
	"voicebridge/internal/push"
	"voicebridge/internal/session"
	"voicebridge/internal/student"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// Application coordinates all client components for one signed-in user.
// Clean dependency injection pattern with proper initialization order.
type Application struct {
	config   *config.Config
	identity types.Identity

	client   *backend.Client
	journal  *journal.Journal
	notifier interfaces.Notifier
	poller   *poll.Poller
	pushSub  *push.Subscriber
	sessions *session.Client

	submitter *student.Submitter
	responder *educator.Responder
	liveView  *monitor.Monitor

	mu      sync.Mutex
	current *session.ActiveSession

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// roleFeeds maps a role to the poll feeds its workflow consumes.
func roleFeeds(role string) []poll.Feed {
	switch role {
	case types.RoleStudent:
		return []poll.Feed{poll.FeedOwnRequests, poll.FeedLive, poll.FeedEducators, poll.FeedWeekendGate}
	case types.RoleEducator:
		return []poll.Feed{poll.FeedPendingRequests, poll.FeedLive, poll.FeedWeekendGate}
	case types.RoleAdmin:
		return []poll.Feed{poll.FeedActiveRooms}
	default:
		return nil
	}
}

// NewApplication creates an application instance with all components
// initialized. Component initialization follows strict dependency order:
// Backend → Journal → Poller → Push → Media → Role component → Session.
func NewApplication(cfg *config.Config, identity types.Identity) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid identity: %w", err)
	}

	// STEP 1: Initialize the backend client (foundation layer)
	client := backend.NewClient(cfg.Server, identity)

	// STEP 2: Open the durable journal
	jrnl, err := journal.Open(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// STEP 3: Console notifier for toast-style feedback
	notifier := notify.NewConsole()

	// STEP 4: Initialize the poller with the feeds this role consumes
	feeds := roleFeeds(identity.Role)
	if len(feeds) == 0 {
		jrnl.Close()
		return nil, fmt.Errorf("unsupported role %q", identity.Role)
	}
	poller := poll.NewPoller(client, cfg.Poll, feeds...)

	// STEP 5: Optional push subscriber invalidating poll feeds
	var pushSub *push.Subscriber
	if cfg.Push.Enabled {
		pushSub, err = push.NewSubscriber(cfg.Server.BaseURL, identity, cfg.Push, poller)
		if err != nil {
			jrnl.Close()
			return nil, fmt.Errorf("failed to initialize push subscriber: %w", err)
		}
	}

	// STEP 6: Media provider and token source. Credentials may be
	// absent; joining then fails with the fatal configuration error
	// while the rest of the workflow stays usable.
	provider := media.NewLoopbackProvider(cfg.Media.AppID, cfg.Media.ServerSecret)
	static := &media.StaticTokenSource{
		AppID:        cfg.Media.AppID,
		ServerSecret: cfg.Media.ServerSecret,
		TTL:          cfg.Media.TokenTTL,
	}
	var tokens interfaces.TokenSource = static
	if cfg.Media.TokenFromBackend {
		tokens = &media.BackendTokenSource{Backend: client, Fallback: static}
	}

	// STEP 7: Initialize the role workflow component
	a := &Application{
		config:   cfg,
		identity: identity,
		client:   client,
		journal:  jrnl,
		notifier: notifier,
		poller:   poller,
		pushSub:  pushSub,
	}
	switch identity.Role {
	case types.RoleStudent:
		a.submitter = student.NewSubmitter(identity, client, jrnl, notifier, poller)
	case types.RoleEducator:
		a.responder = educator.NewResponder(identity, client, notifier, poller)
	case types.RoleAdmin:
		a.liveView = monitor.NewMonitor(identity, client, notifier, poller)
	}

	// STEP 8: Room session client shared by both workflow roles
	a.sessions = session.NewClient(identity, cfg.Media.AppID, client, provider, tokens, jrnl, notifier)

	return a, nil
}

// Start begins application execution. The poller starts first so the
// workflow components have feeds to subscribe to; push starts last as it
// only accelerates an already-running poller.
func (a *Application) Start(ctx context.Context) error {
	log.Printf("Starting voicebridge for %s (%s)", a.identity.UserID, a.identity.Role)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// STEP 1: Start the poller (background snapshot production)
	if err := a.poller.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start poller: %w", err)
	}

	// STEP 2: Start the role component (subscribes to feeds)
	var err error
	switch {
	case a.submitter != nil:
		err = a.submitter.Start(runCtx)
	case a.responder != nil:
		err = a.responder.Start(runCtx)
	case a.liveView != nil:
		err = a.liveView.Start(runCtx)
	}
	if err != nil {
		a.poller.Stop()
		cancel()
		return fmt.Errorf("failed to start workflow component: %w", err)
	}

	// STEP 3: Start the push subscriber (best effort acceleration)
	if a.pushSub != nil {
		if err := a.pushSub.Start(runCtx); err != nil {
			log.Printf("Push subscriber not started, polling only: %v", err)
		}
	}

	// STEP 4: Navigation loop turning workflow signals into sessions
	a.wg.Add(1)
	go a.navigate(runCtx)

	log.Printf("voicebridge started")
	return nil
}

// navigate consumes room signals from the active workflow component and
// drives the session client. At most one session is live at a time; a
// new signal ends the previous session first.
func (a *Application) navigate(ctx context.Context) {
	defer a.wg.Done()

	var joins <-chan student.JoinSignal
	var rooms <-chan educator.RoomSignal
	switch {
	case a.submitter != nil:
		joins = a.submitter.Joins()
	case a.responder != nil:
		rooms = a.responder.Rooms()
	default:
		// Admins monitor; they never join rooms.
		return
	}

	for {
		select {
		case sig := <-joins:
			a.enterRoom(ctx, sig.RoomID)
		case sig := <-rooms:
			a.enterRoom(ctx, sig.RoomID)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Application) enterRoom(ctx context.Context, roomID string) {
	a.mu.Lock()
	previous := a.current
	a.mu.Unlock()

	if previous != nil {
		select {
		case <-previous.Done():
		default:
			if err := previous.Leave(ctx); err != nil && err != session.ErrAlreadyEnded {
				log.Printf("Failed to leave room %s: %v", previous.RoomID(), err)
			}
		}
	}

	active, err := a.sessions.Join(ctx, roomID)
	if err != nil {
		log.Printf("Failed to join room %s: %v", roomID, err)
		return
	}

	a.mu.Lock()
	a.current = active
	a.mu.Unlock()
}

// Stop gracefully shuts down the application in reverse dependency
// order: Session → Push → Role component → Poller → Journal.
func (a *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down voicebridge")

	// STEP 1: Leave any live session so the room is marked completed
	a.mu.Lock()
	current := a.current
	a.current = nil
	a.mu.Unlock()
	if current != nil {
		if err := current.Leave(ctx); err != nil && err != session.ErrAlreadyEnded {
			log.Printf("Session shutdown error: %v", err)
		}
	}

	// STEP 2: Stop the push subscriber
	if a.pushSub != nil {
		if err := a.pushSub.Stop(); err != nil && err != push.ErrNotRunning {
			log.Printf("Push subscriber shutdown error: %v", err)
		}
	}

	// STEP 3: Stop the workflow component
	var err error
	switch {
	case a.submitter != nil:
		err = a.submitter.Stop()
	case a.responder != nil:
		err = a.responder.Stop()
	case a.liveView != nil:
		err = a.liveView.Stop()
	}
	if err != nil {
		log.Printf("Workflow component shutdown error: %v", err)
	}

	// STEP 4: Stop the poller
	if err := a.poller.Stop(); err != nil && err != poll.ErrNotRunning {
		log.Printf("Poller shutdown error: %v", err)
	}

	// STEP 5: Cancel the run context and wait for the navigation loop
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	// STEP 6: Close the journal
	if err := a.journal.Close(); err != nil {
		log.Printf("Journal shutdown error: %v", err)
	}

	log.Printf("voicebridge shutdown complete")
	return nil
}

// Submitter returns the student workflow component, nil for other roles.
func (a *Application) Submitter() *student.Submitter {
	return a.submitter
}

// Responder returns the educator workflow component, nil for other
// roles.
func (a *Application) Responder() *educator.Responder {
	return a.responder
}

// Monitor returns the admin live monitor, nil for other roles.
func (a *Application) Monitor() *monitor.Monitor {
	return a.liveView
}

// Sessions returns the room session client.
func (a *Application) Sessions() *session.Client {
	return a.sessions
}
