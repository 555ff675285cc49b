package educator

import (
	"context"
	"sync"

	"voicebridge/internal/poll"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// RoomSignal is one navigation event into the room session client.
// RequestID is empty when the room was started directly.
type RoomSignal struct {
	RoomID      string
	RequestID   string
	StudentName string
}

// Responder is the educator side of the workflow: it watches pending
// requests addressed to this educator and turns an accept — or a direct
// room start — into a room and a navigation signal. Both entry points
// converge on the same room abstraction; the student's poller discovers
// the room either way.
type Responder struct {
	identity types.Identity
	backend  interfaces.Backend
	notifier interfaces.Notifier
	poller   *poll.Poller

	rooms chan RoomSignal

	mu        sync.RWMutex
	pending   []*types.CallRequest
	live      *types.LiveSnapshot
	gate      types.WeekendGate
	gateKnown bool
	inflight  map[string]bool // requestID -> accept/reject in flight

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewResponder creates the educator request responder.
func NewResponder(identity types.Identity, backend interfaces.Backend, notifier interfaces.Notifier, poller *poll.Poller) *Responder {
	return &Responder{
		identity: identity,
		backend:  backend,
		notifier: notifier,
		poller:   poller,
		rooms:    make(chan RoomSignal, 8),
		inflight: make(map[string]bool),
	}
}

// Rooms delivers navigation signals for accepted or directly started
// rooms.
func (r *Responder) Rooms() <-chan RoomSignal {
	return r.rooms
}

// Start subscribes to the educator feeds.
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.running = true
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	feeds := []poll.Feed{poll.FeedPendingRequests, poll.FeedLive, poll.FeedWeekendGate}
	channels := make([]<-chan poll.Snapshot, 0, len(feeds))
	for _, feed := range feeds {
		ch, err := r.poller.Subscribe(feed)
		if err != nil {
			cancel()
			return err
		}
		channels = append(channels, ch)
	}

	for _, ch := range channels {
		r.wg.Add(1)
		go r.consume(runCtx, ch)
	}

	return nil
}

// Stop halts snapshot processing.
func (r *Responder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.running = false
	cancel := r.cancel
	// apply locks r.mu, so the lock must be released before waiting
	// for the consume goroutines.
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	return nil
}

func (r *Responder) consume(ctx context.Context, ch <-chan poll.Snapshot) {
	defer r.wg.Done()

	for {
		select {
		case snap := <-ch:
			r.apply(snap)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Responder) apply(snap poll.Snapshot) {
	if snap.Err != nil {
		r.notifier.Warn("Could not refresh %s: %v", snap.Feed, snap.Err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch snap.Feed {
	case poll.FeedPendingRequests:
		r.pending = snap.Requests
	case poll.FeedLive:
		r.live = snap.Live
	case poll.FeedWeekendGate:
		r.gate = *snap.Gate
		r.gateKnown = true
	}
}

// Accept accepts a pending request. The backend transitions the request
// and creates the room; an accept payload without a room id is a failure
// and never navigates. One accept/reject may be in flight per request,
// while different requests may be processed concurrently.
func (r *Responder) Accept(ctx context.Context, requestID string) (string, error) {
	if r.identity.IsZero() || r.identity.Role != types.RoleEducator {
		return "", ErrNotAuthenticated
	}

	gate, err := r.currentGate(ctx)
	if err != nil {
		return "", err
	}
	if !gate.Open {
		r.notifier.Warn("%v", ErrGateClosed)
		return "", ErrGateClosed
	}
	if r.Busy() {
		r.notifier.Warn("%v", ErrEducatorBusy)
		return "", ErrEducatorBusy
	}

	if err := r.beginAction(requestID); err != nil {
		return "", err
	}
	defer r.endAction(requestID)

	roomID, err := r.backend.ActOnRequest(ctx, requestID, interfaces.ActionAccept)
	if err != nil {
		r.notifier.Error("Could not accept request: %v", err)
		return "", err
	}
	if roomID == "" {
		r.notifier.Error("%v", ErrMissingRoomID)
		return "", ErrMissingRoomID
	}

	studentName := r.studentName(requestID)
	r.dropPending(requestID)
	r.poller.Poke(poll.FeedLive)

	signal := RoomSignal{RoomID: roomID, RequestID: requestID, StudentName: studentName}
	select {
	case r.rooms <- signal:
	default:
		r.notifier.Error("Room signal dropped for room %s", roomID)
	}
	return roomID, nil
}

// Reject rejects a pending request. No room is created.
func (r *Responder) Reject(ctx context.Context, requestID string) error {
	if r.identity.IsZero() || r.identity.Role != types.RoleEducator {
		return ErrNotAuthenticated
	}

	if err := r.beginAction(requestID); err != nil {
		return err
	}
	defer r.endAction(requestID)

	if _, err := r.backend.ActOnRequest(ctx, requestID, interfaces.ActionReject); err != nil {
		r.notifier.Error("Could not reject request: %v", err)
		return err
	}

	r.dropPending(requestID)
	r.notifier.Info("Request rejected")
	return nil
}

// StartRoom bypasses the request flow entirely: the educator opens a
// room unconditionally, still subject to the weekend gate.
func (r *Responder) StartRoom(ctx context.Context, title string) (string, error) {
	if r.identity.IsZero() || r.identity.Role != types.RoleEducator {
		return "", ErrNotAuthenticated
	}

	gate, err := r.currentGate(ctx)
	if err != nil {
		return "", err
	}
	if !gate.Open {
		r.notifier.Warn("%v", ErrGateClosed)
		return "", ErrGateClosed
	}
	if r.Busy() {
		r.notifier.Warn("%v", ErrEducatorBusy)
		return "", ErrEducatorBusy
	}

	roomID, err := r.backend.StartRoom(ctx, title)
	if err != nil {
		r.notifier.Error("Could not start room: %v", err)
		return "", err
	}

	r.poller.Poke(poll.FeedLive)

	signal := RoomSignal{RoomID: roomID}
	select {
	case r.rooms <- signal:
	default:
		r.notifier.Error("Room signal dropped for room %s", roomID)
	}
	return roomID, nil
}

// CanAccept reports whether the accept action should be offered at all:
// the gate must be open and the educator free. Pending requests are
// never auto-rejected when this is false; they persist until acted on or
// expired by the backend.
func (r *Responder) CanAccept() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gateKnown && r.gate.Open && !r.live.EducatorBusy(r.identity.UserID)
}

// Busy reports whether this educator currently owns an active room.
func (r *Responder) Busy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live.EducatorBusy(r.identity.UserID)
}

// Pending returns the cached pending requests.
func (r *Responder) Pending() []*types.CallRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.CallRequest, len(r.pending))
	copy(out, r.pending)
	return out
}

// Gate returns the cached weekend gate and whether any tick has
// populated it.
func (r *Responder) Gate() (types.WeekendGate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gate, r.gateKnown
}

// beginAction claims the per-request in-flight guard.
func (r *Responder) beginAction(requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[requestID] {
		return ErrActionInFlight
	}
	r.inflight[requestID] = true
	return nil
}

func (r *Responder) endAction(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, requestID)
}

// dropPending removes an acted-on request from the cache ahead of the
// next poll tick.
func (r *Responder) dropPending(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remaining := r.pending[:0]
	for _, req := range r.pending {
		if req.ID != requestID {
			remaining = append(remaining, req)
		}
	}
	r.pending = remaining
}

// studentName looks up the requester's display name in the pending
// cache for the navigation signal.
func (r *Responder) studentName(requestID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.pending {
		if req.ID == requestID {
			return req.StudentName
		}
	}
	return ""
}

// currentGate returns the cached gate, fetching once before the first
// poll tick.
func (r *Responder) currentGate(ctx context.Context) (types.WeekendGate, error) {
	r.mu.RLock()
	gate, known := r.gate, r.gateKnown
	r.mu.RUnlock()
	if known {
		return gate, nil
	}

	gate, err := r.backend.WeekendStatus(ctx)
	if err != nil {
		return types.WeekendGate{}, err
	}
	r.mu.Lock()
	r.gate = gate
	r.gateKnown = true
	r.mu.Unlock()
	return gate, nil
}
