package student

import (
	"context"
	"log"
	"sync"

	"voicebridge/internal/poll"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// JoinSignal is one navigation event into the room session client.
// RequestID is empty for walk-in joins.
type JoinSignal struct {
	RoomID       string
	RequestID    string
	EducatorName string
}

// Submitter is the student side of the workflow: it creates call
// requests, tracks their fate through the shared poller, and turns an
// acceptance into exactly one navigation signal.
//
// The exactly-once guarantee needs explicit de-duplication because
// polling is stateless per tick: an accepted request keeps showing up in
// every subsequent snapshot. A request id enters the redirected set (and
// the durable journal) before its signal is emitted, so neither repeated
// ticks nor a process restart can replay the navigation.
type Submitter struct {
	identity types.Identity
	backend  interfaces.Backend
	journal  interfaces.Journal
	notifier interfaces.Notifier
	poller   *poll.Poller

	joins chan JoinSignal

	mu         sync.RWMutex
	requests   []*types.CallRequest
	live       *types.LiveSnapshot
	educators  []*types.Educator
	gate       types.WeekendGate
	gateKnown  bool
	redirected map[string]bool
	inflight   map[string]bool // educatorID -> create in flight

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSubmitter creates the student request submitter.
func NewSubmitter(identity types.Identity, backend interfaces.Backend, journal interfaces.Journal, notifier interfaces.Notifier, poller *poll.Poller) *Submitter {
	return &Submitter{
		identity:   identity,
		backend:    backend,
		journal:    journal,
		notifier:   notifier,
		poller:     poller,
		joins:      make(chan JoinSignal, 8),
		redirected: make(map[string]bool),
		inflight:   make(map[string]bool),
	}
}

// Joins delivers navigation signals. The application layer consumes them
// and hands the room id to the session client.
func (s *Submitter) Joins() <-chan JoinSignal {
	return s.joins
}

// Start subscribes to the student feeds and begins processing snapshots.
func (s *Submitter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	feeds := []poll.Feed{poll.FeedOwnRequests, poll.FeedLive, poll.FeedEducators, poll.FeedWeekendGate}
	channels := make([]<-chan poll.Snapshot, 0, len(feeds))
	for _, feed := range feeds {
		ch, err := s.poller.Subscribe(feed)
		if err != nil {
			cancel()
			return err
		}
		channels = append(channels, ch)
	}

	for _, ch := range channels {
		s.wg.Add(1)
		go s.consume(runCtx, ch)
	}

	return nil
}

// Stop halts snapshot processing. The joins channel stays open.
func (s *Submitter) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	cancel := s.cancel
	// apply locks s.mu, so the lock must be released before waiting
	// for the consume goroutines.
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	return nil
}

// consume drains one feed subscription.
func (s *Submitter) consume(ctx context.Context, ch <-chan poll.Snapshot) {
	defer s.wg.Done()

	for {
		select {
		case snap := <-ch:
			s.apply(ctx, snap)
		case <-ctx.Done():
			return
		}
	}
}

// apply folds a snapshot into the caches and re-evaluates the
// join-on-accept protocol.
func (s *Submitter) apply(ctx context.Context, snap poll.Snapshot) {
	if snap.Err != nil {
		// Transient: the next tick is the retry.
		s.notifier.Warn("Could not refresh %s: %v", snap.Feed, snap.Err)
		return
	}

	s.mu.Lock()
	switch snap.Feed {
	case poll.FeedOwnRequests:
		s.requests = reconcileRequests(s.requests, snap.Requests)
	case poll.FeedLive:
		s.live = snap.Live
	case poll.FeedEducators:
		s.educators = snap.Educators
	case poll.FeedWeekendGate:
		s.gate = *snap.Gate
		s.gateKnown = true
	}
	s.mu.Unlock()

	if snap.Feed == poll.FeedOwnRequests || snap.Feed == poll.FeedLive {
		s.evaluateJoins(ctx)
	}
}

// reconcileRequests folds a fresh request snapshot over the cached one.
// The backend owns request status, but a row whose status change from
// the cached row is illegal (a terminal request flipping back to
// pending) keeps the cached row: a bad tick must not resurrect an
// already-handled request.
func reconcileRequests(cached, fresh []*types.CallRequest) []*types.CallRequest {
	if len(cached) == 0 {
		return fresh
	}
	prior := make(map[string]*types.CallRequest, len(cached))
	for _, req := range cached {
		prior[req.ID] = req
	}

	out := make([]*types.CallRequest, 0, len(fresh))
	for _, req := range fresh {
		if old, ok := prior[req.ID]; ok && !types.CanTransitionRequest(old.Status, req.Status) {
			log.Printf("Ignoring illegal status change %s -> %s for request %s", old.Status, req.Status, req.ID)
			out = append(out, old)
			continue
		}
		out = append(out, req)
	}
	return out
}

// evaluateJoins emits a navigation signal for every accepted request
// whose room has appeared in the live list and which has not already
// triggered a redirect.
func (s *Submitter) evaluateJoins(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.requests {
		if req.Status != types.RequestStatusAccepted || req.RoomID == "" {
			continue
		}
		if s.redirected[req.ID] {
			continue
		}
		room := s.live.Room(req.RoomID)
		if room == nil || room.Status != types.RoomStatusActive {
			// Accepted but the room is not visible yet; a later tick
			// will pick it up.
			continue
		}

		// The durable journal covers restarts; the in-memory set covers
		// the common case without a journal read per tick.
		joined, err := s.journal.HasJoined(ctx, req.ID)
		if err != nil {
			log.Printf("Journal lookup failed for request %s: %v", req.ID, err)
			continue
		}
		if joined {
			s.redirected[req.ID] = true
			continue
		}

		// Mark before emitting: a duplicate navigation is worse than a
		// missed one, since the request list will still show the room.
		s.redirected[req.ID] = true
		if err := s.journal.MarkJoined(ctx, req.ID, req.RoomID); err != nil {
			log.Printf("Journal write failed for request %s: %v", req.ID, err)
		}

		signal := JoinSignal{
			RoomID:       req.RoomID,
			RequestID:    req.ID,
			EducatorName: req.EducatorName,
		}
		select {
		case s.joins <- signal:
			s.notifier.Info("%s accepted your call request, joining room", req.EducatorName)
		default:
			s.notifier.Error("Join signal dropped for room %s; open it from the request list", req.RoomID)
		}
	}
}

// RequestCall submits a call request to an educator. Every precondition
// is checked client-side first so a closed gate, a duplicate request or a
// busy educator never cost a network round trip; the backend re-validates
// all of them authoritatively.
func (s *Submitter) RequestCall(ctx context.Context, educatorID, message string) (*types.CallRequest, error) {
	if s.identity.IsZero() || s.identity.Role != types.RoleStudent {
		return nil, ErrNotAuthenticated
	}

	if err := s.checkPreconditions(ctx, educatorID); err != nil {
		s.notifier.Warn("%v", err)
		return nil, err
	}

	// One in-flight create per educator; two different educators may be
	// requested concurrently.
	s.mu.Lock()
	if s.inflight[educatorID] {
		s.mu.Unlock()
		return nil, ErrRequestInFlight
	}
	s.inflight[educatorID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, educatorID)
		s.mu.Unlock()
	}()

	req, err := s.backend.CreateRequest(ctx, educatorID, message)
	if err != nil {
		s.notifier.Error("Could not send call request: %v", err)
		return nil, err
	}

	// Fold into the cache so a second call before the next poll tick
	// sees the pending request.
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	s.notifier.Info("Call request sent to %s", req.EducatorName)
	s.poller.Poke(poll.FeedOwnRequests)
	return req, nil
}

// checkPreconditions validates gate, enrollment, duplicate-pending and
// busy state against cached snapshots, fetching gate or directory once
// when no poll tick has populated them yet.
func (s *Submitter) checkPreconditions(ctx context.Context, educatorID string) error {
	gate, err := s.currentGate(ctx)
	if err != nil {
		return err
	}
	if !gate.Open {
		return ErrGateClosed
	}

	educators, err := s.currentEducators(ctx)
	if err != nil {
		return err
	}
	var target *types.Educator
	for _, e := range educators {
		if e.ID == educatorID {
			target = e
			break
		}
	}
	if target == nil {
		return ErrNotEnrolled
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, req := range s.requests {
		if req.EducatorID == educatorID && req.Status == types.RequestStatusPending {
			return ErrRequestAlreadyPending
		}
	}
	if target.Busy || s.live.EducatorBusy(educatorID) {
		return ErrEducatorBusy
	}
	return nil
}

// JoinLiveRoom is the walk-in path: joining a room that is already live
// without a prior request, subject to the same gate and enrollment
// constraints. Walk-ins are not deduplicated; leaving and rejoining is
// legitimate.
func (s *Submitter) JoinLiveRoom(ctx context.Context, roomID string) error {
	if s.identity.IsZero() || s.identity.Role != types.RoleStudent {
		return ErrNotAuthenticated
	}

	gate, err := s.currentGate(ctx)
	if err != nil {
		return err
	}
	if !gate.Open {
		s.notifier.Warn("%v", ErrGateClosed)
		return ErrGateClosed
	}

	s.mu.RLock()
	room := s.live.Room(roomID)
	s.mu.RUnlock()

	if room == nil || room.Status != types.RoomStatusActive {
		return ErrRoomNotLive
	}

	signal := JoinSignal{RoomID: roomID, EducatorName: room.EducatorName}
	select {
	case s.joins <- signal:
	default:
		s.notifier.Error("Join signal dropped for room %s", roomID)
	}
	return nil
}

// currentGate returns the cached gate, fetching it once when the poller
// has not delivered a tick yet.
func (s *Submitter) currentGate(ctx context.Context) (types.WeekendGate, error) {
	s.mu.RLock()
	gate, known := s.gate, s.gateKnown
	s.mu.RUnlock()
	if known {
		return gate, nil
	}

	gate, err := s.backend.WeekendStatus(ctx)
	if err != nil {
		return types.WeekendGate{}, err
	}
	s.mu.Lock()
	s.gate = gate
	s.gateKnown = true
	s.mu.Unlock()
	return gate, nil
}

// currentEducators returns the cached directory, fetching it once when
// the poller has not delivered a tick yet.
func (s *Submitter) currentEducators(ctx context.Context) ([]*types.Educator, error) {
	s.mu.RLock()
	educators := s.educators
	s.mu.RUnlock()
	if educators != nil {
		return educators, nil
	}

	educators, err := s.backend.Educators(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.educators = educators
	s.mu.Unlock()
	return educators, nil
}

// Requests returns the cached view of the student's own requests.
func (s *Submitter) Requests() []*types.CallRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.CallRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LiveRooms returns the cached live snapshot.
func (s *Submitter) LiveRooms() *types.LiveSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Educators returns the cached educator directory.
func (s *Submitter) Educators() []*types.Educator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Educator, len(s.educators))
	copy(out, s.educators)
	return out
}

// Gate returns the cached weekend gate and whether any tick has
// populated it.
func (s *Submitter) Gate() (types.WeekendGate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gate, s.gateKnown
}
