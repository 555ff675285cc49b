package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"voicebridge/internal/config"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// Feed identifies one periodically refreshed backend view.
type Feed string

const (
	FeedOwnRequests     Feed = "own_requests"     // student: my call requests
	FeedPendingRequests Feed = "pending_requests" // educator: requests addressed to me
	FeedLive            Feed = "live"             // student: visible rooms + busy educators
	FeedEducators       Feed = "educators"        // student: educator directory
	FeedActiveRooms     Feed = "active_rooms"     // admin: all active rooms
	FeedWeekendGate     Feed = "weekend_gate"     // all roles: call-window gate
)

// Snapshot is one poll tick of a feed. Exactly one payload field is set,
// matching the feed; Err marks a failed tick, which subscribers surface
// once and then wait out — the next tick is the retry.
type Snapshot struct {
	Feed        Feed
	Requests    []*types.CallRequest
	Live        *types.LiveSnapshot
	Educators   []*types.Educator
	ActiveRooms []*types.ActiveRoom
	Gate        *types.WeekendGate
	Err         error
	At          time.Time
}

// Poller is the single shared polling service of a session. One goroutine
// per subscribed feed replaces the original per-view timers; components
// subscribe to typed snapshots instead of owning intervals. Push events
// poke a feed for an immediate out-of-band refresh.
type Poller struct {
	backend      interfaces.Backend
	interval     time.Duration
	gateInterval time.Duration
	buffer       int

	// Caps user-triggered refreshes; scheduled ticks are not subject
	// to it.
	refreshLimiter *rate.Limiter

	mu          sync.RWMutex
	running     bool
	subscribers map[Feed][]chan Snapshot
	pokes       map[Feed]chan struct{}
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewPoller creates a poller for the given feeds.
func NewPoller(backend interfaces.Backend, cfg *config.PollConfig, feeds ...Feed) *Poller {
	p := &Poller{
		backend:        backend,
		interval:       cfg.Interval,
		gateInterval:   cfg.GateInterval,
		buffer:         cfg.ChannelBuffer,
		refreshLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RefreshPerMin)/60.0), cfg.RefreshBurst),
		subscribers:    make(map[Feed][]chan Snapshot),
		pokes:          make(map[Feed]chan struct{}),
	}
	for _, feed := range feeds {
		p.subscribers[feed] = nil
		p.pokes[feed] = make(chan struct{}, 1)
	}
	return p
}

// Subscribe registers a snapshot channel for a feed. Delivery is
// non-blocking: a full subscriber buffer drops the snapshot, and the next
// tick redelivers fresher state anyway.
func (p *Poller) Subscribe(feed Feed) (<-chan Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pokes[feed]; !ok {
		return nil, ErrUnknownFeed
	}
	ch := make(chan Snapshot, p.buffer)
	p.subscribers[feed] = append(p.subscribers[feed], ch)
	return ch, nil
}

// Start launches one polling goroutine per feed. Each feed fetches
// immediately so subscribers see state before the first interval expires.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	feeds := make([]Feed, 0, len(p.pokes))
	for feed := range p.pokes {
		feeds = append(feeds, feed)
	}
	p.mu.Unlock()

	for _, feed := range feeds {
		p.wg.Add(1)
		go p.run(runCtx, feed)
	}

	log.Printf("Poller started: %d feeds, interval=%s", len(feeds), p.interval)
	return nil
}

// Stop halts all feed goroutines. Subscriber channels stay open; they
// simply go quiet.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running = false
	cancel := p.cancel
	// publish takes the read lock, so the write lock must be released
	// before waiting for the feed goroutines.
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	log.Println("Poller stopped")
	return nil
}

// Poke requests an immediate out-of-band fetch of a feed, coalescing
// repeated pokes between fetches. Used by the push channel on lifecycle
// events.
func (p *Poller) Poke(feed Feed) {
	p.mu.RLock()
	ch, ok := p.pokes[feed]
	p.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Refresh is a user-triggered Poke, rate limited so refresh buttons
// cannot storm the backend.
func (p *Poller) Refresh(feed Feed) error {
	p.mu.RLock()
	_, ok := p.pokes[feed]
	p.mu.RUnlock()
	if !ok {
		return ErrUnknownFeed
	}
	if !p.refreshLimiter.Allow() {
		return ErrRefreshThrottled
	}
	p.Poke(feed)
	return nil
}

// run is the per-feed loop: immediate fetch, then ticker or poke.
func (p *Poller) run(ctx context.Context, feed Feed) {
	defer p.wg.Done()

	interval := p.interval
	if feed == FeedWeekendGate {
		interval = p.gateInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publish(p.fetch(ctx, feed))

	p.mu.RLock()
	poke := p.pokes[feed]
	p.mu.RUnlock()

	for {
		select {
		case <-ticker.C:
			p.publish(p.fetch(ctx, feed))
		case <-poke:
			p.publish(p.fetch(ctx, feed))
		case <-ctx.Done():
			return
		}
	}
}

// fetch performs one backend call for a feed.
func (p *Poller) fetch(ctx context.Context, feed Feed) Snapshot {
	snap := Snapshot{Feed: feed, At: time.Now()}

	switch feed {
	case FeedOwnRequests:
		snap.Requests, snap.Err = p.backend.MyRequests(ctx)
	case FeedPendingRequests:
		snap.Requests, snap.Err = p.backend.PendingRequests(ctx)
	case FeedLive:
		snap.Live, snap.Err = p.backend.Live(ctx)
	case FeedEducators:
		snap.Educators, snap.Err = p.backend.Educators(ctx)
	case FeedActiveRooms:
		snap.ActiveRooms, snap.Err = p.backend.ActiveRooms(ctx)
	case FeedWeekendGate:
		var gate types.WeekendGate
		gate, snap.Err = p.backend.WeekendStatus(ctx)
		if snap.Err == nil {
			snap.Gate = &gate
		}
	default:
		snap.Err = ErrUnknownFeed
	}

	if snap.Err == nil {
		sanitize(&snap)
	}
	return snap
}

// sanitize drops malformed rows before they reach any subscriber cache.
// A bad row is logged and skipped; it never fails the whole snapshot.
func sanitize(snap *Snapshot) {
	if snap.Requests != nil {
		kept := snap.Requests[:0]
		for _, req := range snap.Requests {
			if err := req.Validate(); err != nil {
				log.Printf("Dropping malformed request %q from %s: %v", req.ID, snap.Feed, err)
				continue
			}
			kept = append(kept, req)
		}
		snap.Requests = kept
	}
	if snap.Live != nil {
		kept := snap.Live.Rooms[:0]
		for _, room := range snap.Live.Rooms {
			if err := room.Validate(); err != nil {
				log.Printf("Dropping malformed room %q from %s: %v", room.RoomID, snap.Feed, err)
				continue
			}
			kept = append(kept, room)
		}
		snap.Live.Rooms = kept
	}
	if snap.ActiveRooms != nil {
		kept := snap.ActiveRooms[:0]
		for _, room := range snap.ActiveRooms {
			if err := room.Validate(); err != nil {
				log.Printf("Dropping malformed room %q from %s: %v", room.RoomID, snap.Feed, err)
				continue
			}
			kept = append(kept, room)
		}
		snap.ActiveRooms = kept
	}
}

// publish fans a snapshot out to every subscriber of its feed.
func (p *Poller) publish(snap Snapshot) {
	p.mu.RLock()
	subs := p.subscribers[snap.Feed]
	p.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Subscriber is behind; drop. Snapshots are full state,
			// not deltas, so nothing is lost for long.
		}
	}
}
