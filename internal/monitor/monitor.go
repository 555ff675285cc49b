package monitor

import (
	"context"
	"sync"
	"time"

	"voicebridge/internal/poll"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// Monitor is the admin view over every active room system-wide. Its
// aggregates are recomputed from the full snapshot each tick, never
// maintained as running totals, so a missed tick can't skew them.
type Monitor struct {
	identity types.Identity
	backend  interfaces.Backend
	notifier interfaces.Notifier
	poller   *poll.Poller

	mu    sync.RWMutex
	rooms []*types.ActiveRoom

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates the admin live monitor.
func NewMonitor(identity types.Identity, backend interfaces.Backend, notifier interfaces.Notifier, poller *poll.Poller) *Monitor {
	return &Monitor{
		identity: identity,
		backend:  backend,
		notifier: notifier,
		poller:   poller,
	}
}

// Start subscribes to the system-wide active room feed.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	ch, err := m.poller.Subscribe(poll.FeedActiveRooms)
	if err != nil {
		cancel()
		return err
	}

	m.wg.Add(1)
	go m.consume(runCtx, ch)
	return nil
}

// Stop halts snapshot processing.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	cancel := m.cancel
	// consume locks m.mu when folding a snapshot, so the lock must be
	// released before waiting for it.
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	return nil
}

func (m *Monitor) consume(ctx context.Context, ch <-chan poll.Snapshot) {
	defer m.wg.Done()

	for {
		select {
		case snap := <-ch:
			if snap.Err != nil {
				m.notifier.Warn("Could not refresh active rooms: %v", snap.Err)
				continue
			}
			m.mu.Lock()
			m.rooms = snap.ActiveRooms
			m.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Rooms returns the cached active rooms.
func (m *Monitor) Rooms() []*types.ActiveRoom {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.ActiveRoom, len(m.rooms))
	copy(out, m.rooms)
	return out
}

// Stats returns the active room count and the summed server-computed
// duration across all rooms, reduced from the latest snapshot.
func (m *Monitor) Stats() (count int, total time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, room := range m.rooms {
		total += time.Duration(room.CurrentDuration) * time.Second
	}
	return len(m.rooms), total
}

// ForceEnd is the administrative override: it ends a room regardless of
// participant consent. The confirm callback must approve the specific
// room; a nil or declining callback aborts before any network call.
func (m *Monitor) ForceEnd(ctx context.Context, roomID string, confirm func(roomID string) bool) error {
	if m.identity.IsZero() || m.identity.Role != types.RoleAdmin {
		return ErrNotAuthenticated
	}
	if confirm == nil || !confirm(roomID) {
		return ErrNotConfirmed
	}

	if err := m.backend.AdminEndRoom(ctx, roomID); err != nil {
		m.notifier.Error("Could not force end room %s: %v", roomID, err)
		return err
	}

	// Drop locally so the room disappears ahead of the next poll.
	m.mu.Lock()
	remaining := m.rooms[:0]
	for _, room := range m.rooms {
		if room.RoomID != roomID {
			remaining = append(remaining, room)
		}
	}
	m.rooms = remaining
	m.mu.Unlock()

	m.notifier.Info("Room %s was force ended", roomID)
	m.poller.Poke(poll.FeedActiveRooms)
	return nil
}
