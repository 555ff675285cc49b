package monitor

import (
	"context"
	"testing"
	"time"

	"voicebridge/internal/backend"
	"voicebridge/internal/notify"
	"voicebridge/internal/poll"
	"voicebridge/pkg/types"
	"voicebridge/tests/fixtures"
)

type monitorHarness struct {
	fake     *fixtures.FakeBackend
	monitor  *Monitor
	educator *backend.Client
}

func newHarness(t *testing.T) *monitorHarness {
	t.Helper()

	admin := fixtures.Admin()
	educator := fixtures.Educator(1)

	fake, cfg := fixtures.StartFakeBackend(t)
	fake.AddUser(admin)
	fake.AddUser(educator)

	adminClient := backend.NewClient(cfg, admin)
	educatorClient := backend.NewClient(cfg, educator)

	poller := poll.NewPoller(adminClient, fixtures.FastPollConfig(), poll.FeedActiveRooms)
	monitor := NewMonitor(admin, adminClient, notify.NewRecorder(), poller)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := monitor.Start(ctx); err != nil {
		t.Fatalf("Failed to start monitor: %v", err)
	}
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("Failed to start poller: %v", err)
	}
	t.Cleanup(func() {
		_ = monitor.Stop()
		_ = poller.Stop()
	})

	return &monitorHarness{fake: fake, monitor: monitor, educator: educatorClient}
}

func TestMonitor_TracksActiveRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	roomID, err := h.educator.StartRoom(ctx, "Office hours")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}

	fixtures.WaitFor(t, 2*time.Second, "room in monitor", func() bool {
		return len(h.monitor.Rooms()) == 1
	})

	count, total := h.monitor.Stats()
	if count != 1 {
		t.Errorf("Stats count = %d, want 1", count)
	}
	if total < 0 {
		t.Errorf("Stats total = %v, want non-negative", total)
	}

	// Ending the room empties the monitor on a later tick.
	if err := h.educator.EndRoom(ctx, roomID); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}
	fixtures.WaitFor(t, 2*time.Second, "monitor emptied", func() bool {
		return len(h.monitor.Rooms()) == 0
	})
}

func TestMonitor_ForceEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	roomID, err := h.educator.StartRoom(ctx, "Office hours")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}
	fixtures.WaitFor(t, 2*time.Second, "room in monitor", func() bool {
		return len(h.monitor.Rooms()) == 1
	})

	// Declined confirmation aborts before any network call.
	before := h.fake.Calls("PUT /voice-room/admin/{id}/end")
	err = h.monitor.ForceEnd(ctx, roomID, func(string) bool { return false })
	if err != ErrNotConfirmed {
		t.Fatalf("Declined ForceEnd: error = %v, want ErrNotConfirmed", err)
	}
	if err := h.monitor.ForceEnd(ctx, roomID, nil); err != ErrNotConfirmed {
		t.Fatalf("Nil confirm: error = %v, want ErrNotConfirmed", err)
	}
	if h.fake.Calls("PUT /voice-room/admin/{id}/end") != before {
		t.Error("Unconfirmed ForceEnd must not hit the backend")
	}

	// Confirmed: the room ends and leaves the cache immediately.
	var confirmedRoom string
	err = h.monitor.ForceEnd(ctx, roomID, func(id string) bool {
		confirmedRoom = id
		return true
	})
	if err != nil {
		t.Fatalf("ForceEnd failed: %v", err)
	}
	if confirmedRoom != roomID {
		t.Errorf("Confirm callback saw %q, want %q", confirmedRoom, roomID)
	}
	if len(h.monitor.Rooms()) != 0 {
		t.Error("Force-ended room should leave the cache immediately")
	}
	if room := h.fake.Room(roomID); room == nil || room.Status != types.RoomStatusCompleted {
		t.Errorf("Room = %+v, want completed", room)
	}
}

func TestMonitor_RoleEnforcement(t *testing.T) {
	fake, cfg := fixtures.StartFakeBackend(t)
	student := fixtures.Student(1)
	fake.AddUser(student)

	client := backend.NewClient(cfg, student)
	poller := poll.NewPoller(client, fixtures.FastPollConfig(), poll.FeedActiveRooms)
	monitor := NewMonitor(student, client, notify.NewRecorder(), poller)

	err := monitor.ForceEnd(context.Background(), "room_1", func(string) bool { return true })
	if err != ErrNotAuthenticated {
		t.Errorf("Student ForceEnd: error = %v, want ErrNotAuthenticated", err)
	}
}

func TestMonitor_StopWhileSnapshotsFlow(t *testing.T) {
	h := newHarness(t)

	// Let several ticks land so the consume goroutine stays active.
	time.Sleep(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- h.monitor.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop hung while snapshots were being applied")
	}
}
