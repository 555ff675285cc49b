package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"voicebridge/internal/backend"
	"voicebridge/internal/media"
	"voicebridge/internal/notify"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
	"voicebridge/tests/fixtures"
)

const (
	testAppID  = "app_test"
	testSecret = "super-secret-signing-key"
)

// countingProvider wraps a provider and counts Join invocations so the
// fatal-configuration tests can prove the SDK boundary was never
// touched.
type countingProvider struct {
	inner interfaces.MediaProvider
	joins int64
}

func (c *countingProvider) Join(ctx context.Context, roomID, token string, identity types.Identity, cfg types.RoomConfig) (interfaces.MediaRoom, error) {
	atomic.AddInt64(&c.joins, 1)
	return c.inner.Join(ctx, roomID, token, identity, cfg)
}

func (c *countingProvider) Joins() int64 {
	return atomic.LoadInt64(&c.joins)
}

type sessionHarness struct {
	fake     *fixtures.FakeBackend
	client   *Client
	provider *countingProvider
	notifier *notify.Recorder
	educator *backend.Client
}

func newHarness(t *testing.T, appID, secret string) *sessionHarness {
	t.Helper()

	student := fixtures.Student(1)
	educator := fixtures.Educator(1)

	fake, cfg := fixtures.StartFakeBackend(t)
	fake.AddUser(student)
	fake.AddUser(educator)

	provider := &countingProvider{inner: media.NewLoopbackProvider(appID, secret)}
	tokens := &media.StaticTokenSource{AppID: appID, ServerSecret: secret, TTL: time.Hour}
	notifier := notify.NewRecorder()

	client := NewClient(student, appID, backend.NewClient(cfg, student), provider, tokens, fixtures.SetupJournal(t), notifier)

	return &sessionHarness{
		fake:     fake,
		client:   client,
		provider: provider,
		notifier: notifier,
		educator: backend.NewClient(cfg, educator),
	}
}

func TestClient_JoinLeaveLifecycle(t *testing.T) {
	h := newHarness(t, testAppID, testSecret)
	ctx := context.Background()

	roomID, err := h.educator.StartRoom(ctx, "Doubt session")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}

	active, err := h.client.Join(ctx, roomID)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if active.RoomID() != roomID {
		t.Errorf("RoomID = %q, want %q", active.RoomID(), roomID)
	}
	if h.fake.Calls("POST /voice-room/join/{id}") != 1 {
		t.Error("Join should register the participant with the backend")
	}

	if err := active.Leave(ctx); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}

	select {
	case <-active.Done():
	case <-time.After(time.Second):
		t.Fatal("Done should be closed after Leave")
	}

	// Leaving marks the room completed on the backend.
	if room := h.fake.Room(roomID); room == nil || room.Status != types.RoomStatusCompleted {
		t.Errorf("Room after leave = %+v, want completed", room)
	}

	// The leave protocol runs once.
	if err := active.Leave(ctx); err != ErrAlreadyEnded {
		t.Errorf("Second Leave: error = %v, want ErrAlreadyEnded", err)
	}
	if err := active.End(ctx); err != ErrAlreadyEnded {
		t.Errorf("End after Leave: error = %v, want ErrAlreadyEnded", err)
	}
}

func TestClient_MissingAppIDIsFatal(t *testing.T) {
	h := newHarness(t, "", testSecret)
	ctx := context.Background()

	roomID, err := h.educator.StartRoom(ctx, "Doubt session")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}

	before := h.fake.TotalCalls()
	if _, err := h.client.Join(ctx, roomID); err != ErrMediaNotConfigured {
		t.Fatalf("Join: error = %v, want ErrMediaNotConfigured", err)
	}

	// The SDK boundary and the backend join endpoint are never touched.
	if h.provider.Joins() != 0 {
		t.Error("Provider must not be invoked without credentials")
	}
	if h.fake.TotalCalls() != before {
		t.Error("Fatal configuration error must not hit the backend")
	}
	if h.notifier.CountLevel("error") != 1 {
		t.Error("Fatal configuration error should be surfaced to the user")
	}
}

func TestClient_MissingSecretIsFatal(t *testing.T) {
	// The app id is present, so the static token source is the first to
	// notice the broken configuration.
	h := newHarness(t, testAppID, "")
	ctx := context.Background()

	roomID, err := h.educator.StartRoom(ctx, "Doubt session")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}

	if _, err := h.client.Join(ctx, roomID); err != ErrMediaNotConfigured {
		t.Fatalf("Join: error = %v, want ErrMediaNotConfigured", err)
	}
	if h.provider.Joins() != 0 {
		t.Error("Provider must not be invoked without a signing secret")
	}
}

func TestClient_MissingRoomContext(t *testing.T) {
	h := newHarness(t, testAppID, testSecret)

	if _, err := h.client.Join(context.Background(), ""); err != ErrMissingRoomContext {
		t.Errorf("Empty room: error = %v, want ErrMissingRoomContext", err)
	}

	anonymous := NewClient(types.Identity{}, testAppID, nil, h.provider, nil, nil, h.notifier)
	if _, err := anonymous.Join(context.Background(), "room_1"); err != ErrMissingRoomContext {
		t.Errorf("Zero identity: error = %v, want ErrMissingRoomContext", err)
	}
}

func TestClient_EventToasts(t *testing.T) {
	h := newHarness(t, testAppID, testSecret)
	ctx := context.Background()

	roomID, err := h.educator.StartRoom(ctx, "Doubt session")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}

	first, err := h.client.Join(ctx, roomID)
	if err != nil {
		t.Fatalf("First join failed: %v", err)
	}
	defer func() { _ = first.Leave(ctx) }()

	// A second participant joining the same loopback room produces a
	// join toast for the first.
	second := fixtures.Student(2)
	h.fake.AddUser(second)
	tokens := &media.StaticTokenSource{AppID: testAppID, ServerSecret: testSecret, TTL: time.Hour}
	token, err := tokens.Token(ctx, roomID, second)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	room, err := h.provider.Join(ctx, roomID, token, second, types.DefaultRoomConfig())
	if err != nil {
		t.Fatalf("Second join failed: %v", err)
	}
	defer func() { _ = room.Leave() }()

	fixtures.WaitFor(t, 2*time.Second, "join toast", func() bool {
		for _, e := range h.notifier.Entries() {
			if e.Level == "info" && e.Format == "%s joined the room" {
				return true
			}
		}
		return false
	})
}
