package scenarios

import (
	"context"
	"testing"
	"time"

	"voicebridge/internal/backend"
	"voicebridge/internal/config"
	"voicebridge/internal/educator"
	"voicebridge/internal/media"
	"voicebridge/internal/monitor"
	"voicebridge/internal/notify"
	"voicebridge/internal/poll"
	"voicebridge/internal/session"
	"voicebridge/internal/student"
	"voicebridge/pkg/types"
	"voicebridge/tests/fixtures"
)

const (
	mediaAppID  = "app_scenario"
	mediaSecret = "scenario-signing-secret"
)

// studentSide bundles everything a signed-in student runs.
type studentSide struct {
	identity  types.Identity
	submitter *student.Submitter
	sessions  *session.Client
	notifier  *notify.Recorder
}

// educatorSide bundles everything a signed-in educator runs.
type educatorSide struct {
	identity  types.Identity
	responder *educator.Responder
	sessions  *session.Client
	client    *backend.Client
}

func startStudent(t *testing.T, ctx context.Context, cfg *fixtureEnv, n int) *studentSide {
	t.Helper()

	identity := fixtures.Student(n)
	cfg.fake.AddUser(identity)

	client := backend.NewClient(cfg.server, identity)
	notifier := notify.NewRecorder()
	journal := fixtures.SetupJournal(t)

	poller := poll.NewPoller(client, fixtures.FastPollConfig(),
		poll.FeedOwnRequests, poll.FeedLive, poll.FeedEducators, poll.FeedWeekendGate)
	submitter := student.NewSubmitter(identity, client, journal, notifier, poller)

	if err := submitter.Start(ctx); err != nil {
		t.Fatalf("Failed to start submitter: %v", err)
	}
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("Failed to start student poller: %v", err)
	}
	t.Cleanup(func() {
		_ = submitter.Stop()
		_ = poller.Stop()
	})

	provider := media.NewLoopbackProvider(mediaAppID, mediaSecret)
	tokens := &media.StaticTokenSource{AppID: mediaAppID, ServerSecret: mediaSecret, TTL: time.Hour}
	sessions := session.NewClient(identity, mediaAppID, client, provider, tokens, journal, notifier)

	return &studentSide{identity: identity, submitter: submitter, sessions: sessions, notifier: notifier}
}

func startEducator(t *testing.T, ctx context.Context, cfg *fixtureEnv, n int) *educatorSide {
	t.Helper()

	identity := fixtures.Educator(n)
	cfg.fake.AddUser(identity)

	client := backend.NewClient(cfg.server, identity)
	notifier := notify.NewRecorder()
	journal := fixtures.SetupJournal(t)

	poller := poll.NewPoller(client, fixtures.FastPollConfig(),
		poll.FeedPendingRequests, poll.FeedLive, poll.FeedWeekendGate)
	responder := educator.NewResponder(identity, client, notifier, poller)

	if err := responder.Start(ctx); err != nil {
		t.Fatalf("Failed to start responder: %v", err)
	}
	if err := poller.Start(ctx); err != nil {
		t.Fatalf("Failed to start educator poller: %v", err)
	}
	t.Cleanup(func() {
		_ = responder.Stop()
		_ = poller.Stop()
	})

	provider := media.NewLoopbackProvider(mediaAppID, mediaSecret)
	tokens := &media.StaticTokenSource{AppID: mediaAppID, ServerSecret: mediaSecret, TTL: time.Hour}
	sessions := session.NewClient(identity, mediaAppID, client, provider, tokens, journal, notifier)

	return &educatorSide{identity: identity, responder: responder, sessions: sessions, client: client}
}

type fixtureEnv struct {
	fake   *fixtures.FakeBackend
	server *config.ServerConfig
}

func newEnv(t *testing.T) *fixtureEnv {
	t.Helper()
	fake, cfg := fixtures.StartFakeBackend(t)
	return &fixtureEnv{fake: fake, server: cfg}
}

func TestDoubtClearingWorkflow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newEnv(t)
	stu := startStudent(t, ctx, env, 1)
	edu := startEducator(t, ctx, env, 1)

	// Student requests a call.
	req, err := stu.submitter.RequestCall(ctx, edu.identity.UserID, "Stuck on goroutine leaks")
	if err != nil {
		t.Fatalf("RequestCall failed: %v", err)
	}

	// Educator sees it and accepts.
	fixtures.WaitFor(t, 2*time.Second, "pending request on educator side", func() bool {
		return len(edu.responder.Pending()) == 1
	})
	roomID, err := edu.responder.Accept(ctx, req.ID)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	// Educator navigates into the room.
	var eduSignal educator.RoomSignal
	select {
	case eduSignal = <-edu.responder.Rooms():
	case <-time.After(2 * time.Second):
		t.Fatal("Educator never received a room signal")
	}
	eduSession, err := edu.sessions.Join(ctx, eduSignal.RoomID)
	if err != nil {
		t.Fatalf("Educator join failed: %v", err)
	}

	// Student's poller notices the acceptance and navigates exactly once.
	var stuSignal student.JoinSignal
	select {
	case stuSignal = <-stu.submitter.Joins():
	case <-time.After(2 * time.Second):
		t.Fatal("Student never received a join signal")
	}
	if stuSignal.RoomID != roomID {
		t.Errorf("Student signal room = %q, want %q", stuSignal.RoomID, roomID)
	}
	stuSession, err := stu.sessions.Join(ctx, stuSignal.RoomID)
	if err != nil {
		t.Fatalf("Student join failed: %v", err)
	}

	// Both participants are registered with the backend.
	fixtures.WaitFor(t, 2*time.Second, "two participants", func() bool {
		room := env.fake.Room(roomID)
		return room != nil && room.Status == types.RoomStatusActive
	})

	// Repeated polls never replay the navigation.
	select {
	case dup := <-stu.submitter.Joins():
		t.Fatalf("Duplicate student navigation into %s", dup.RoomID)
	case <-time.After(400 * time.Millisecond):
	}

	// Student hangs up; the room completes for everyone.
	if err := stuSession.Leave(ctx); err != nil {
		t.Fatalf("Student leave failed: %v", err)
	}
	if room := env.fake.Room(roomID); room == nil || room.Status != types.RoomStatusCompleted {
		t.Errorf("Room after leave = %+v, want completed", room)
	}

	// Educator's side winds down too.
	if err := eduSession.Leave(ctx); err != nil {
		t.Fatalf("Educator leave failed: %v", err)
	}

	// With the room gone, the educator frees up on a later tick.
	fixtures.WaitFor(t, 2*time.Second, "educator no longer busy", func() bool {
		return !edu.responder.Busy()
	})
}

func TestAdminForceEndsLiveRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newEnv(t)
	edu := startEducator(t, ctx, env, 1)

	admin := fixtures.Admin()
	env.fake.AddUser(admin)
	adminClient := backend.NewClient(env.server, admin)
	adminPoller := poll.NewPoller(adminClient, fixtures.FastPollConfig(), poll.FeedActiveRooms)
	liveView := monitor.NewMonitor(admin, adminClient, notify.NewRecorder(), adminPoller)

	if err := liveView.Start(ctx); err != nil {
		t.Fatalf("Failed to start monitor: %v", err)
	}
	if err := adminPoller.Start(ctx); err != nil {
		t.Fatalf("Failed to start admin poller: %v", err)
	}
	t.Cleanup(func() {
		_ = liveView.Stop()
		_ = adminPoller.Stop()
	})

	roomID, err := edu.responder.StartRoom(ctx, "Weekend office hours")
	if err != nil {
		t.Fatalf("StartRoom failed: %v", err)
	}

	fixtures.WaitFor(t, 2*time.Second, "room on admin dashboard", func() bool {
		return len(liveView.Rooms()) == 1
	})
	count, _ := liveView.Stats()
	if count != 1 {
		t.Errorf("Stats count = %d, want 1", count)
	}

	if err := liveView.ForceEnd(ctx, roomID, func(string) bool { return true }); err != nil {
		t.Fatalf("ForceEnd failed: %v", err)
	}

	if room := env.fake.Room(roomID); room == nil || room.Status != types.RoomStatusCompleted {
		t.Errorf("Room after force end = %+v, want completed", room)
	}

	// The educator's side sees the busy flag drop on a later tick.
	fixtures.WaitFor(t, 2*time.Second, "educator freed", func() bool {
		return !edu.responder.Busy()
	})
}

func TestWeekendGateBlocksBothRoles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newEnv(t)
	env.fake.SetGate(false, "Voice rooms are only available on weekends")

	stu := startStudent(t, ctx, env, 1)
	edu := startEducator(t, ctx, env, 1)

	fixtures.WaitFor(t, 2*time.Second, "student sees closed gate", func() bool {
		gate, known := stu.submitter.Gate()
		return known && !gate.Open
	})
	fixtures.WaitFor(t, 2*time.Second, "educator sees closed gate", func() bool {
		gate, known := edu.responder.Gate()
		return known && !gate.Open
	})

	// Neither role's mutation reaches the backend.
	if _, err := stu.submitter.RequestCall(ctx, edu.identity.UserID, ""); err != student.ErrGateClosed {
		t.Errorf("RequestCall: error = %v, want ErrGateClosed", err)
	}
	if _, err := edu.responder.StartRoom(ctx, "x"); err != educator.ErrGateClosed {
		t.Errorf("StartRoom: error = %v, want ErrGateClosed", err)
	}
	if env.fake.Calls("POST /voice-room/request") != 0 {
		t.Error("Closed gate must block the create endpoint entirely")
	}
	if env.fake.Calls("POST /voice-room/start") != 0 {
		t.Error("Closed gate must block the start endpoint entirely")
	}
}
