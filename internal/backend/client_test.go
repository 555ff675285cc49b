package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voicebridge/internal/config"
	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
	"voicebridge/tests/fixtures"
)

func testClient(t *testing.T, identity types.Identity) (*fixtures.FakeBackend, *Client) {
	t.Helper()
	fake, cfg := fixtures.StartFakeBackend(t)
	return fake, NewClient(cfg, identity)
}

func TestClient_RequestLifecycle(t *testing.T) {
	student := fixtures.Student(1)
	educator := fixtures.Educator(1)

	fake, cfg := fixtures.StartFakeBackend(t)
	fake.AddUser(student)
	fake.AddUser(educator)
	studentClient := NewClient(cfg, student)
	educatorClient := NewClient(cfg, educator)

	ctx := context.Background()

	req, err := studentClient.CreateRequest(ctx, educator.UserID, "Need help with recursion")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.Status != types.RequestStatusPending {
		t.Errorf("Status = %q, want pending", req.Status)
	}
	if req.StudentID != student.UserID || req.EducatorID != educator.UserID {
		t.Errorf("Request parties wrong: %+v", req)
	}

	mine, err := studentClient.MyRequests(ctx)
	if err != nil {
		t.Fatalf("MyRequests failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != req.ID {
		t.Fatalf("MyRequests = %+v, want the created request", mine)
	}

	// A second pending request to the same educator is refused.
	if _, err := studentClient.CreateRequest(ctx, educator.UserID, "again"); err == nil {
		t.Error("Duplicate pending request should fail")
	} else if !IsStatus(err, http.StatusConflict) {
		t.Errorf("Duplicate pending request: error = %v, want 409", err)
	}

	// The educator sees it pending and accepts it.
	pending, err := educatorClient.PendingRequests(ctx)
	if err != nil {
		t.Fatalf("PendingRequests failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("PendingRequests = %d entries, want 1", len(pending))
	}

	roomID, err := educatorClient.ActOnRequest(ctx, req.ID, interfaces.ActionAccept)
	if err != nil {
		t.Fatalf("ActOnRequest failed: %v", err)
	}
	if roomID == "" {
		t.Fatal("Accept should return a room id")
	}

	live, err := studentClient.Live(ctx)
	if err != nil {
		t.Fatalf("Live failed: %v", err)
	}
	if live.Room(roomID) == nil {
		t.Error("Accepted room should be live")
	}
	if !live.EducatorBusy(educator.UserID) {
		t.Error("Educator should be busy after accept")
	}

	if err := studentClient.JoinRoom(ctx, roomID); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if err := educatorClient.EndRoom(ctx, roomID); err != nil {
		t.Fatalf("EndRoom failed: %v", err)
	}

	if room := fake.Room(roomID); room == nil || room.Status != types.RoomStatusCompleted {
		t.Errorf("Room after end = %+v, want completed", room)
	}
}

func TestClient_InputValidation(t *testing.T) {
	_, client := testClient(t, fixtures.Student(1))
	ctx := context.Background()

	if _, err := client.CreateRequest(ctx, "", "hi"); err != ErrEmptyEducatorID {
		t.Errorf("CreateRequest: error = %v, want ErrEmptyEducatorID", err)
	}
	if _, err := client.ActOnRequest(ctx, "", interfaces.ActionAccept); err != ErrEmptyRequestID {
		t.Errorf("ActOnRequest: error = %v, want ErrEmptyRequestID", err)
	}
	if _, err := client.ActOnRequest(ctx, "req_1", "approve"); err != ErrInvalidAction {
		t.Errorf("ActOnRequest: error = %v, want ErrInvalidAction", err)
	}
	if err := client.JoinRoom(ctx, ""); err != ErrEmptyRoomID {
		t.Errorf("JoinRoom: error = %v, want ErrEmptyRoomID", err)
	}
	if err := client.EndRoom(ctx, ""); err != ErrEmptyRoomID {
		t.Errorf("EndRoom: error = %v, want ErrEmptyRoomID", err)
	}
}

func TestClient_HeadersAndErrorDecoding(t *testing.T) {
	var gotAuth, gotUserID, gotRole string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUserID = r.Header.Get("X-User-ID")
		gotRole = r.Header.Get("X-User-Role")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": "call window is closed"}`))
	}))
	defer server.Close()

	client := NewClient(&config.ServerConfig{
		BaseURL:        server.URL,
		AuthToken:      "bearer-token-123",
		RequestTimeout: 5 * time.Second,
	}, fixtures.Student(1))

	_, err := client.MyRequests(context.Background())
	if err == nil {
		t.Fatal("Expected an error from a 403 response")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", apiErr.Status)
	}
	if apiErr.Message != "call window is closed" {
		t.Errorf("Message = %q, want decoded error body", apiErr.Message)
	}

	if gotAuth != "Bearer bearer-token-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotUserID != "student_1" {
		t.Errorf("X-User-ID = %q", gotUserID)
	}
	if gotRole != types.RoleStudent {
		t.Errorf("X-User-Role = %q", gotRole)
	}
}

func TestClient_IssueToken(t *testing.T) {
	student := fixtures.Student(1)
	fake, client := testClient(t, student)
	fake.AddUser(student)
	ctx := context.Background()

	// Backend without token support answers 404, mapped to the sentinel.
	if _, err := client.IssueToken(ctx, "room_1"); err != interfaces.ErrTokenUnsupported {
		t.Errorf("Unsupported backend: error = %v, want ErrTokenUnsupported", err)
	}

	fake.TokenAppID = "app_test"
	fake.TokenSecret = "secret"
	token, err := client.IssueToken(ctx, "room_1")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if token == "" {
		t.Error("IssueToken should return a token")
	}
}

func TestClient_WeekendStatus(t *testing.T) {
	fake, client := testClient(t, fixtures.Student(1))

	gate, err := client.WeekendStatus(context.Background())
	if err != nil {
		t.Fatalf("WeekendStatus failed: %v", err)
	}
	if !gate.Open {
		t.Error("Default fake gate should be open")
	}

	fake.SetGate(false, "Voice rooms are only available on weekends")
	gate, err = client.WeekendStatus(context.Background())
	if err != nil {
		t.Fatalf("WeekendStatus failed: %v", err)
	}
	if gate.Open {
		t.Error("Gate should be closed")
	}
	if gate.Message == "" {
		t.Error("Closed gate should carry a message")
	}
}

func TestClient_NotFoundMapping(t *testing.T) {
	fake, cfg := fixtures.StartFakeBackend(t)
	educator := fixtures.Educator(1)
	admin := fixtures.Admin()
	fake.AddUser(educator)
	fake.AddUser(admin)

	educatorClient := NewClient(cfg, educator)
	adminClient := NewClient(cfg, admin)
	ctx := context.Background()

	if _, err := educatorClient.ActOnRequest(ctx, "req_missing", interfaces.ActionAccept); err != interfaces.ErrRequestNotFound {
		t.Errorf("ActOnRequest on unknown id: error = %v, want ErrRequestNotFound", err)
	}
	if err := educatorClient.JoinRoom(ctx, "room_missing"); err != interfaces.ErrRoomNotFound {
		t.Errorf("JoinRoom on unknown id: error = %v, want ErrRoomNotFound", err)
	}
	if err := educatorClient.EndRoom(ctx, "room_missing"); err != interfaces.ErrRoomNotFound {
		t.Errorf("EndRoom on unknown id: error = %v, want ErrRoomNotFound", err)
	}
	if err := adminClient.AdminEndRoom(ctx, "room_missing"); err != interfaces.ErrRoomNotFound {
		t.Errorf("AdminEndRoom on unknown id: error = %v, want ErrRoomNotFound", err)
	}
}
