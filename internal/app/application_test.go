package app

import (
	"context"
	"path/filepath"
	"testing"

	"voicebridge/internal/config"
	"voicebridge/internal/poll"
	"voicebridge/pkg/types"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Journal.Path = filepath.Join(t.TempDir(), "app_test.db")
	cfg.Push.Enabled = false
	return cfg
}

func TestRoleFeeds(t *testing.T) {
	tests := []struct {
		role string
		want []poll.Feed
	}{
		{types.RoleStudent, []poll.Feed{poll.FeedOwnRequests, poll.FeedLive, poll.FeedEducators, poll.FeedWeekendGate}},
		{types.RoleEducator, []poll.Feed{poll.FeedPendingRequests, poll.FeedLive, poll.FeedWeekendGate}},
		{types.RoleAdmin, []poll.Feed{poll.FeedActiveRooms}},
		{"moderator", nil},
	}

	for _, tt := range tests {
		got := roleFeeds(tt.role)
		if len(got) != len(tt.want) {
			t.Errorf("roleFeeds(%s) = %v, want %v", tt.role, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("roleFeeds(%s)[%d] = %s, want %s", tt.role, i, got[i], tt.want[i])
			}
		}
	}
}

func TestApplication_ConstructorValidation(t *testing.T) {
	identity := types.Identity{UserID: "student_1", Name: "Asha", Role: types.RoleStudent}

	// Invalid configuration is rejected before any component starts.
	cfg := testAppConfig(t)
	cfg.Server.BaseURL = ""
	if _, err := NewApplication(cfg, identity); err == nil {
		t.Error("Invalid config should fail construction")
	}

	// Invalid identity is rejected.
	cfg = testAppConfig(t)
	if _, err := NewApplication(cfg, types.Identity{}); err == nil {
		t.Error("Zero identity should fail construction")
	}

	// Roles outside the workflow are rejected.
	bad := types.Identity{UserID: "user_1", Name: "User", Role: types.RoleStudent}
	bad.Role = "moderator"
	if _, err := NewApplication(testAppConfig(t), bad); err == nil {
		t.Error("Unsupported role should fail construction")
	}
}

func TestApplication_RoleComponents(t *testing.T) {
	tests := []struct {
		role string
	}{
		{types.RoleStudent},
		{types.RoleEducator},
		{types.RoleAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			identity := types.Identity{UserID: "user_1", Name: "User", Role: tt.role}
			application, err := NewApplication(testAppConfig(t), identity)
			if err != nil {
				t.Fatalf("NewApplication failed: %v", err)
			}
			t.Cleanup(func() {
				_ = application.Stop(context.Background())
			})

			// Exactly one role component exists per application.
			components := 0
			if application.Submitter() != nil {
				components++
			}
			if application.Responder() != nil {
				components++
			}
			if application.Monitor() != nil {
				components++
			}
			if components != 1 {
				t.Errorf("Role components = %d, want exactly 1", components)
			}
			if application.Sessions() == nil {
				t.Error("Session client should always be wired")
			}
		})
	}
}
