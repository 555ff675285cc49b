package fixtures

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicebridge/internal/config"
	"voicebridge/internal/journal"
	"voicebridge/pkg/types"
)

// StartFakeBackend serves a fresh FakeBackend over an httptest server
// and returns a server config pointed at it. Shutdown is registered
// with the testing framework.
func StartFakeBackend(t *testing.T) (*FakeBackend, *config.ServerConfig) {
	t.Helper()

	fake := NewFakeBackend()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &config.ServerConfig{
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	}
	return fake, cfg
}

// SetupJournal opens a journal backed by a temporary database file with
// complete cleanup capability.
func SetupJournal(t *testing.T) *journal.Journal {
	t.Helper()

	testID := fmt.Sprintf("%s_%d_%d", t.Name(), time.Now().UnixNano(), os.Getpid())
	dbPath := filepath.Join(t.TempDir(), fmt.Sprintf("voicebridge_test_%x.db", []byte(testID)))

	j, err := journal.Open(&config.JournalConfig{Path: dbPath, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Journal cleanup failed: %v", err)
		}
	})
	return j
}

// FastPollConfig returns poll intervals tightened for tests so a
// scenario observes several ticks without sleeping for real minutes.
func FastPollConfig() *config.PollConfig {
	return &config.PollConfig{
		Interval:      25 * time.Millisecond,
		GateInterval:  50 * time.Millisecond,
		RefreshPerMin: 6000,
		RefreshBurst:  100,
		ChannelBuffer: 16,
	}
}

// Student returns a registered student identity.
func Student(n int) types.Identity {
	return types.Identity{
		UserID: fmt.Sprintf("student_%d", n),
		Name:   fmt.Sprintf("Student %d", n),
		Role:   types.RoleStudent,
	}
}

// Educator returns a registered educator identity.
func Educator(n int) types.Identity {
	return types.Identity{
		UserID: fmt.Sprintf("educator_%d", n),
		Name:   fmt.Sprintf("Educator %d", n),
		Role:   types.RoleEducator,
	}
}

// Admin returns an admin identity.
func Admin() types.Identity {
	return types.Identity{UserID: "admin_1", Name: "Admin", Role: types.RoleAdmin}
}

// WaitFor polls the condition until it holds or the deadline passes.
func WaitFor(t *testing.T, timeout time.Duration, what string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
