package media

import (
	"context"
	"errors"
	"time"

	"voicebridge/pkg/interfaces"
	"voicebridge/pkg/types"
)

// StaticTokenSource mints tokens locally from a shared secret held by the
// client. This keeps development deployments self-contained but ships the
// signing secret with the frontend; production deployments should prefer
// BackendTokenSource.
type StaticTokenSource struct {
	AppID        string
	ServerSecret string
	TTL          time.Duration
}

// Token mints a room-scoped token for the identity. Missing credentials
// are the fatal configuration error of the session client.
func (s *StaticTokenSource) Token(ctx context.Context, roomID string, identity types.Identity) (string, error) {
	if s.AppID == "" || s.ServerSecret == "" {
		return "", ErrNotConfigured
	}
	return MintToken(s.AppID, s.ServerSecret, roomID, identity, s.TTL)
}

// BackendTokenSource fetches tokens from the trusted backend, which only
// issues them after validating the request/accept state transition. The
// signing secret never reaches the client.
type BackendTokenSource struct {
	Backend interfaces.Backend

	// Fallback, when set, covers backends that predate the token
	// endpoint.
	Fallback interfaces.TokenSource
}

// Token asks the backend for a token, falling back on
// ErrTokenUnsupported when a fallback source is configured.
func (b *BackendTokenSource) Token(ctx context.Context, roomID string, identity types.Identity) (string, error) {
	token, err := b.Backend.IssueToken(ctx, roomID)
	if err == nil {
		return token, nil
	}
	if errors.Is(err, interfaces.ErrTokenUnsupported) && b.Fallback != nil {
		return b.Fallback.Token(ctx, roomID, identity)
	}
	return "", err
}
