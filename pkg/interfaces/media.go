package interfaces

import (
	"context"

	"voicebridge/pkg/types"
)

// TokenSource produces room-scoped, time-bound access tokens. The
// preferred implementation fetches tokens from the backend so the signing
// secret never ships with the client; the static-key implementation mints
// locally for development deployments.
type TokenSource interface {
	Token(ctx context.Context, roomID string, identity types.Identity) (string, error)
}

// MediaProvider is the boundary to the third-party real-time media SDK.
// The SDK owns all transport and room management; the client supplies a
// token, the fixed room configuration, and consumes callbacks.
type MediaProvider interface {
	Join(ctx context.Context, roomID, token string, identity types.Identity, cfg types.RoomConfig) (MediaRoom, error)
}

// MediaRoom is one joined media session.
type MediaRoom interface {
	// Events delivers user join/leave and disconnect callbacks. The
	// channel is closed after Leave or a terminal disconnect.
	Events() <-chan types.RoomEvent

	// Leave disconnects the local participant and releases SDK resources.
	// Safe to call more than once.
	Leave() error
}
