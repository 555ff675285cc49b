package interfaces

import (
	"context"
	"time"
)

// Journal is the durable local record of join-on-accept handling and
// session history. Persisting the handled set means a process restart
// during the accept/join race cannot replay a navigation.
type Journal interface {
	// MarkJoined records that navigation for the request has been
	// triggered. Marking the same request twice is not an error.
	MarkJoined(ctx context.Context, requestID, roomID string) error

	// HasJoined reports whether navigation for the request was already
	// triggered, by this process or a previous one.
	HasJoined(ctx context.Context, requestID string) (bool, error)

	// RecordSession opens a local session history entry and returns its id.
	RecordSession(ctx context.Context, roomID, role string, joinedAt time.Time) (string, error)

	// CloseSession stamps the leave time on a history entry.
	CloseSession(ctx context.Context, entryID string, leftAt time.Time) error

	// Prune removes journal rows older than the cutoff and returns the
	// number removed. The backend expires stale requests after one hour;
	// rows older than that can never race again.
	Prune(ctx context.Context, before time.Time) (int, error)

	Close() error
}
