package poll

import "errors"

// Poller error types.
var (
	ErrAlreadyRunning   = errors.New("poller is already running")
	ErrNotRunning       = errors.New("poller is not running")
	ErrUnknownFeed      = errors.New("unknown poll feed")
	ErrRefreshThrottled = errors.New("manual refresh throttled, showing cached state")
)
