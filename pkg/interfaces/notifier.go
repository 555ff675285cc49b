package interfaces

// Notifier surfaces transient user-facing notifications (the toast layer
// of the original UI). Notifications are fire-and-forget: no component
// ever blocks on or retries a notification.
type Notifier interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}
