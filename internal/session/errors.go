package session

import "errors"

// Session client error types.
var (
	// ErrMediaNotConfigured is fatal for the session: there is no retry
	// path other than fixing the deployment configuration. It is
	// surfaced full-screen with remediation instructions, never as a
	// transient toast.
	ErrMediaNotConfigured = errors.New("media SDK credentials are not configured")

	// ErrMissingRoomContext covers a join attempt without a room id or
	// signed-in user; the caller redirects to an error state instead of
	// attempting a degraded join.
	ErrMissingRoomContext = errors.New("room id and user identity are required to join")

	ErrAlreadyEnded = errors.New("session has already ended")
)

// Remediation is shown alongside ErrMediaNotConfigured.
const Remediation = "set VOICEBRIDGE_MEDIA_APP_ID and VOICEBRIDGE_MEDIA_SERVER_SECRET (or enable backend token issuance) and restart"
