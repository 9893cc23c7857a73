package live

import "errors"

// Common errors returned by the live session.
var (
	ErrMissingAPIKey    = errors.New("live: missing API key")
	ErrAlreadyStarted   = errors.New("live: session already started")
	ErrNotConnected     = errors.New("live: session not connected")
	ErrConnectionFailed = errors.New("live: connection failed")
)
