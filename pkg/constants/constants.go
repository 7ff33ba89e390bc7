// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout bounds a single realtime event or REST request
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait must exceed the ping interval
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait is the deadline for a single frame write
	WebSocketWriteWait = 10 * time.Second

	// WebSocketMaxMessageSize caps inbound frames (SDP offers are a few KB)
	WebSocketMaxMessageSize = 64 * 1024

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Database connection constants
const (
	MaxConnLifetime   = 1 * time.Hour
	MaxConnIdleTime   = 30 * time.Minute
	HealthCheckPeriod = 1 * time.Minute
)

// Call-related constants
const (
	// CallRingTimeout is how long an initiated call may ring before it is missed
	CallRingTimeout = 30 * time.Second

	// MaxCallDuration is the maximum allowed call duration (24 hours)
	MaxCallDuration = 24 * time.Hour
)

// Presence constants
const (
	// PresenceTTL is the lifetime of the Redis presence mirror key
	PresenceTTL = 5 * time.Minute
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed text message length
	MaxMessageLength = 10000

	// MaxAttachmentSize is the maximum allowed attachment size in bytes (50MB)
	MaxAttachmentSize = 50 * 1024 * 1024

	// MaxFilesPerMessage matches the multipart upload limit
	MaxFilesPerMessage = 10
)

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
