// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single WebSocket write
	WebSocketWriteTimeout = 10 * time.Second

	// WebSocketAuthTimeout is how long an unauthenticated session may stay open
	WebSocketAuthTimeout = 30 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 30 * 24 * time.Hour
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Event log constants
const (
	// EventLogBlockTimeout is how long a consumer read blocks waiting for entries
	EventLogBlockTimeout = 5 * time.Second

	// EventLogClaimMinIdle is the pending-entry age after which a restarted
	// consumer reclaims it
	EventLogClaimMinIdle = 1 * time.Minute
)

// Delivery session constants
const (
	// SessionSendQueueSize is the per-session bounded send queue length.
	// When full, the oldest queued frame is dropped (best-effort push).
	SessionSendQueueSize = 64

	// PresenceExpiry is how long a presence entry lives without a heartbeat.
	// Connected sessions refresh it on every pong.
	PresenceExpiry = 5 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)
