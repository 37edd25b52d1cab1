package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
	DBConnectAttempts = 5
	DBConnectBackoff  = 500 * time.Millisecond
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Bound on a single database ping
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Sessions still marked live in the store but untouched for this long, with no
// client in this process, are reconciled to disconnected.
const StaleSessionAfter = 10 * time.Minute

// Default rate limiting
const DefaultRateLimitPerMin = 60

// WhatsApp command limits
const (
	ChatListLimit      = 50
	MessageFetchLimit  = 50
	QuotedLookupLimit  = 100
	HistoryPerChatCap  = 200
	SentDedupWindow    = 10 * time.Minute
	SentDedupCacheSize = 1024
)

// REST query caps
const (
	MessageHistoryLimit = 100
	MessageSearchLimit  = 50
)
