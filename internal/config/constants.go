package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// Ops HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Connection timeouts used at startup
const (
	DBPingTimeout    = 5 * time.Second
	MongoConnTimeout = 10 * time.Second
)

// Per-event handler timeout
const HandlerTimeout = 30 * time.Second

// Cleanup sweep progress is logged every N keys
const SweepProgressEvery = 100
