package repository

// Schema creates the PostgreSQL tables used when STORE_DRIVER=postgres.
// Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		session_id  TEXT PRIMARY KEY,
		users       JSONB NOT NULL DEFAULT '[]'::jsonb,
		status      TEXT NOT NULL,
		language    TEXT NOT NULL DEFAULT '',
		topics      TEXT[] NOT NULL DEFAULT '{}',
		chat_type   TEXT NOT NULL DEFAULT '',
		started_at  TIMESTAMPTZ,
		accepted_at TIMESTAMPTZ,
		accepted_by TEXT NOT NULL DEFAULT '',
		rejected_by TEXT NOT NULL DEFAULT '',
		ended_at    TIMESTAMPTZ,
		ended_by    TEXT NOT NULL DEFAULT '',
		duration    BIGINT,
		messages    JSONB NOT NULL DEFAULT '[]'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS chat_sessions_status_idx ON chat_sessions (status)`,
	`CREATE TABLE IF NOT EXISTS user_sessions (
		socket_id   TEXT PRIMARY KEY,
		ip          TEXT NOT NULL DEFAULT '',
		preferences JSONB,
		is_online   BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen   TIMESTAMPTZ NOT NULL,
		location    JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS site_usages (
		id          BIGSERIAL PRIMARY KEY,
		count       BIGINT NOT NULL DEFAULT 0,
		timestamp   TIMESTAMPTZ NOT NULL,
		metric_type TEXT NOT NULL DEFAULT '',
		ip          TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id         BIGSERIAL PRIMARY KEY,
		ip         TEXT NOT NULL DEFAULT '',
		data       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
