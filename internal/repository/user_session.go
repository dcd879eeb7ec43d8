package repository

import (
	"context"
	"time"

	"github.com/openclaw/match-session-worker/internal/database"
	"github.com/openclaw/match-session-worker/internal/model"
)

type userSessionRepo struct {
	db database.DBTX
}

func NewUserSessionRepository(db database.DBTX) UserSessionRepository {
	return &userSessionRepo{db: db}
}

func (r *userSessionRepo) Upsert(ctx context.Context, params model.UpsertUserSessionParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_sessions (socket_id, ip, preferences, is_online, last_seen, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (socket_id) DO UPDATE SET
			ip = EXCLUDED.ip,
			preferences = EXCLUDED.preferences,
			is_online = EXCLUDED.is_online,
			last_seen = EXCLUDED.last_seen,
			location = EXCLUDED.location,
			updated_at = EXCLUDED.updated_at
	`, params.SocketID, params.IP, nullableJSON(params.Preferences), params.IsOnline, params.LastSeen,
		nullableJSON(params.Location), time.Now())
	return err
}

func (r *userSessionRepo) MarkOffline(ctx context.Context, socketID string, lastSeen time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions SET
			is_online = FALSE,
			last_seen = $2,
			updated_at = $3
		WHERE socket_id = $1
	`, socketID, lastSeen, time.Now())
	if err != nil {
		return false, err
	}
	return rowsMatched(result)
}
