package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openclaw/match-session-worker/internal/database"
	"github.com/openclaw/match-session-worker/internal/model"
)

type siteUsageRepo struct {
	db database.DBTX
}

func NewSiteUsageRepository(db database.DBTX) SiteUsageRepository {
	return &siteUsageRepo{db: db}
}

func (r *siteUsageRepo) Create(ctx context.Context, usage model.SiteUsage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO site_usages (count, timestamp, metric_type, ip)
		VALUES ($1, $2, $3, $4)
	`, usage.Count, usage.Timestamp, usage.MetricType, usage.IP)
	return err
}

type locationRepo struct {
	db database.DBTX
}

func NewLocationRepository(db database.DBTX) LocationRepository {
	return &locationRepo{db: db}
}

func (r *locationRepo) Create(ctx context.Context, location model.Location) error {
	data, err := json.Marshal(location.Data)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO locations (ip, data, created_at)
		VALUES ($1, $2, $3)
	`, location.Data.IP, string(data), location.CreatedAt)
	return err
}

// NewPostgresStore builds the durable gateways on a PostgreSQL connection.
func NewPostgresStore(db database.DBTX) *Store {
	return &Store{
		ChatSessions: NewChatSessionRepository(db),
		UserSessions: NewUserSessionRepository(db),
		SiteUsage:    NewSiteUsageRepository(db),
		Locations:    NewLocationRepository(db),
	}
}
