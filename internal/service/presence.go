package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-session-worker/internal/audit"
	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/model"
	"github.com/openclaw/match-session-worker/internal/repository"
)

// Locator resolves an IP to location data. A nil result with no error means
// the lookup was skipped.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*model.LocationData, error)
}

// PresenceService records connection metrics and per-socket online state.
type PresenceService struct {
	users     repository.UserSessionRepository
	usage     repository.SiteUsageRepository
	locations repository.LocationRepository
	geo       Locator
}

func NewPresenceService(
	users repository.UserSessionRepository,
	usage repository.SiteUsageRepository,
	locations repository.LocationRepository,
	geo Locator,
) *PresenceService {
	return &PresenceService{
		users:     users,
		usage:     usage,
		locations: locations,
		geo:       geo,
	}
}

// Connected appends a usage entry and, concurrently, stores a location for
// the connecting IP. Only the usage write decides the result.
func (s *PresenceService) Connected(ctx context.Context, e model.UserConnected) error {
	count, err := e.UsageCount()
	if err != nil {
		return apperrors.Decode(string(model.TopicUserConnected), err)
	}

	var (
		wg        sync.WaitGroup
		usageErr  error
		enrichErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		usageErr = s.usage.Create(ctx, model.SiteUsage{
			Count:      count,
			Timestamp:  e.Timestamp.OrNow(),
			MetricType: e.MetricType,
			IP:         e.IP,
		})
	}()
	go func() {
		defer wg.Done()
		enrichErr = s.enrich(ctx, e.IP)
	}()
	wg.Wait()

	if enrichErr != nil {
		log.Warn().Err(enrichErr).Str("ip", e.IP).Msg("location enrichment failed")
	}
	if usageErr != nil {
		return apperrors.Database(usageErr)
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventUserOnline,
		IP:   e.IP,
		Details: map[string]interface{}{
			"count":       count,
			"metric_type": e.MetricType,
		},
	})
	return nil
}

func (s *PresenceService) enrich(ctx context.Context, ip string) error {
	if s.geo == nil {
		return nil
	}
	data, err := s.geo.Lookup(ctx, ip)
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.Enrichment("geo lookup", err)
	}
	if data == nil {
		return nil
	}

	data.IP = ip
	if err := s.locations.Create(ctx, model.Location{Data: *data, CreatedAt: time.Now().UTC()}); err != nil {
		return apperrors.Enrichment("location store", err)
	}
	return nil
}

// Disconnected marks the socket offline. Sockets that never joined the queue
// have no record and are ignored.
func (s *PresenceService) Disconnected(ctx context.Context, e model.UserDisconnected) error {
	matched, err := s.users.MarkOffline(ctx, e.SocketID, e.Timestamp.OrNow())
	if err != nil {
		return apperrors.Database(err)
	}
	if !matched {
		log.Debug().Str("socketId", e.SocketID).Msg("no user session for disconnected socket")
		return nil
	}

	audit.Log(ctx, audit.Event{Type: audit.EventUserOffline, SocketID: e.SocketID})
	return nil
}

func (s *PresenceService) JoinedQueue(ctx context.Context, e model.UserJoinedQueue) error {
	err := s.users.Upsert(ctx, model.UpsertUserSessionParams{
		SocketID:    e.SocketID,
		IP:          e.IP,
		Preferences: e.Preferences,
		Location:    e.Location,
		IsOnline:    true,
		LastSeen:    e.Timestamp.OrNow(),
	})
	if err != nil {
		return apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventUserJoinedQueue, SocketID: e.SocketID, IP: e.IP})
	return nil
}

// LeftQueue has no durable effect.
func (s *PresenceService) LeftQueue(ctx context.Context, e model.UserLeftQueue) error {
	audit.Log(ctx, audit.Event{Type: audit.EventUserLeftQueue, SocketID: e.SocketID})
	return nil
}
