package handler

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/model"
	"github.com/openclaw/match-session-worker/internal/service"
)

// Router dispatches decoded events to the service that owns their
// transition. Handlers for different sessions may run concurrently; events
// for one session are expected in order from the producer.
type Router struct {
	sessions *service.SessionService
	presence *service.PresenceService
}

func NewRouter(sessions *service.SessionService, presence *service.PresenceService) *Router {
	return &Router{
		sessions: sessions,
		presence: presence,
	}
}

// RouteRaw decodes body for topic and routes it. Malformed payloads fail with
// a decode error before any store is touched.
func (r *Router) RouteRaw(ctx context.Context, topic string, body []byte) error {
	event, err := model.DecodeEvent(topic, body)
	if err != nil {
		return err
	}
	return r.Route(ctx, event)
}

// Route applies event. Unknown topics are logged and ignored; any failure of
// a known handler is returned so the message is not acknowledged.
func (r *Router) Route(ctx context.Context, event model.Event) error {
	var err error
	switch e := event.(type) {
	case model.UserConnected:
		err = r.presence.Connected(ctx, e)
	case model.UserDisconnected:
		err = r.presence.Disconnected(ctx, e)
	case model.UserJoinedQueue:
		err = r.presence.JoinedQueue(ctx, e)
	case model.UserLeftQueue:
		err = r.presence.LeftQueue(ctx, e)
	case model.MatchCreated:
		err = r.sessions.Create(ctx, e)
	case model.MatchAccepted:
		err = r.sessions.Accept(ctx, e)
	case model.MatchRejected:
		err = r.sessions.Reject(ctx, e)
	case model.ChatEnded:
		err = r.sessions.End(ctx, e)
	case model.MessageSent:
		err = r.sessions.AppendMessage(ctx, e)
	default:
		log.Warn().Str("topic", string(event.Topic())).Msg("no handler for topic, ignoring")
		return nil
	}

	if err != nil {
		return apperrors.Handler(string(event.Topic()), err)
	}
	return nil
}
