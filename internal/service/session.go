package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/match-session-worker/internal/audit"
	apperrors "github.com/openclaw/match-session-worker/internal/errors"
	"github.com/openclaw/match-session-worker/internal/model"
	"github.com/openclaw/match-session-worker/internal/repository"
)

// SessionService applies match and chat lifecycle events to the durable
// ChatSession records. It is the only writer of session status.
type SessionService struct {
	sessions repository.ChatSessionRepository
}

func NewSessionService(sessions repository.ChatSessionRepository) *SessionService {
	return &SessionService{sessions: sessions}
}

// Create records a new match in the waiting state. Redelivery of the same
// match is a no-op.
func (s *SessionService) Create(ctx context.Context, e model.MatchCreated) error {
	created, err := s.sessions.Create(ctx, model.CreateChatSessionParams{
		SessionID: e.SessionID,
		Users:     e.Users,
		Language:  e.Language,
		Topics:    e.Topics,
		ChatType:  e.ChatType,
		StartedAt: e.Timestamp.Time,
	})
	if err != nil {
		return apperrors.Database(err)
	}
	if !created {
		log.Debug().Str("sessionId", e.SessionID).Msg("chat session already exists")
		return nil
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCreated,
		SessionID: e.SessionID,
		Details: map[string]interface{}{
			"users":     len(e.Users),
			"chat_type": e.ChatType,
			"language":  e.Language,
		},
	})
	return nil
}

func (s *SessionService) Accept(ctx context.Context, e model.MatchAccepted) error {
	at := e.Timestamp.OrNow()
	return s.transition(ctx, e.SessionID, model.SessionTransition{
		Status:     model.SessionStatusConnected,
		AcceptedAt: &at,
		AcceptedBy: e.AcceptedBy,
	}, audit.EventSessionAccepted, map[string]interface{}{"accepted_by": e.AcceptedBy})
}

func (s *SessionService) Reject(ctx context.Context, e model.MatchRejected) error {
	at := e.Timestamp.OrNow()
	return s.transition(ctx, e.SessionID, model.SessionTransition{
		Status:     model.SessionStatusRejected,
		RejectedBy: e.RejectedBy,
		EndedAt:    &at,
	}, audit.EventSessionRejected, map[string]interface{}{"rejected_by": e.RejectedBy})
}

// End closes the session and derives its duration from the stored start
// time. Re-applying the same event writes the same duration.
func (s *SessionService) End(ctx context.Context, e model.ChatEnded) error {
	session, err := s.sessions.FindBySessionID(ctx, e.SessionID)
	if err != nil {
		return apperrors.Database(err)
	}
	if session == nil {
		return apperrors.NotFound("Chat session")
	}
	if !session.Status.CanTransitionTo(model.SessionStatusEnded) {
		s.skip(ctx, e.SessionID, session.Status, model.SessionStatusEnded)
		return nil
	}

	endedAt := e.Timestamp.Time
	duration := model.SessionDuration(session.StartedAt, endedAt)
	details := map[string]interface{}{"ended_by": e.EndedBy}
	if duration != nil {
		details["duration"] = *duration
	}

	return s.transition(ctx, e.SessionID, model.SessionTransition{
		Status:   model.SessionStatusEnded,
		EndedAt:  &endedAt,
		EndedBy:  e.EndedBy,
		Duration: duration,
	}, audit.EventSessionEnded, details)
}

func (s *SessionService) AppendMessage(ctx context.Context, e model.MessageSent) error {
	matched, err := s.sessions.AppendMessage(ctx, e.SessionID, model.ChatMessage{
		From:      e.Message.From,
		Text:      e.Message.Text,
		Timestamp: e.Message.Timestamp.OrNow(),
	})
	if err != nil {
		return apperrors.Database(err)
	}
	if !matched {
		return apperrors.NotFound("Chat session")
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventMessageAppended,
		SessionID: e.SessionID,
		Details:   map[string]interface{}{"from": e.Message.From},
	})
	return nil
}

// transition applies t only if the stored status may move to t.Status. A
// missing session is an error; a session in an incompatible state is logged
// and left unchanged.
func (s *SessionService) transition(
	ctx context.Context,
	sessionID string,
	t model.SessionTransition,
	eventType audit.EventType,
	details map[string]interface{},
) error {
	matched, err := s.sessions.ApplyTransition(ctx, sessionID, model.AllowedSources(t.Status), t)
	if err != nil {
		return apperrors.Database(err)
	}

	if !matched {
		session, err := s.sessions.FindBySessionID(ctx, sessionID)
		if err != nil {
			return apperrors.Database(err)
		}
		if session == nil {
			return apperrors.NotFound("Chat session")
		}
		s.skip(ctx, sessionID, session.Status, t.Status)
		return nil
	}

	audit.Log(ctx, audit.Event{
		Type:      eventType,
		SessionID: sessionID,
		Details:   details,
	})
	return nil
}

func (s *SessionService) skip(ctx context.Context, sessionID string, from, to model.SessionStatus) {
	audit.Log(ctx, audit.Event{
		Type:      audit.EventTransitionSkipped,
		SessionID: sessionID,
		Details: map[string]interface{}{
			"from":     string(from),
			"to":       string(to),
			"terminal": from.IsTerminal(),
		},
	})
}
