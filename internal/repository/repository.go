package repository

import (
	"context"
	"time"

	"github.com/openclaw/match-session-worker/internal/model"
)

// ChatSessionRepository persists match/chat session records. Conditional
// writes report whether a record matched instead of failing, so callers can
// tell a missing session from an illegal transition.
type ChatSessionRepository interface {
	FindBySessionID(ctx context.Context, sessionID string) (*model.ChatSession, error)
	// Create inserts a session in the waiting state. It returns false when a
	// session with the same ID already exists.
	Create(ctx context.Context, params model.CreateChatSessionParams) (bool, error)
	// ApplyTransition writes t only if the current status is one of from.
	ApplyTransition(ctx context.Context, sessionID string, from []model.SessionStatus, t model.SessionTransition) (bool, error)
	AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) (bool, error)
}

type UserSessionRepository interface {
	Upsert(ctx context.Context, params model.UpsertUserSessionParams) error
	MarkOffline(ctx context.Context, socketID string, lastSeen time.Time) (bool, error)
}

type SiteUsageRepository interface {
	Create(ctx context.Context, usage model.SiteUsage) error
}

type LocationRepository interface {
	Create(ctx context.Context, location model.Location) error
}

// Store groups the durable gateways. It is built once at startup and shared
// by every handler; implementations must be safe for concurrent use.
type Store struct {
	ChatSessions ChatSessionRepository
	UserSessions UserSessionRepository
	SiteUsage    SiteUsageRepository
	Locations    LocationRepository
}
