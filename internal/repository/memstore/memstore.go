// Package memstore keeps the durable records in process memory. It backs
// STORE_DRIVER=memory for local runs and is the store used by service and
// handler tests.
package memstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/openclaw/match-session-worker/internal/model"
	"github.com/openclaw/match-session-worker/internal/repository"
)

// UserSession is the stored form of a presence record.
type UserSession struct {
	SocketID    string
	IP          string
	Preferences json.RawMessage
	Location    json.RawMessage
	IsOnline    bool
	LastSeen    time.Time
}

type Memory struct {
	mu           sync.RWMutex
	chatSessions map[string]model.ChatSession
	userSessions map[string]UserSession
	usage        []model.SiteUsage
	locations    []model.Location
}

func New() *Memory {
	return &Memory{
		chatSessions: make(map[string]model.ChatSession),
		userSessions: make(map[string]UserSession),
	}
}

// Store exposes m through the gateway interfaces.
func (m *Memory) Store() *repository.Store {
	return &repository.Store{
		ChatSessions: chatSessions{m},
		UserSessions: userSessions{m},
		SiteUsage:    siteUsage{m},
		Locations:    locations{m},
	}
}

// ChatSession returns a copy of the stored session.
func (m *Memory) ChatSession(sessionID string) (model.ChatSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.chatSessions[sessionID]
	return cloneSession(s), ok
}

// PutChatSession stores s as-is, replacing any existing record.
func (m *Memory) PutChatSession(s model.ChatSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatSessions[s.SessionID] = cloneSession(s)
}

func (m *Memory) UserSession(socketID string) (UserSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.userSessions[socketID]
	return u, ok
}

func (m *Memory) SiteUsage() []model.SiteUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.usage)
}

func (m *Memory) Locations() []model.Location {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.locations)
}

// Len reports the total number of stored records of every kind.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chatSessions) + len(m.userSessions) + len(m.usage) + len(m.locations)
}

func cloneSession(s model.ChatSession) model.ChatSession {
	s.Users = slices.Clone(s.Users)
	s.Topics = slices.Clone(s.Topics)
	s.Messages = slices.Clone(s.Messages)
	return s
}

type chatSessions struct{ m *Memory }

func (r chatSessions) FindBySessionID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	s, ok := r.m.ChatSession(sessionID)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r chatSessions) Create(ctx context.Context, params model.CreateChatSessionParams) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, exists := r.m.chatSessions[params.SessionID]; exists {
		return false, nil
	}
	now := time.Now().UTC()
	startedAt := params.StartedAt
	r.m.chatSessions[params.SessionID] = model.ChatSession{
		SessionID: params.SessionID,
		Users:     slices.Clone(params.Users),
		Status:    model.SessionStatusWaiting,
		Language:  params.Language,
		Topics:    slices.Clone(params.Topics),
		ChatType:  params.ChatType,
		StartedAt: &startedAt,
		Messages:  []model.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true, nil
}

func (r chatSessions) ApplyTransition(
	ctx context.Context,
	sessionID string,
	from []model.SessionStatus,
	t model.SessionTransition,
) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	s, ok := r.m.chatSessions[sessionID]
	if !ok || !slices.Contains(from, s.Status) {
		return false, nil
	}

	s.Status = t.Status
	if t.AcceptedAt != nil {
		at := *t.AcceptedAt
		s.AcceptedAt = &at
	}
	if t.AcceptedBy != "" {
		s.AcceptedBy = t.AcceptedBy
	}
	if t.RejectedBy != "" {
		s.RejectedBy = t.RejectedBy
	}
	if t.EndedAt != nil {
		at := *t.EndedAt
		s.EndedAt = &at
	}
	if t.EndedBy != "" {
		s.EndedBy = t.EndedBy
	}
	if t.Duration != nil {
		d := *t.Duration
		s.Duration = &d
	}
	s.UpdatedAt = time.Now().UTC()
	r.m.chatSessions[sessionID] = s
	return true, nil
}

func (r chatSessions) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	s, ok := r.m.chatSessions[sessionID]
	if !ok {
		return false, nil
	}
	s.Messages = append(slices.Clone(s.Messages), msg)
	s.UpdatedAt = time.Now().UTC()
	r.m.chatSessions[sessionID] = s
	return true, nil
}

type userSessions struct{ m *Memory }

func (r userSessions) Upsert(ctx context.Context, params model.UpsertUserSessionParams) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.userSessions[params.SocketID] = UserSession{
		SocketID:    params.SocketID,
		IP:          params.IP,
		Preferences: slices.Clone(params.Preferences),
		Location:    slices.Clone(params.Location),
		IsOnline:    params.IsOnline,
		LastSeen:    params.LastSeen,
	}
	return nil
}

func (r userSessions) MarkOffline(ctx context.Context, socketID string, lastSeen time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	u, ok := r.m.userSessions[socketID]
	if !ok {
		return false, nil
	}
	u.IsOnline = false
	u.LastSeen = lastSeen
	r.m.userSessions[socketID] = u
	return true, nil
}

type siteUsage struct{ m *Memory }

func (r siteUsage) Create(ctx context.Context, usage model.SiteUsage) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.usage = append(r.m.usage, usage)
	return nil
}

type locations struct{ m *Memory }

func (r locations) Create(ctx context.Context, location model.Location) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.locations = append(r.m.locations, location)
	return nil
}
