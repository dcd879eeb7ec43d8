package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/openclaw/match-session-worker/internal/database"
	"github.com/openclaw/match-session-worker/internal/model"
)

type chatSessionRow struct {
	SessionID  string         `db:"session_id"`
	Users      []byte         `db:"users"`
	Status     string         `db:"status"`
	Language   string         `db:"language"`
	Topics     pq.StringArray `db:"topics"`
	ChatType   string         `db:"chat_type"`
	StartedAt  *time.Time     `db:"started_at"`
	AcceptedAt *time.Time     `db:"accepted_at"`
	AcceptedBy string         `db:"accepted_by"`
	RejectedBy string         `db:"rejected_by"`
	EndedAt    *time.Time     `db:"ended_at"`
	EndedBy    string         `db:"ended_by"`
	Duration   *int64         `db:"duration"`
	Messages   []byte         `db:"messages"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r *chatSessionRow) toModel() (*model.ChatSession, error) {
	session := &model.ChatSession{
		SessionID:  r.SessionID,
		Status:     model.SessionStatus(r.Status),
		Language:   r.Language,
		Topics:     []string(r.Topics),
		ChatType:   r.ChatType,
		StartedAt:  r.StartedAt,
		AcceptedAt: r.AcceptedAt,
		AcceptedBy: r.AcceptedBy,
		RejectedBy: r.RejectedBy,
		EndedAt:    r.EndedAt,
		EndedBy:    r.EndedBy,
		Duration:   r.Duration,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Users) > 0 {
		if err := json.Unmarshal(r.Users, &session.Users); err != nil {
			return nil, fmt.Errorf("decode users: %w", err)
		}
	}
	if len(r.Messages) > 0 {
		if err := json.Unmarshal(r.Messages, &session.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
	}
	return session, nil
}

type chatSessionRepo struct {
	db database.DBTX
}

func NewChatSessionRepository(db database.DBTX) ChatSessionRepository {
	return &chatSessionRepo{db: db}
}

func (r *chatSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	var row chatSessionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT * FROM chat_sessions WHERE session_id = $1
	`, sessionID)
	found, err := HandleNotFound(&row, err)
	if err != nil || found == nil {
		return nil, err
	}
	return found.toModel()
}

func (r *chatSessionRepo) Create(ctx context.Context, params model.CreateChatSessionParams) (bool, error) {
	users := params.Users
	if users == nil {
		users = []model.SessionUser{}
	}
	usersJSON, err := json.Marshal(users)
	if err != nil {
		return false, fmt.Errorf("encode users: %w", err)
	}

	now := time.Now()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (
			session_id, users, status, language, topics, chat_type, started_at, messages, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, $8, $8)
		ON CONFLICT (session_id) DO NOTHING
	`, params.SessionID, string(usersJSON), model.SessionStatusWaiting, params.Language,
		pq.StringArray(params.Topics), params.ChatType, params.StartedAt, now)
	if err != nil {
		return false, err
	}
	return rowsMatched(result)
}

func (r *chatSessionRepo) ApplyTransition(
	ctx context.Context,
	sessionID string,
	from []model.SessionStatus,
	t model.SessionTransition,
) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET
			status = $2,
			accepted_at = COALESCE($3, accepted_at),
			accepted_by = COALESCE(NULLIF($4, ''), accepted_by),
			rejected_by = COALESCE(NULLIF($5, ''), rejected_by),
			ended_at = COALESCE($6, ended_at),
			ended_by = COALESCE(NULLIF($7, ''), ended_by),
			duration = COALESCE($8, duration),
			updated_at = $9
		WHERE session_id = $1 AND status = ANY($10)
	`, sessionID, t.Status, t.AcceptedAt, t.AcceptedBy, t.RejectedBy, t.EndedAt, t.EndedBy, t.Duration,
		time.Now(), pq.Array(model.StatusStrings(from)))
	if err != nil {
		return false, err
	}
	return rowsMatched(result)
}

func (r *chatSessionRepo) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) (bool, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("encode message: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE chat_sessions SET
			messages = messages || jsonb_build_array($2::jsonb),
			updated_at = $3
		WHERE session_id = $1
	`, sessionID, string(msgJSON), time.Now())
	if err != nil {
		return false, err
	}
	return rowsMatched(result)
}
