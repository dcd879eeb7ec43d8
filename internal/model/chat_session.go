package model

import "time"

type SessionUser struct {
	ID string `bson:"id" json:"id"`
	IP string `bson:"ip,omitempty" json:"ip,omitempty"`
}

type ChatMessage struct {
	From      string    `bson:"from" json:"from"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ChatSession is the durable record of one match, from creation until it is
// rejected or ended.
type ChatSession struct {
	SessionID  string        `bson:"sessionId" json:"sessionId"`
	Users      []SessionUser `bson:"users" json:"users"`
	Status     SessionStatus `bson:"status" json:"status"`
	Language   string        `bson:"language,omitempty" json:"language,omitempty"`
	Topics     []string      `bson:"topics,omitempty" json:"topics,omitempty"`
	ChatType   string        `bson:"chatType,omitempty" json:"chatType,omitempty"`
	StartedAt  *time.Time    `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	AcceptedAt *time.Time    `bson:"acceptedAt,omitempty" json:"acceptedAt,omitempty"`
	AcceptedBy string        `bson:"acceptedBy,omitempty" json:"acceptedBy,omitempty"`
	RejectedBy string        `bson:"rejectedBy,omitempty" json:"rejectedBy,omitempty"`
	EndedAt    *time.Time    `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	EndedBy    string        `bson:"endedBy,omitempty" json:"endedBy,omitempty"`
	Duration   *int64        `bson:"duration,omitempty" json:"duration,omitempty"`
	Messages   []ChatMessage `bson:"messages" json:"messages"`
	CreatedAt  time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time     `bson:"updatedAt" json:"updatedAt"`
}

type CreateChatSessionParams struct {
	SessionID string
	Users     []SessionUser
	Language  string
	Topics    []string
	ChatType  string
	StartedAt time.Time
}

// SessionTransition is the set of fields written together with a status
// change. Nil or empty fields are left untouched.
type SessionTransition struct {
	Status     SessionStatus
	AcceptedAt *time.Time
	AcceptedBy string
	RejectedBy string
	EndedAt    *time.Time
	EndedBy    string
	Duration   *int64
}

// SessionDuration returns whole seconds between startedAt and endedAt, or nil
// when the session never recorded a start.
func SessionDuration(startedAt *time.Time, endedAt time.Time) *int64 {
	if startedAt == nil || startedAt.IsZero() {
		return nil
	}
	d := int64(endedAt.Sub(*startedAt) / time.Second)
	return &d
}
