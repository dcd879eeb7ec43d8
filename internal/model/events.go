package model

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/openclaw/match-session-worker/internal/errors"
)

// Topic names an inbound event. It doubles as the queue name.
type Topic string

const (
	TopicUserConnected    Topic = "user_connected"
	TopicUserDisconnected Topic = "user_disconnected"
	TopicUserJoinedQueue  Topic = "user_joined_queue"
	TopicUserLeftQueue    Topic = "user_left_queue"
	TopicMatchCreated     Topic = "match_created"
	TopicMatchAccepted    Topic = "match_accepted"
	TopicMatchRejected    Topic = "match_rejected"
	TopicChatEnded        Topic = "chat_ended"
	TopicMessageSent      Topic = "message_sent"
)

// Topics lists every topic the worker consumes.
var Topics = []Topic{
	TopicUserConnected,
	TopicUserDisconnected,
	TopicUserJoinedQueue,
	TopicUserLeftQueue,
	TopicMatchCreated,
	TopicMatchAccepted,
	TopicMatchRejected,
	TopicChatEnded,
	TopicMessageSent,
}

// Event is a decoded inbound payload. The concrete type is determined by the
// topic it arrived on.
type Event interface {
	Topic() Topic
}

type UserConnected struct {
	Count      json.Number `json:"count"`
	Timestamp  Timestamp   `json:"timestamp"`
	MetricType string      `json:"metricType"`
	IP         string      `json:"ip"`
}

type UserDisconnected struct {
	SocketID  string    `json:"socketId"`
	Timestamp Timestamp `json:"timestamp"`
}

type UserJoinedQueue struct {
	SocketID    string          `json:"socketId"`
	IP          string          `json:"ip"`
	Preferences json.RawMessage `json:"preferences"`
	Location    json.RawMessage `json:"location,omitempty"`
	Timestamp   Timestamp       `json:"timestamp"`
}

type UserLeftQueue struct {
	SocketID  string    `json:"socketId"`
	Timestamp Timestamp `json:"timestamp"`
}

type MatchCreated struct {
	SessionID string        `json:"sessionId"`
	Users     []SessionUser `json:"users"`
	Language  string        `json:"language"`
	Topics    []string      `json:"topics"`
	ChatType  string        `json:"chatType"`
	Timestamp Timestamp     `json:"timestamp"`
}

type MatchAccepted struct {
	SessionID  string    `json:"sessionId"`
	AcceptedBy string    `json:"acceptedBy"`
	Timestamp  Timestamp `json:"timestamp"`
}

type MatchRejected struct {
	SessionID  string    `json:"sessionId"`
	RejectedBy string    `json:"rejectedBy"`
	Timestamp  Timestamp `json:"timestamp"`
}

type ChatEnded struct {
	SessionID string    `json:"sessionId"`
	EndedBy   string    `json:"endedBy"`
	Timestamp Timestamp `json:"timestamp"`
}

type MessagePayload struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp"`
}

type MessageSent struct {
	SessionID string         `json:"sessionId"`
	Message   MessagePayload `json:"message"`
}

// UnknownEvent carries a topic the worker has no handler for.
type UnknownEvent struct {
	Name Topic
}

func (UserConnected) Topic() Topic    { return TopicUserConnected }
func (UserDisconnected) Topic() Topic { return TopicUserDisconnected }
func (UserJoinedQueue) Topic() Topic  { return TopicUserJoinedQueue }
func (UserLeftQueue) Topic() Topic    { return TopicUserLeftQueue }
func (MatchCreated) Topic() Topic     { return TopicMatchCreated }
func (MatchAccepted) Topic() Topic    { return TopicMatchAccepted }
func (MatchRejected) Topic() Topic    { return TopicMatchRejected }
func (ChatEnded) Topic() Topic        { return TopicChatEnded }
func (MessageSent) Topic() Topic      { return TopicMessageSent }
func (e UnknownEvent) Topic() Topic   { return e.Name }

// UsageCount parses the count field, which producers send as either a
// number or a numeric string.
func (e UserConnected) UsageCount() (int64, error) {
	if e.Count == "" {
		return 0, nil
	}
	if n, err := e.Count.Int64(); err == nil {
		return n, nil
	}
	f, err := e.Count.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", e.Count)
	}
	return int64(f), nil
}

// DecodeEvent validates body against the payload shape registered for topic.
// Unregistered topics decode to UnknownEvent without error.
func DecodeEvent(topic string, body []byte) (Event, error) {
	var (
		event Event
		err   error
	)

	switch Topic(topic) {
	case TopicUserConnected:
		event, err = decodeInto[UserConnected](body)
	case TopicUserDisconnected:
		event, err = decodeInto[UserDisconnected](body)
	case TopicUserJoinedQueue:
		event, err = decodeInto[UserJoinedQueue](body)
	case TopicUserLeftQueue:
		event, err = decodeInto[UserLeftQueue](body)
	case TopicMatchCreated:
		event, err = decodeInto[MatchCreated](body)
	case TopicMatchAccepted:
		event, err = decodeInto[MatchAccepted](body)
	case TopicMatchRejected:
		event, err = decodeInto[MatchRejected](body)
	case TopicChatEnded:
		event, err = decodeInto[ChatEnded](body)
	case TopicMessageSent:
		event, err = decodeInto[MessageSent](body)
	default:
		return UnknownEvent{Name: Topic(topic)}, nil
	}
	if err != nil {
		return nil, apperrors.Decode(topic, err)
	}

	if err := validateEvent(event); err != nil {
		return nil, apperrors.Decode(topic, err)
	}
	return event, nil
}

func decodeInto[T Event](body []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func validateEvent(event Event) error {
	switch e := event.(type) {
	case UserConnected:
		if _, err := e.UsageCount(); err != nil {
			return err
		}
	case UserDisconnected:
		return requireField("socketId", e.SocketID)
	case UserJoinedQueue:
		return requireField("socketId", e.SocketID)
	case UserLeftQueue:
		return requireField("socketId", e.SocketID)
	case MatchCreated:
		if err := requireField("sessionId", e.SessionID); err != nil {
			return err
		}
		if e.Timestamp.IsZero() {
			return fmt.Errorf("timestamp is required")
		}
	case MatchAccepted:
		return requireField("sessionId", e.SessionID)
	case MatchRejected:
		return requireField("sessionId", e.SessionID)
	case ChatEnded:
		if err := requireField("sessionId", e.SessionID); err != nil {
			return err
		}
		if e.Timestamp.IsZero() {
			return fmt.Errorf("timestamp is required")
		}
	case MessageSent:
		return requireField("sessionId", e.SessionID)
	}
	return nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
