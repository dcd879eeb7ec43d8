package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventSessionAccepted   EventType = "session_accepted"
	EventSessionRejected   EventType = "session_rejected"
	EventSessionEnded      EventType = "session_ended"
	EventMessageAppended   EventType = "message_appended"
	EventTransitionSkipped EventType = "transition_skipped"
	EventUserOnline        EventType = "user_online"
	EventUserOffline       EventType = "user_offline"
	EventUserJoinedQueue   EventType = "user_joined_queue"
	EventUserLeftQueue     EventType = "user_left_queue"
)

type Event struct {
	Type      EventType
	SessionID string
	SocketID  string
	IP        string
	Details   map[string]interface{}
}

// Log writes a lifecycle audit record. These are the only trace of a
// transition outside the durable store.
func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "lifecycle").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.SessionID != "" {
		logger = logger.With().Str("session_id", event.SessionID).Logger()
	}
	if event.SocketID != "" {
		logger = logger.With().Str("socket_id", event.SocketID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	if event.Type == EventTransitionSkipped {
		logEvent = logger.Warn()
	}
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("session audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Time:
		return e.Time(key, v)
	case time.Duration:
		return e.Dur(key, v)
	default:
		return e.Interface(key, v)
	}
}
