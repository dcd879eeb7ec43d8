package model

import "slices"

// SessionStatus is the lifecycle state of a match/chat session.
type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "waiting"
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusConnected SessionStatus = "connected"
	SessionStatusRejected  SessionStatus = "rejected"
	SessionStatusEnded     SessionStatus = "ended"
)

// Each target lists the states it may be entered from. A terminal target
// lists itself so a redelivered event re-applies cleanly.
var transitionSources = map[SessionStatus][]SessionStatus{
	SessionStatusPending: {
		SessionStatusWaiting, SessionStatusPending,
	},
	SessionStatusConnected: {
		SessionStatusWaiting, SessionStatusPending, SessionStatusConnected,
	},
	SessionStatusRejected: {
		SessionStatusWaiting, SessionStatusPending, SessionStatusRejected,
	},
	SessionStatusEnded: {
		SessionStatusWaiting, SessionStatusPending, SessionStatusConnected, SessionStatusEnded,
	},
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusPending, SessionStatusConnected,
		SessionStatusRejected, SessionStatusEnded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusRejected || s == SessionStatusEnded
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return slices.Contains(transitionSources[next], s)
}

// AllowedSources returns the states from which target may be entered.
// The result is a copy and safe to retain.
func AllowedSources(target SessionStatus) []SessionStatus {
	return slices.Clone(transitionSources[target])
}

// StatusStrings converts statuses for drivers that want plain strings.
func StatusStrings(statuses []SessionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
