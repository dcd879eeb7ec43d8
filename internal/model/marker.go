package model

import (
	"encoding/json"
	"fmt"
)

// SessionMarker is the JSON snapshot the matching service keeps in the
// ephemeral store under "<prefix><id>".
type SessionMarker struct {
	ID        string        `json:"id"`
	Users     []string      `json:"users"`
	Status    SessionStatus `json:"status"`
	StartedAt string        `json:"startedAt,omitempty"`
	ChatType  string        `json:"chatType,omitempty"`
	EndedAt   string        `json:"endedAt,omitempty"`
}

func DecodeSessionMarker(raw string) (*SessionMarker, error) {
	var m SessionMarker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal session marker: %w", err)
	}
	if !m.Status.Valid() {
		return nil, fmt.Errorf("session marker has unknown status %q", m.Status)
	}
	return &m, nil
}

// Reclaimable reports whether the cleanup sweep should delete the marker.
func (m *SessionMarker) Reclaimable() bool {
	return m.Status == SessionStatusEnded
}
