package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = original })
	return &buf
}

func TestLog(t *testing.T) {
	t.Run("writes identifiers and details", func(t *testing.T) {
		buf := captureLog(t)

		Log(context.Background(), Event{
			Type:      EventSessionEnded,
			SessionID: "s1",
			Details: map[string]interface{}{
				"ended_by": "u2",
				"duration": int64(300),
			},
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "lifecycle", entry["audit"])
		assert.Equal(t, "session_ended", entry["event_type"])
		assert.Equal(t, "s1", entry["session_id"])
		assert.Equal(t, "u2", entry["ended_by"])
		assert.Equal(t, float64(300), entry["duration"])
		assert.Equal(t, "info", entry["level"])
		assert.NotContains(t, entry, "socket_id")
	})

	t.Run("skipped transitions log at warn", func(t *testing.T) {
		buf := captureLog(t)

		Log(context.Background(), Event{
			Type:     EventTransitionSkipped,
			SocketID: "sock-1",
			Details:  map[string]interface{}{"at": time.Unix(0, 0).UTC()},
		})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "sock-1", entry["socket_id"])
	})
}
