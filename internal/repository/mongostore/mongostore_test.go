package mongostore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/openclaw/match-session-worker/internal/model"
)

func TestChatSessionRepo(t *testing.T) {
	ctx := context.Background()
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	startedAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("find decodes the stored document", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + ChatSessionsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "sessionId", Value: "s1"},
			{Key: "status", Value: "connected"},
			{Key: "users", Value: bson.A{bson.D{{Key: "id", Value: "u1"}}}},
			{Key: "startedAt", Value: startedAt},
			{Key: "acceptedBy", Value: "u1"},
		}))

		session, err := New(mt.DB).ChatSessions.FindBySessionID(ctx, "s1")
		require.NoError(mt, err)
		require.NotNil(mt, session)
		assert.Equal(mt, "s1", session.SessionID)
		assert.Equal(mt, model.SessionStatusConnected, session.Status)
		assert.Equal(mt, "u1", session.AcceptedBy)
		require.Len(mt, session.Users, 1)
		require.NotNil(mt, session.StartedAt)
		assert.True(mt, startedAt.Equal(*session.StartedAt))
	})

	mt.Run("find returns nil when missing", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + ChatSessionsCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		session, err := New(mt.DB).ChatSessions.FindBySessionID(ctx, "missing")
		require.NoError(mt, err)
		assert.Nil(mt, session)
	})

	mt.Run("create inserts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		created, err := New(mt.DB).ChatSessions.Create(ctx, model.CreateChatSessionParams{
			SessionID: "s1",
			StartedAt: startedAt,
		})
		require.NoError(mt, err)
		assert.True(mt, created)
	})

	mt.Run("create reports duplicate session id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		created, err := New(mt.DB).ChatSessions.Create(ctx, model.CreateChatSessionParams{SessionID: "s1"})
		require.NoError(mt, err)
		assert.False(mt, created)
	})

	mt.Run("transition reports match", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		endedAt := startedAt.Add(time.Minute)
		matched, err := New(mt.DB).ChatSessions.ApplyTransition(ctx, "s1",
			model.AllowedSources(model.SessionStatusEnded),
			model.SessionTransition{
				Status:   model.SessionStatusEnded,
				EndedAt:  &endedAt,
				EndedBy:  "u1",
				Duration: model.SessionDuration(&startedAt, endedAt),
			})
		require.NoError(mt, err)
		assert.True(mt, matched)
	})

	mt.Run("transition reports no match", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		matched, err := New(mt.DB).ChatSessions.ApplyTransition(ctx, "s1",
			model.AllowedSources(model.SessionStatusConnected),
			model.SessionTransition{Status: model.SessionStatusConnected, AcceptedBy: "u2"})
		require.NoError(mt, err)
		assert.False(mt, matched)
	})

	mt.Run("append propagates command errors", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "server shutting down",
		}))

		_, err := New(mt.DB).ChatSessions.AppendMessage(ctx, "s1", model.ChatMessage{From: "u1", Text: "hi"})
		assert.Error(mt, err)
	})
}

func TestUserSessionRepo(t *testing.T) {
	ctx := context.Background()
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	lastSeen := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	mt.Run("upsert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "x"}}}},
		))

		err := New(mt.DB).UserSessions.Upsert(ctx, model.UpsertUserSessionParams{
			SocketID:    "sock-1",
			IP:          "203.0.113.9",
			Preferences: json.RawMessage(`{"language":"en"}`),
			IsOnline:    true,
			LastSeen:    lastSeen,
		})
		assert.NoError(mt, err)
	})

	mt.Run("upsert rejects malformed preferences", func(mt *mtest.T) {
		err := New(mt.DB).UserSessions.Upsert(ctx, model.UpsertUserSessionParams{
			SocketID:    "sock-1",
			Preferences: json.RawMessage(`{`),
		})
		assert.ErrorContains(mt, err, "decode preferences")
	})

	mt.Run("mark offline on unknown socket", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		matched, err := New(mt.DB).UserSessions.MarkOffline(ctx, "sock-9", lastSeen)
		require.NoError(mt, err)
		assert.False(mt, matched)
	})
}

func TestAppendOnlyRepos(t *testing.T) {
	ctx := context.Background()
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("site usage", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		err := New(mt.DB).SiteUsage.Create(ctx, model.SiteUsage{Count: 3, MetricType: "connections", Timestamp: time.Now().UTC()})
		assert.NoError(mt, err)
	})

	mt.Run("location", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		err := New(mt.DB).Locations.Create(ctx, model.Location{
			Data:      model.LocationData{City: "Seoul", Country: "South Korea", IP: "203.0.113.9"},
			CreatedAt: time.Now().UTC(),
		})
		assert.NoError(mt, err)
	})
}

func TestJSONToValue(t *testing.T) {
	v, err := jsonToValue(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonToValue(json.RawMessage(` null `))
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonToValue(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	_, err = jsonToValue(json.RawMessage(`[`))
	assert.Error(t, err)
}
