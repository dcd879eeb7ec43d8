package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/match-session-worker/internal/model"
)

func TestUserSessionRepository_Upsert(t *testing.T) {
	lastSeen := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("upserts by socket id", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserSessionRepository(db)

		mock.ExpectExec(`INSERT INTO user_sessions .* ON CONFLICT \(socket_id\) DO UPDATE SET`).
			WithArgs("sock-1", "1.2.3.4", `{"lang":"en"}`, true, lastSeen, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Upsert(context.Background(), model.UpsertUserSessionParams{
			SocketID:    "sock-1",
			IP:          "1.2.3.4",
			Preferences: json.RawMessage(` {"lang":"en"} `),
			IsOnline:    true,
			LastSeen:    lastSeen,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates errors", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserSessionRepository(db)

		mock.ExpectExec(`INSERT INTO user_sessions`).WillReturnError(errors.New("unique violation"))

		err := repo.Upsert(context.Background(), model.UpsertUserSessionParams{SocketID: "sock-1"})
		assert.Error(t, err)
	})
}

func TestUserSessionRepository_MarkOffline(t *testing.T) {
	lastSeen := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)

	t.Run("updates existing session", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserSessionRepository(db)

		mock.ExpectExec(`UPDATE user_sessions SET\s+is_online = FALSE`).
			WithArgs("sock-1", lastSeen, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		matched, err := repo.MarkOffline(context.Background(), "sock-1", lastSeen)
		require.NoError(t, err)
		assert.True(t, matched)
	})

	t.Run("reports unknown socket", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewUserSessionRepository(db)

		mock.ExpectExec(`UPDATE user_sessions`).WillReturnResult(sqlmock.NewResult(0, 0))

		matched, err := repo.MarkOffline(context.Background(), "ghost", lastSeen)
		require.NoError(t, err)
		assert.False(t, matched)
	})
}

func TestSiteUsageRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSiteUsageRepository(db)
	ts := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO site_usages`).
		WithArgs(int64(3), ts, "visit", "1.2.3.4").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), model.SiteUsage{Count: 3, Timestamp: ts, MetricType: "visit", IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewLocationRepository(db)
	createdAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO locations`).
		WithArgs("1.2.3.4", sqlmock.AnyArg(), createdAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), model.Location{
		Data:      model.LocationData{City: "Seoul", Country: "South Korea", IP: "1.2.3.4"},
		CreatedAt: createdAt,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullableJSON(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Nil(t, nullableJSON(json.RawMessage("null")))
	assert.Nil(t, nullableJSON(json.RawMessage("  ")))
	assert.Equal(t, `{"a":1}`, nullableJSON(json.RawMessage(`{"a":1}`)))
}
