// Package mongostore implements the durable gateways on MongoDB. Collection
// names and field names follow the documents the matching service already
// reads.
package mongostore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/openclaw/match-session-worker/internal/model"
	"github.com/openclaw/match-session-worker/internal/repository"
)

const (
	ChatSessionsCollection = "chatsessions"
	UserSessionsCollection = "usersessions"
	SiteUsageCollection    = "siteusages"
	LocationsCollection    = "locations"
)

// New builds the durable gateways on db.
func New(db *mongo.Database) *repository.Store {
	return &repository.Store{
		ChatSessions: &chatSessionRepo{coll: db.Collection(ChatSessionsCollection)},
		UserSessions: &userSessionRepo{coll: db.Collection(UserSessionsCollection)},
		SiteUsage:    &siteUsageRepo{coll: db.Collection(SiteUsageCollection)},
		Locations:    &locationRepo{coll: db.Collection(LocationsCollection)},
	}
}

// EnsureIndexes creates the unique keys the gateways rely on for upserts and
// duplicate detection.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string]mongo.IndexModel{
		ChatSessionsCollection: {
			Keys:    bson.D{{Key: "sessionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		UserSessionsCollection: {
			Keys:    bson.D{{Key: "socketId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	for coll, idx := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("create index on %s: %w", coll, err)
		}
	}
	return nil
}

type chatSessionRepo struct {
	coll *mongo.Collection
}

func (r *chatSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.coll.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *chatSessionRepo) Create(ctx context.Context, params model.CreateChatSessionParams) (bool, error) {
	now := time.Now().UTC()
	startedAt := params.StartedAt
	users := params.Users
	if users == nil {
		users = []model.SessionUser{}
	}

	_, err := r.coll.InsertOne(ctx, model.ChatSession{
		SessionID: params.SessionID,
		Users:     users,
		Status:    model.SessionStatusWaiting,
		Language:  params.Language,
		Topics:    params.Topics,
		ChatType:  params.ChatType,
		StartedAt: &startedAt,
		Messages:  []model.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *chatSessionRepo) ApplyTransition(
	ctx context.Context,
	sessionID string,
	from []model.SessionStatus,
	t model.SessionTransition,
) (bool, error) {
	set := bson.M{
		"status":    t.Status,
		"updatedAt": time.Now().UTC(),
	}
	if t.AcceptedAt != nil {
		set["acceptedAt"] = *t.AcceptedAt
	}
	if t.AcceptedBy != "" {
		set["acceptedBy"] = t.AcceptedBy
	}
	if t.RejectedBy != "" {
		set["rejectedBy"] = t.RejectedBy
	}
	if t.EndedAt != nil {
		set["endedAt"] = *t.EndedAt
	}
	if t.EndedBy != "" {
		set["endedBy"] = t.EndedBy
	}
	if t.Duration != nil {
		set["duration"] = *t.Duration
	}

	filter := bson.M{
		"sessionId": sessionID,
		"status":    bson.M{"$in": model.StatusStrings(from)},
	}
	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

func (r *chatSessionRepo) AppendMessage(ctx context.Context, sessionID string, msg model.ChatMessage) (bool, error) {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"sessionId": sessionID},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

type userSessionRepo struct {
	coll *mongo.Collection
}

func (r *userSessionRepo) Upsert(ctx context.Context, params model.UpsertUserSessionParams) error {
	preferences, err := jsonToValue(params.Preferences)
	if err != nil {
		return fmt.Errorf("decode preferences: %w", err)
	}
	location, err := jsonToValue(params.Location)
	if err != nil {
		return fmt.Errorf("decode location: %w", err)
	}

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"socketId":    params.SocketID,
			"ip":          params.IP,
			"preferences": preferences,
			"isOnline":    params.IsOnline,
			"lastSeen":    params.LastSeen,
			"location":    location,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	_, err = r.coll.UpdateOne(ctx,
		bson.M{"socketId": params.SocketID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *userSessionRepo) MarkOffline(ctx context.Context, socketID string, lastSeen time.Time) (bool, error) {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"socketId": socketID},
		bson.M{"$set": bson.M{
			"isOnline":  false,
			"lastSeen":  lastSeen,
			"updatedAt": time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount > 0, nil
}

type siteUsageRepo struct {
	coll *mongo.Collection
}

func (r *siteUsageRepo) Create(ctx context.Context, usage model.SiteUsage) error {
	_, err := r.coll.InsertOne(ctx, usage)
	return err
}

type locationRepo struct {
	coll *mongo.Collection
}

func (r *locationRepo) Create(ctx context.Context, location model.Location) error {
	_, err := r.coll.InsertOne(ctx, location)
	return err
}

// jsonToValue converts an opaque JSON blob into a value the BSON encoder
// stores as a document rather than binary.
func jsonToValue(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	return v, nil
}
