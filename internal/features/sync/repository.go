package sync

import (
	"context"
	"time"

	"aspire-sync/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RunLogRepository interface {
	Create(ctx context.Context, log *RunLog) error
	Finalize(ctx context.Context, log *RunLog) error
	LastSuccess(ctx context.Context) (*time.Time, error)
	List(ctx context.Context, entityScope, status string, limit int64) ([]RunLog, error)
}

type RunLogRepositoryImpl struct {
	collection *mongo.Collection
}

func NewRunLogRepository(db *database.MongodbDB) RunLogRepository {
	return &RunLogRepositoryImpl{
		collection: db.DB.Collection("aspire_sync_logs"),
	}
}

func (r *RunLogRepositoryImpl) Create(ctx context.Context, log *RunLog) error {
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, log)
	return err
}

func (r *RunLogRepositoryImpl) Finalize(ctx context.Context, log *RunLog) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": log.ID}, log)
	return err
}

// LastSuccess returns the completion time of the most recent Success run
// across all entity scopes, or nil when no run has succeeded yet.
func (r *RunLogRepositoryImpl) LastSuccess(ctx context.Context) (*time.Time, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "completed_at", Value: -1}})

	var log RunLog
	err := r.collection.FindOne(ctx, bson.M{"status": StatusSuccess}, opts).Decode(&log)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	completed := log.CompletedAt
	return &completed, nil
}

func (r *RunLogRepositoryImpl) List(ctx context.Context, entityScope, status string, limit int64) ([]RunLog, error) {
	filter := bson.M{}
	if entityScope != "" {
		filter["entity_scope"] = entityScope
	}
	if status != "" {
		filter["status"] = status
	}

	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}).SetLimit(limit)
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []RunLog
	if err = cursor.All(ctx, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}
