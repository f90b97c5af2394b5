package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LeonardoBeccarini/agrispray/internal/model/entities"
	"github.com/LeonardoBeccarini/agrispray/internal/services/detection"
)

const (
	detectionsCollection = "detections"
	sprayCollection      = "spray_history"
)

var (
	_ detection.DetectionStore = (*MongoStore)(nil)
	_ detection.SprayRecorder  = (*MongoStore)(nil)
)

// MongoStore keeps one document per detection, keyed by detection id.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects and pings; the caller owns Close.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	db := client.Database(database)
	_, err = db.Collection(detectionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo index: %w", err)
	}
	return &MongoStore{client: client, db: db}, nil
}

// Database exposes the handle so the GridFS image store can share the connection.
func (s *MongoStore) Database() *mongo.Database { return s.db }

// Save treats a duplicate id as already stored.
func (s *MongoStore) Save(ctx context.Context, rec entities.DetectionRecord) (string, bool, error) {
	_, err := s.db.Collection(detectionsCollection).InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return rec.DetectionID, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("insert detection: %w", err)
	}
	return rec.DetectionID, true, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (entities.DetectionRecord, error) {
	var rec entities.DetectionRecord
	err := s.db.Collection(detectionsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return entities.DetectionRecord{}, detection.ErrNotFound
	}
	if err != nil {
		return entities.DetectionRecord{}, fmt.Errorf("find detection: %w", err)
	}
	return rec, nil
}

type sprayDoc struct {
	DeviceID    string    `bson:"_id"`
	LastSprayAt time.Time `bson:"lastSprayAt"`
}

func (s *MongoStore) RecordSpray(ctx context.Context, deviceID string, at time.Time) error {
	_, err := s.db.Collection(sprayCollection).UpdateOne(ctx,
		bson.M{"_id": deviceID},
		bson.M{"$max": bson.M{"lastSprayAt": at.UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record spray: %w", err)
	}
	return nil
}

func (s *MongoStore) LastSpray(ctx context.Context, deviceID string) (time.Time, bool, error) {
	var doc sprayDoc
	err := s.db.Collection(sprayCollection).FindOne(ctx, bson.M{"_id": deviceID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("find spray history: %w", err)
	}
	return doc.LastSprayAt.UTC(), true, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
