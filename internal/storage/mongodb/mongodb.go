package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"authgate/internal/storage"
)

const credentialsCollection = "credentials"

type Storage struct {
	client      *mongo.Client
	credentials *mongo.Collection
}

type credentialDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New connects to MongoDB and checks the connection.
func New(ctx context.Context, uri, database string) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	return &Storage{
		client:      client,
		credentials: client.Database(database).Collection(credentialsCollection),
	}, nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Storage) Get(ctx context.Context, key storage.Key) (string, error) {
	const op = "storage.mongodb.Get"

	var doc credentialDoc
	err := s.credentials.FindOne(ctx, bson.D{{Key: "_id", Value: string(key)}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", storage.ErrCredentialNotFound
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if doc.Value == "" {
		return "", storage.ErrCredentialNotFound
	}

	return doc.Value, nil
}

func (s *Storage) Set(ctx context.Context, key storage.Key, value string) error {
	const op = "storage.mongodb.Set"

	_, err := s.credentials.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: string(key)}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "value", Value: value},
				{Key: "updated_at", Value: time.Now()},
			}},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, keys ...storage.Key) error {
	const op = "storage.mongodb.Delete"

	if len(keys) == 0 {
		return nil
	}

	ids := make(bson.A, len(keys))
	for i, k := range keys {
		ids[i] = string(k)
	}

	_, err := s.credentials.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
