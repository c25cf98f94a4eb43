package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
)

const chatCollection = "chathistorys"

func chatIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "createdAt", Value: 1}}},
	}
}

// ChatRepository stores conversation turns
type ChatRepository struct {
	collection *mongo.Collection
}

// NewChatRepository creates a new MongoDB chat repository
func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{
		collection: db.Collection(chatCollection),
	}
}

var _ repositories.ChatRepository = (*ChatRepository)(nil)

// Save implements repositories.ChatRepository
func (r *ChatRepository) Save(ctx context.Context, record *entities.ChatRecord) error {
	if record == nil {
		return errors.New("chat record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid chat record: %w", err)
	}

	doc := newChatDocument(record)
	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save chat record: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		record.ID = oid.Hex()
	}
	record.CreatedAt = doc.CreatedAt
	return nil
}

// ListByUser implements repositories.ChatRepository
func (r *ChatRepository) ListByUser(ctx context.Context, userID string, opts repositories.ListOptions) ([]*entities.ChatRecord, int64, error) {
	if userID == "" {
		return nil, 0, errors.New("user ID cannot be empty")
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 50
	}

	filter := bson.M{"userId": userKey(userID)}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count chat history for user %s: %w", userID, err)
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((opts.Page - 1) * opts.Limit)).
		SetLimit(int64(opts.Limit))

	cursor, err := r.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat history for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	records := make([]*entities.ChatRecord, 0, opts.Limit)
	for cursor.Next(ctx) {
		var doc chatDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode chat record: %w", err)
		}
		records = append(records, doc.toEntity())
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate chat history: %w", err)
	}

	return records, total, nil
}

// Delete implements repositories.ChatRepository
func (r *ChatRepository) Delete(ctx context.Context, userID, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return repositories.ErrNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID, "userId": userKey(userID)})
	if err != nil {
		return fmt.Errorf("failed to delete chat record: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
