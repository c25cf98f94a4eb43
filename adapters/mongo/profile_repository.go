package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
)

const userCollection = "users"

// ProfileRepository reads personalization fields from user accounts
type ProfileRepository struct {
	collection *mongo.Collection
}

// NewProfileRepository creates a new MongoDB profile repository
func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{
		collection: db.Collection(userCollection),
	}
}

var _ repositories.ProfileRepository = (*ProfileRepository)(nil)

// GetProfile implements repositories.ProfileRepository
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*entities.UserProfile, error) {
	if userID == "" {
		return nil, nil
	}

	filter := bson.M{"_id": userKey(userID), "isDelete": bson.M{"$ne": true}}
	opts := options.FindOne().SetProjection(bson.M{
		"nickname": 1, "name": 1, "gender": 1, "hobbies": 1, "age": 1,
	})

	var doc userDocument
	err := r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile for user %s: %w", userID, err)
	}

	return doc.toProfile(), nil
}
