package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
)

// TestRepositories_Integration requires a running MongoDB instance and is
// skipped when MONGODB_URI is not set
func TestRepositories_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, Config{URI: mongoURI, Database: "ami_test"}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close(ctx)
	defer client.Database.Drop(ctx)

	require.NoError(t, client.EnsureIndexes(ctx))

	chats := NewChatRepository(client.Database)
	profiles := NewProfileRepository(client.Database)
	userID := primitive.NewObjectID().Hex()

	t.Run("SaveAndList", func(t *testing.T) {
		for i, msg := range []string{"first", "second", "third"} {
			record := entities.NewChatRecord(userID, "session-1", msg, entities.FallbackReply("reply "+msg))
			record.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
			require.NoError(t, chats.Save(ctx, record))
			assert.NotEmpty(t, record.ID)
		}

		page, total, err := chats.ListByUser(ctx, userID, repositories.ListOptions{Page: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page, 2)
		assert.Equal(t, "third", page[0].UserMessage)
		assert.Equal(t, "second", page[1].UserMessage)

		page, _, err = chats.ListByUser(ctx, userID, repositories.ListOptions{Page: 2, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "first", page[0].UserMessage)
	})

	t.Run("SaveRejectsInvalid", func(t *testing.T) {
		err := chats.Save(ctx, &entities.ChatRecord{UserID: userID})
		assert.Error(t, err)
	})

	t.Run("DeleteScopedToUser", func(t *testing.T) {
		record := entities.NewChatRecord(userID, "session-2", "delete me", entities.FallbackReply("ok"))
		require.NoError(t, chats.Save(ctx, record))

		err := chats.Delete(ctx, primitive.NewObjectID().Hex(), record.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)

		require.NoError(t, chats.Delete(ctx, userID, record.ID))
		assert.ErrorIs(t, chats.Delete(ctx, userID, record.ID), repositories.ErrNotFound)
		assert.ErrorIs(t, chats.Delete(ctx, userID, "not-an-id"), repositories.ErrNotFound)
	})

	t.Run("Profile", func(t *testing.T) {
		oid := primitive.NewObjectID()
		_, err := client.Database.Collection(userCollection).InsertOne(ctx, bson.M{
			"_id": oid, "nickname": "Sari", "gender": "female", "age": "72", "hobbies": []string{"batik"},
		})
		require.NoError(t, err)

		profile, err := profiles.GetProfile(ctx, oid.Hex())
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Equal(t, "Sari", profile.Nickname)
		assert.Equal(t, 72, profile.Age)

		missing, err := profiles.GetProfile(ctx, primitive.NewObjectID().Hex())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}
