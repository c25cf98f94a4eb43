package mongo

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/satriahrh/ami/domain/entities"
)

// chatDocument is the stored shape of a chat turn. Field names follow the
// collection's existing camelCase layout.
type chatDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	UserID            interface{}        `bson:"userId"`
	SessionID         string             `bson:"sessionId,omitempty"`
	UserMessage       string             `bson:"userMessage"`
	AIResponse        string             `bson:"aiResponse"`
	Expression        string             `bson:"expression"`
	QuestionCategory  string             `bson:"questionCategory"`
	ConversationTopic string             `bson:"conversationTopic"`
	AudioBytes        int                `bson:"audioBytes,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt"`
}

func newChatDocument(record *entities.ChatRecord) chatDocument {
	created := record.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	reply := record.Reply.Normalize()
	return chatDocument{
		UserID:            userKey(record.UserID),
		SessionID:         record.SessionID,
		UserMessage:       record.UserMessage,
		AIResponse:        reply.AIResponse,
		Expression:        string(reply.Expression),
		QuestionCategory:  reply.QuestionCategory,
		ConversationTopic: reply.ConversationTopic,
		AudioBytes:        record.AudioBytes,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func (d chatDocument) toEntity() *entities.ChatRecord {
	record := &entities.ChatRecord{
		ID:          d.ID.Hex(),
		SessionID:   d.SessionID,
		UserMessage: d.UserMessage,
		Reply: entities.StructuredReply{
			AIResponse:        d.AIResponse,
			Expression:        entities.Expression(d.Expression),
			QuestionCategory:  d.QuestionCategory,
			ConversationTopic: d.ConversationTopic,
		}.Normalize(),
		AudioBytes: d.AudioBytes,
		CreatedAt:  d.CreatedAt,
	}
	switch id := d.UserID.(type) {
	case primitive.ObjectID:
		record.UserID = id.Hex()
	case string:
		record.UserID = id
	}
	return record
}

// userDocument is the subset of a user account the assistant cares about
type userDocument struct {
	Nickname string        `bson:"nickname"`
	Name     string        `bson:"name"`
	Gender   string        `bson:"gender"`
	Hobbies  []string      `bson:"hobbies"`
	Age      bson.RawValue `bson:"age"`
}

func (d userDocument) toProfile() *entities.UserProfile {
	profile := &entities.UserProfile{
		Nickname: strings.TrimSpace(d.Nickname),
		Hobbies:  d.Hobbies,
		Age:      parseAge(d.Age),
	}
	if profile.Nickname == "" {
		profile.Nickname = strings.TrimSpace(d.Name)
	}
	switch g := strings.ToLower(strings.TrimSpace(d.Gender)); g {
	case entities.GenderMale, entities.GenderFemale:
		profile.Gender = g
	}
	return profile
}

// parseAge accepts ages stored as numbers or as numeric strings
func parseAge(v bson.RawValue) int {
	var age int
	switch v.Type {
	case bsontype.Int32:
		age = int(v.Int32())
	case bsontype.Int64:
		age = int(v.Int64())
	case bsontype.Double:
		age = int(v.Double())
	case bsontype.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.StringValue()))
		if err != nil {
			return 0
		}
		age = n
	default:
		return 0
	}
	if age < 0 || age > 150 {
		return 0
	}
	return age
}

// userKey stores account ids as ObjectIDs when they look like one
func userKey(userID string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		return oid
	}
	return userID
}
