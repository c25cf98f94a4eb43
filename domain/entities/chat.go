package entities

import (
	"errors"
	"strings"
	"time"
)

// Gender values accepted on a user profile
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// UserProfile personalizes the assistant's system prompt. Every field is optional.
type UserProfile struct {
	Nickname string   `json:"nickname,omitempty" bson:"nickname,omitempty"`
	Age      int      `json:"age,omitempty" bson:"age,omitempty"`
	Gender   string   `json:"gender,omitempty" bson:"gender,omitempty"`
	Hobbies  []string `json:"hobbies,omitempty" bson:"hobbies,omitempty"`
}

// ChatRecord is one persisted conversation turn
type ChatRecord struct {
	ID          string          `json:"id" bson:"-"`
	UserID      string          `json:"user_id" bson:"user_id"`
	SessionID   string          `json:"session_id" bson:"session_id"`
	UserMessage string          `json:"user_message" bson:"user_message"`
	Reply       StructuredReply `json:"reply" bson:"reply"`
	AudioBytes  int             `json:"audio_bytes" bson:"audio_bytes"`
	CreatedAt   time.Time       `json:"created_at" bson:"created_at"`
}

// NewChatRecord builds a record for a completed turn with a normalized reply.
func NewChatRecord(userID, sessionID, userMessage string, reply StructuredReply) *ChatRecord {
	return &ChatRecord{
		UserID:      userID,
		SessionID:   sessionID,
		UserMessage: strings.TrimSpace(userMessage),
		Reply:       reply.Normalize(),
		CreatedAt:   time.Now(),
	}
}

// Domain validation methods
func (p *UserProfile) Validate() error {
	if p.Age < 0 || p.Age > 150 {
		return errors.New("age must be between 0 and 150")
	}
	if p.Gender != "" && p.Gender != GenderMale && p.Gender != GenderFemale {
		return errors.New("gender must be male or female")
	}
	return nil
}

func (c *ChatRecord) Validate() error {
	if c.UserID == "" {
		return errors.New("user ID is required")
	}
	if strings.TrimSpace(c.UserMessage) == "" {
		return errors.New("user message cannot be empty")
	}
	if strings.TrimSpace(c.Reply.AIResponse) == "" {
		return errors.New("AI response cannot be empty")
	}
	return nil
}
