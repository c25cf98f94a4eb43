package api

import (
	"encoding/base64"
	"time"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/domain/entities"
)

// TextChatRequest is the body of POST /chat/text_to_text
type TextChatRequest struct {
	Text string `json:"text"`
}

// AudioChatRequest is the body of POST /chat/audio
type AudioChatRequest struct {
	AudioData string `json:"audioData"`
}

// StartSessionRequest is the body of POST /chat/session/start
type StartSessionRequest struct {
	UserProfile *entities.UserProfile `json:"userProfile,omitempty"`
}

// ChatResponse is the reply of one turn
type ChatResponse struct {
	AIResponse        string              `json:"aiResponse"`
	Expression        entities.Expression `json:"expression"`
	QuestionCategory  string              `json:"questionCategory"`
	ConversationTopic string              `json:"conversationTopic"`
	SessionID         string              `json:"sessionId"`
	Timestamp         time.Time           `json:"timestamp"`
	HistoryCount      int                 `json:"historyCount"`
	// Audio is the base64 WAV of the reply
	Audio string `json:"audio,omitempty"`
}

func newChatResponse(result *domain.ChatResult) ChatResponse {
	resp := ChatResponse{
		AIResponse:        result.Reply.AIResponse,
		Expression:        result.Reply.Expression,
		QuestionCategory:  result.Reply.QuestionCategory,
		ConversationTopic: result.Reply.ConversationTopic,
		SessionID:         result.SessionID,
		Timestamp:         result.Timestamp,
		HistoryCount:      result.HistoryCount,
	}
	if result.HasAudio() {
		resp.Audio = base64.StdEncoding.EncodeToString(result.Audio)
	}
	return resp
}

// Response wraps every successful payload
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
