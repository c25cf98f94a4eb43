package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Inbound message types
const (
	MessageTypeText         MessageType = "text"
	MessageTypeAudio        MessageType = "audio"
	MessageTypePing         MessageType = "ping"
	MessageTypeSessionStart MessageType = "session_start"
	MessageTypeSessionEnd   MessageType = "session_end"
)

// Outbound message types
const (
	MessageTypeReply          MessageType = "reply"
	MessageTypePong           MessageType = "pong"
	MessageTypeError          MessageType = "error"
	MessageTypeSessionStarted MessageType = "session_started"
	MessageTypeSessionEnded   MessageType = "session_ended"
)

// Error codes carried by ErrorMessage
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeEmptyMessage   = "empty_message"
	ErrorCodeInvalidAudio   = "invalid_audio"
	ErrorCodeInvalidProfile = "invalid_profile"
	ErrorCodeUnavailable    = "session_unavailable"
	ErrorCodeTimeout        = "turn_timeout"
	ErrorCodeBusy           = "busy"
	ErrorCodeInternal       = "internal_error"
)

// maxTextLength bounds a single text turn, in characters
const maxTextLength = 2000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// TextMessage is a typed user turn
type TextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// AudioMessage is a spoken user turn, base64 of a WAV file or 16kHz PCM
type AudioMessage struct {
	BaseMessage
	AudioData string `json:"audio_data"`
}

// SessionStartMessage opens the live session, optionally personalized
type SessionStartMessage struct {
	BaseMessage
	Profile *entities.UserProfile `json:"profile,omitempty"`
}

// SessionEndMessage closes the live session
type SessionEndMessage struct {
	BaseMessage
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ReplyMessage carries the structured reply of one turn. When HasAudio is
// set, the WAV follows as the next binary message.
type ReplyMessage struct {
	BaseMessage
	SessionID    string                   `json:"session_id"`
	Reply        entities.StructuredReply `json:"reply"`
	HistoryCount int                      `json:"history_count"`
	HasAudio     bool                     `json:"has_audio"`
	AudioBytes   int                      `json:"audio_bytes,omitempty"`
}

// SessionMessage acknowledges session_start and session_end
type SessionMessage struct {
	BaseMessage
	Session *entities.LiveSession `json:"session,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an inbound message into its typed form
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeText:
		var msg TextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text message: %w", err)
		}
		if err := v.validateText(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeAudio:
		var msg AudioMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio message: %w", err)
		}
		if strings.TrimSpace(msg.AudioData) == "" {
			return nil, fmt.Errorf("audio_data is required")
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case MessageTypeSessionStart:
		var msg SessionStartMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid session start message: %w", err)
		}
		if msg.Profile != nil {
			if err := msg.Profile.Validate(); err != nil {
				return nil, fmt.Errorf("invalid profile: %w", err)
			}
		}
		return &msg, nil

	case MessageTypeSessionEnd:
		return &SessionEndMessage{BaseMessage: base}, nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func (v *MessageValidator) validateText(msg *TextMessage) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return fmt.Errorf("text is required")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return fmt.Errorf("text must be at most %d characters", maxTextLength)
	}
	return nil
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}

// CreateReplyMessage wraps a chat result
func CreateReplyMessage(result *domain.ChatResult) *ReplyMessage {
	return &ReplyMessage{
		BaseMessage:  BaseMessage{Type: MessageTypeReply, Timestamp: result.Timestamp.Format(time.RFC3339)},
		SessionID:    result.SessionID,
		Reply:        result.Reply,
		HistoryCount: result.HistoryCount,
		HasAudio:     result.HasAudio(),
		AudioBytes:   len(result.Audio),
	}
}

// CreateSessionMessage acknowledges a session change
func CreateSessionMessage(t MessageType, session *entities.LiveSession) *SessionMessage {
	return &SessionMessage{
		BaseMessage: newBase(t),
		Session:     session,
	}
}
