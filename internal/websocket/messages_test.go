package websocket

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/domain/entities"
)

func TestMessageValidator_ValidateText(t *testing.T) {
	validator := NewMessageValidator()

	tests := []struct {
		name    string
		message string
		wantErr bool
	}{
		{
			name:    "valid text",
			message: `{"type": "text", "text": "Good morning Ami"}`,
			wantErr: false,
		},
		{
			name:    "blank text",
			message: `{"type": "text", "text": "   "}`,
			wantErr: true,
		},
		{
			name:    "missing text",
			message: `{"type": "text"}`,
			wantErr: true,
		},
		{
			name:    "too long",
			message: `{"type": "text", "text": "` + strings.Repeat("a", maxTextLength+1) + `"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.ValidateMessage([]byte(tt.message))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator_ValidateAudio(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "audio", "audio_data": "SGVsbG8="}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	msg, ok := result.(*AudioMessage)
	if !ok {
		t.Fatalf("Expected *AudioMessage, got %T", result)
	}
	if msg.AudioData != "SGVsbG8=" {
		t.Errorf("Expected audio data 'SGVsbG8=', got '%s'", msg.AudioData)
	}

	if _, err := validator.ValidateMessage([]byte(`{"type": "audio"}`)); err == nil {
		t.Error("Expected error for audio message without audio_data")
	}
}

func TestMessageValidator_ValidatePing(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "ping", "data": "test-ping"}`))
	if err != nil {
		t.Errorf("ValidateMessage() error = %v", err)
	}

	pingMsg, ok := result.(*PingMessage)
	if !ok {
		t.Fatalf("Expected *PingMessage, got %T", result)
	}

	if pingMsg.Data != "test-ping" {
		t.Errorf("Expected data 'test-ping', got '%s'", pingMsg.Data)
	}
}

func TestMessageValidator_ValidateSessionStart(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{
		"type": "session_start",
		"profile": {"nickname": "Nana", "age": 78, "gender": "female", "hobbies": ["gardening"]}
	}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	msg, ok := result.(*SessionStartMessage)
	if !ok {
		t.Fatalf("Expected *SessionStartMessage, got %T", result)
	}
	if msg.Profile == nil || msg.Profile.Nickname != "Nana" || msg.Profile.Age != 78 {
		t.Errorf("Unexpected profile %+v", msg.Profile)
	}

	result, err = validator.ValidateMessage([]byte(`{"type": "session_start"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	if result.(*SessionStartMessage).Profile != nil {
		t.Error("Expected no profile")
	}

	if _, err := validator.ValidateMessage([]byte(`{"type": "session_start", "profile": {"gender": "other"}}`)); err == nil {
		t.Error("Expected error for invalid gender")
	}
}

func TestMessageValidator_ValidateSessionEnd(t *testing.T) {
	validator := NewMessageValidator()

	result, err := validator.ValidateMessage([]byte(`{"type": "session_end", "message_id": "m-1"}`))
	if err != nil {
		t.Fatalf("ValidateMessage() error = %v", err)
	}
	msg, ok := result.(*SessionEndMessage)
	if !ok {
		t.Fatalf("Expected *SessionEndMessage, got %T", result)
	}
	if msg.MessageID != "m-1" {
		t.Errorf("Expected message id 'm-1', got '%s'", msg.MessageID)
	}
}

func TestCreateErrorMessage(t *testing.T) {
	msg := CreateErrorMessage(ErrorCodeTimeout, "Too slow", "turn timed out")

	if msg.Type != MessageTypeError {
		t.Errorf("Expected type %s, got %s", MessageTypeError, msg.Type)
	}
	if msg.Code != ErrorCodeTimeout {
		t.Errorf("Expected code %s, got %s", ErrorCodeTimeout, msg.Code)
	}
	if msg.Details != "turn timed out" {
		t.Errorf("Expected details 'turn timed out', got '%s'", msg.Details)
	}
	if _, err := time.Parse(time.RFC3339, msg.Timestamp); err != nil {
		t.Errorf("Invalid timestamp format: %v", err)
	}
}

func TestCreateReplyMessage(t *testing.T) {
	result := &domain.ChatResult{
		Reply:        entities.FallbackReply("Hello"),
		SessionID:    "session-1",
		Timestamp:    time.Now(),
		HistoryCount: 3,
		Audio:        make([]byte, 64),
	}

	payload, err := json.Marshal(CreateReplyMessage(result))
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if decoded["type"] != string(MessageTypeReply) {
		t.Errorf("Expected type reply, got %v", decoded["type"])
	}
	if decoded["has_audio"] != true {
		t.Errorf("Expected has_audio true, got %v", decoded["has_audio"])
	}
	if decoded["audio_bytes"] != float64(64) {
		t.Errorf("Expected audio_bytes 64, got %v", decoded["audio_bytes"])
	}
	reply, _ := decoded["reply"].(map[string]interface{})
	if reply["aiResponse"] != "Hello" || reply["expression"] != "NEUTRAL" {
		t.Errorf("Unexpected reply %v", reply)
	}
}

func TestMessageValidator_InvalidJSON(t *testing.T) {
	validator := NewMessageValidator()

	for _, message := range []string{`{"type": "text"`, `not json`, ``} {
		if _, err := validator.ValidateMessage([]byte(message)); err == nil {
			t.Errorf("Expected error for %q", message)
		}
	}
}

func TestMessageValidator_UnsupportedMessageType(t *testing.T) {
	validator := NewMessageValidator()

	for _, message := range []string{`{"type": "device_status"}`, `{"text": "no type"}`} {
		if _, err := validator.ValidateMessage([]byte(message)); err == nil {
			t.Errorf("Expected error for %s", message)
		}
	}
}
