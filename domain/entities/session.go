package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionState represents the lifecycle state of a live session
type SessionState string

const (
	SessionStateDisconnected SessionState = "disconnected"
	SessionStateConnecting   SessionState = "connecting"
	SessionStateConnected    SessionState = "connected"
)

// LiveSession describes one live conversation with the remote model
type LiveSession struct {
	ID           string       `json:"session_id"`
	UserID       string       `json:"user_id"`
	State        SessionState `json:"state"`
	StartedAt    time.Time    `json:"started_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
	Turns        int          `json:"turns"`
}

// NewLiveSession creates a connecting session for a user
func NewLiveSession(userID string) *LiveSession {
	now := time.Now()
	return &LiveSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		State:        SessionStateConnecting,
		StartedAt:    now,
		LastActiveAt: now,
	}
}

// Touch records activity on the session
func (s *LiveSession) Touch() {
	s.LastActiveAt = time.Now()
}

// CompleteTurn counts a finished turn and records activity
func (s *LiveSession) CompleteTurn() {
	s.Turns++
	s.Touch()
}

// IsIdle reports whether the session has seen no activity for longer than ttl
func (s *LiveSession) IsIdle(ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return time.Since(s.LastActiveAt) > ttl
}

// IsConnected reports whether the session can carry a turn
func (s *LiveSession) IsConnected() bool {
	return s.State == SessionStateConnected
}

// Validate validates the session data
func (s *LiveSession) Validate() error {
	if s.ID == "" {
		return errors.New("session ID is required")
	}
	if s.UserID == "" {
		return errors.New("user_id is required")
	}

	switch s.State {
	case SessionStateDisconnected, SessionStateConnecting, SessionStateConnected:
	default:
		return errors.New("invalid session state")
	}

	return nil
}
