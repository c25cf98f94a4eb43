package usecase

import "errors"

var (
	// ErrEmptyMessage is returned when a text or audio message carries nothing to send
	ErrEmptyMessage = errors.New("message is empty")
	// ErrInvalidAudio is returned when an audio upload cannot be decoded
	ErrInvalidAudio = errors.New("invalid audio data")
	// ErrInvalidProfile is returned when a session profile fails validation
	ErrInvalidProfile = errors.New("invalid user profile")
	// ErrChatNotFound is returned when a chat record does not exist for the user
	ErrChatNotFound = errors.New("chat not found")
)
