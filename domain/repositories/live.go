package repositories

import "context"

// LiveTransport abstracts a bidirectional streaming connection to a remote
// multimodal model
type LiveTransport interface {
	// Connect opens a session. onFrame is invoked from the transport's own
	// goroutine for every inbound frame, in the order the service emits them.
	Connect(ctx context.Context, config LiveConfig, onFrame FrameHandler) (LiveSession, error)
}

// LiveSession is an open live connection
type LiveSession interface {
	// SendText delivers complete user turns and asks the model to respond
	SendText(ctx context.Context, turns []ChatMessage) error
	// SendAudio streams audio chunks and marks the end of the user's speech
	SendAudio(ctx context.Context, chunks []AudioChunk) error
	// Close tears down the connection
	Close() error
}

// FrameHandler receives inbound frames
type FrameHandler func(Frame)

// LiveConfig configures a live session
type LiveConfig struct {
	Model        string
	Instructions string
	Voice        string
}

// Frame is one unit of streamed output. A frame carries text, audio or
// neither; TurnComplete marks the end of the model's turn.
type Frame struct {
	Text         string         `json:"text,omitempty"`
	Audio        *AudioFragment `json:"audio,omitempty"`
	Transcript   string         `json:"transcript,omitempty"`
	TurnComplete bool           `json:"turn_complete,omitempty"`
	Interrupted  bool           `json:"interrupted,omitempty"`
	// Err is set when the transport failed; no frames follow it.
	Err error `json:"-"`
}

// AudioFragment is base64 encoded PCM tagged with its encoding descriptor,
// e.g. "audio/pcm;rate=24000"
type AudioFragment struct {
	Data     string `json:"data"`
	MIMEType string `json:"mime_type"`
}

// AudioChunk is raw audio sent to the model
type AudioChunk struct {
	MIMEType string
	Data     []byte
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole  Role = "user"
	ModelRole Role = "model"
)
