package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
)

// mockAudioMIMEType matches what the Live API emits for native audio
const mockAudioMIMEType = "audio/pcm;rate=24000"

var (
	_ repositories.LiveTransport = (*MockLive)(nil)
	_ repositories.LiveSession   = (*mockLiveSession)(nil)
)

// MockLive is a local stand-in for the Live API. Every user turn is answered
// with a JSON reply streamed in a few text frames, a short stretch of silence
// as audio and a turn boundary.
type MockLive struct {
	// AudioBytes is the size of the silent PCM reply; zero disables audio
	AudioBytes int
}

// NewMockLive creates a mock transport that replies with 100ms of audio
func NewMockLive() *MockLive {
	return &MockLive{AudioBytes: 4800}
}

// Connect implements repositories.LiveTransport
func (m *MockLive) Connect(ctx context.Context, _ repositories.LiveConfig, onFrame repositories.FrameHandler) (repositories.LiveSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mockLiveSession{onFrame: onFrame, audioBytes: m.AudioBytes}, nil
}

type mockLiveSession struct {
	onFrame    repositories.FrameHandler
	audioBytes int

	mu     sync.Mutex
	closed bool
}

func (s *mockLiveSession) SendText(ctx context.Context, turns []repositories.ChatMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	var said string
	for _, turn := range turns {
		if turn.Role == repositories.UserRole {
			said = turn.Content
		}
	}

	reply := entities.StructuredReply{
		AIResponse:        fmt.Sprintf("Thank you for sharing! I enjoyed hearing %q. What else is on your mind today?", said),
		Expression:        entities.ExpressionHappy,
		QuestionCategory:  "autobiographical memory",
		ConversationTopic: "daily life",
	}
	go s.stream(reply)
	return nil
}

func (s *mockLiveSession) SendAudio(ctx context.Context, chunks []repositories.AudioChunk) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	var total int
	for _, chunk := range chunks {
		total += len(chunk.Data)
	}

	reply := entities.StructuredReply{
		AIResponse:        fmt.Sprintf("I heard about %d bytes of your voice. Could you tell me more?", total),
		Expression:        entities.ExpressionThinking,
		QuestionCategory:  "working memory",
		ConversationTopic: "conversation",
	}
	go s.stream(reply)
	return nil
}

func (s *mockLiveSession) stream(reply entities.StructuredReply) {
	payload, _ := json.Marshal(reply)
	text := string(payload)

	half := len(text) / 2
	for _, chunk := range []string{text[:half], text[half:]} {
		if s.isClosed() {
			return
		}
		s.onFrame(repositories.Frame{Text: chunk})
	}

	if s.audioBytes > 0 && !s.isClosed() {
		s.onFrame(repositories.Frame{Audio: &repositories.AudioFragment{
			Data:     base64.StdEncoding.EncodeToString(make([]byte, s.audioBytes)),
			MIMEType: mockAudioMIMEType,
		}})
	}

	if !s.isClosed() {
		s.onFrame(repositories.Frame{TurnComplete: true})
	}
}

func (s *mockLiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *mockLiveSession) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return fmt.Errorf("mock live session closed")
	}
	return nil
}

func (s *mockLiveSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
