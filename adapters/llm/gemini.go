package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/ami/domain/repositories"
)

const (
	defaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice = "Kore"
)

var (
	_ repositories.LiveTransport = (*GeminiLive)(nil)
	_ repositories.LiveSession   = (*geminiLiveSession)(nil)
)

// GeminiConfig holds the settings of the Gemini Live transports
type GeminiConfig struct {
	APIKey string
	Model  string
	Voice  string
}

func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Voice == "" {
		c.Voice = defaultVoice
	}
	return c
}

// GeminiLive implements repositories.LiveTransport on top of the genai SDK
type GeminiLive struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

// NewGeminiLive creates a Gemini Live transport
func NewGeminiLive(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLive, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLive{
		client: client,
		config: config.withDefaults(),
		logger: logger,
	}, nil
}

// Connect opens a Live API session. Audio is always requested; the reply text
// arrives either as text parts or as output transcription.
func (g *GeminiLive) Connect(ctx context.Context, config repositories.LiveConfig, onFrame repositories.FrameHandler) (repositories.LiveSession, error) {
	model := firstNonEmpty(config.Model, g.config.Model)
	voice := firstNonEmpty(config.Voice, g.config.Voice)

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		MediaResolution:    genai.MediaResolutionMedium,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if config.Instructions != "" {
		connectConfig.SystemInstruction = genai.NewContentFromText(config.Instructions, genai.RoleUser)
	}

	conn, err := g.client.Live.Connect(ctx, model, connectConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}

	session := &geminiLiveSession{
		conn:    conn,
		onFrame: onFrame,
		logger:  g.logger.With(zap.String("model", model)),
	}
	go session.receiveLoop()

	g.logger.Debug("Gemini live session opened", zap.String("model", model), zap.String("voice", voice))
	return session, nil
}

type geminiLiveSession struct {
	conn    *genai.Session
	onFrame repositories.FrameHandler
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (s *geminiLiveSession) receiveLoop() {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			if s.isClosed() {
				return
			}
			s.onFrame(repositories.Frame{Err: fmt.Errorf("gemini live receive: %w", err)})
			return
		}

		for _, frame := range framesFromServerMessage(msg) {
			s.onFrame(frame)
		}
	}
}

// SendText delivers complete turns and asks the model to respond
func (s *geminiLiveSession) SendText(ctx context.Context, turns []repositories.ChatMessage) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, genai.NewContentFromText(turn.Content, genaiRole(turn.Role)))
	}

	return s.conn.SendClientContent(genai.LiveClientContentInput{
		Turns:        contents,
		TurnComplete: genai.Ptr(true),
	})
}

// SendAudio streams the chunks as realtime input and closes the audio stream
func (s *geminiLiveSession) SendAudio(ctx context.Context, chunks []repositories.AudioChunk) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	for _, chunk := range chunks {
		if len(chunk.Data) == 0 {
			continue
		}
		err := s.conn.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{MIMEType: chunk.MIMEType, Data: chunk.Data},
		})
		if err != nil {
			return fmt.Errorf("gemini live send audio: %w", err)
		}
	}

	return s.conn.SendRealtimeInput(genai.LiveRealtimeInput{AudioStreamEnd: true})
}

// Close is idempotent
func (s *geminiLiveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close()
}

func (s *geminiLiveSession) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return fmt.Errorf("gemini live session closed")
	}
	return nil
}

func (s *geminiLiveSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// framesFromServerMessage flattens one server message into frames. The turn
// boundary, if any, is always the last frame.
func framesFromServerMessage(msg *genai.LiveServerMessage) []repositories.Frame {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	content := msg.ServerContent

	var frames []repositories.Frame
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				frames = append(frames, repositories.Frame{Text: part.Text})
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				frames = append(frames, repositories.Frame{Audio: &repositories.AudioFragment{
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
					MIMEType: part.InlineData.MIMEType,
				}})
			}
		}
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		frames = append(frames, repositories.Frame{Transcript: content.OutputTranscription.Text})
	}
	if content.TurnComplete || content.Interrupted {
		frames = append(frames, repositories.Frame{
			TurnComplete: content.TurnComplete,
			Interrupted:  content.Interrupted,
		})
	}
	return frames
}

func genaiRole(role repositories.Role) genai.Role {
	if role == repositories.ModelRole {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
