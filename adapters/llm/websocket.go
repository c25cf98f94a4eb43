package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain/repositories"
)

const (
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	bidiPath       = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	setupTimeout      = 10 * time.Second
	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// model audio frames routinely exceed the library's 32KiB default
	readLimit = 8 << 20
)

var (
	_ repositories.LiveTransport = (*WebSocketLive)(nil)
	_ repositories.LiveSession   = (*webSocketLiveSession)(nil)
)

// WebSocketOption configures a WebSocketLive
type WebSocketOption func(*WebSocketLive)

// WithBaseURL points the transport at a proxy or test server
func WithBaseURL(baseURL string) WebSocketOption {
	return func(w *WebSocketLive) { w.baseURL = strings.TrimRight(baseURL, "/") }
}

// WebSocketLive speaks the BidiGenerateContent protocol directly over a
// websocket. It is the transport of choice behind proxies that only expose the
// raw endpoint.
type WebSocketLive struct {
	config  GeminiConfig
	baseURL string
	logger  *zap.Logger
}

// NewWebSocketLive creates a raw websocket Live transport
func NewWebSocketLive(config GeminiConfig, logger *zap.Logger, opts ...WebSocketOption) *WebSocketLive {
	w := &WebSocketLive{
		config:  config.withDefaults(),
		baseURL: defaultBaseURL,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Connect dials, sends setup and waits for setupComplete before returning
func (w *WebSocketLive) Connect(ctx context.Context, config repositories.LiveConfig, onFrame repositories.FrameHandler) (repositories.LiveSession, error) {
	model := firstNonEmpty(config.Model, w.config.Model)
	voice := firstNonEmpty(config.Voice, w.config.Voice)

	endpoint := w.baseURL + bidiPath
	if w.config.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(w.config.APIKey)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini websocket dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	sessCtx, cancel := context.WithCancel(context.Background())
	session := &webSocketLiveSession{
		conn:    conn,
		onFrame: onFrame,
		logger:  w.logger.With(zap.String("model", model)),
		ctx:     sessCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	if err := session.handshake(ctx, model, voice, config.Instructions); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, err
	}

	go session.receiveLoop()
	go session.keepaliveLoop()

	w.logger.Debug("Gemini websocket session opened", zap.String("model", model))
	return session, nil
}

type webSocketLiveSession struct {
	conn    *websocket.Conn
	onFrame repositories.FrameHandler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func (s *webSocketLiveSession) handshake(ctx context.Context, model, voice, instructions string) error {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := setupMessage{Setup: setupConfig{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			MediaResolution:    "MEDIA_RESOLUTION_MEDIUM",
		},
		OutputAudioTranscription: &struct{}{},
	}}
	if voice != "" {
		setup.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if instructions != "" {
		setup.Setup.SystemInstruction = &contentTurn{Parts: []part{{Text: instructions}}}
	}

	if err := s.writeJSON(ctx, setup); err != nil {
		return fmt.Errorf("gemini websocket setup: %w", err)
	}

	readCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	_, data, err := s.conn.Read(readCtx)
	if err != nil {
		return fmt.Errorf("gemini websocket setup: %w", err)
	}

	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("gemini websocket setup: decode response: %w", err)
	}
	if msg.Error != nil {
		return fmt.Errorf("gemini websocket setup: %s", msg.Error.Message)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("gemini websocket setup: expected setupComplete")
	}
	return nil
}

func (s *webSocketLiveSession) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.onFrame(repositories.Frame{Err: fmt.Errorf("gemini websocket receive: %w", err)})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Skipping malformed server message", zap.Error(err))
			continue
		}

		if msg.Error != nil {
			s.onFrame(repositories.Frame{Err: fmt.Errorf("gemini websocket: %d %s", msg.Error.Code, msg.Error.Message)})
			return
		}
		if msg.GoAway != nil {
			s.logger.Warn("Server announced disconnect")
		}

		for _, frame := range framesFromServerContent(msg.ServerContent) {
			s.onFrame(frame)
		}
	}
}

func (s *webSocketLiveSession) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			if err := s.conn.Ping(pingCtx); err != nil {
				s.logger.Debug("Keepalive ping failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// SendText sends the turns as clientContent with turnComplete set
func (s *webSocketLiveSession) SendText(ctx context.Context, turns []repositories.ChatMessage) error {
	if s.isClosed() {
		return fmt.Errorf("gemini websocket session closed")
	}

	msg := clientContentMessage{ClientContent: clientContent{TurnComplete: true}}
	for _, turn := range turns {
		role := "user"
		if turn.Role == repositories.ModelRole {
			role = "model"
		}
		msg.ClientContent.Turns = append(msg.ClientContent.Turns, contentTurn{
			Role:  role,
			Parts: []part{{Text: turn.Content}},
		})
	}
	return s.writeJSON(ctx, msg)
}

// SendAudio sends the chunks as realtime media followed by audioStreamEnd
func (s *webSocketLiveSession) SendAudio(ctx context.Context, chunks []repositories.AudioChunk) error {
	if s.isClosed() {
		return fmt.Errorf("gemini websocket session closed")
	}

	for _, chunk := range chunks {
		if len(chunk.Data) == 0 {
			continue
		}
		msg := realtimeInputMessage{RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{{
				MIMEType: chunk.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(chunk.Data),
			}},
		}}
		if err := s.writeJSON(ctx, msg); err != nil {
			return err
		}
	}

	return s.writeJSON(ctx, realtimeInputMessage{RealtimeInput: realtimeInput{AudioStreamEnd: true}})
}

// Close is idempotent
func (s *webSocketLiveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	close(s.done)
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

func (s *webSocketLiveSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *webSocketLiveSession) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini websocket marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// framesFromServerContent mirrors framesFromServerMessage for the raw wire
// types. Inline audio is already base64 and passes through untouched.
func framesFromServerContent(content *serverContent) []repositories.Frame {
	if content == nil {
		return nil
	}

	var frames []repositories.Frame
	if content.ModelTurn != nil {
		for _, p := range content.ModelTurn.Parts {
			if p.Thought {
				continue
			}
			if p.Text != "" {
				frames = append(frames, repositories.Frame{Text: p.Text})
			}
			if p.InlineData != nil && p.InlineData.Data != "" {
				frames = append(frames, repositories.Frame{Audio: &repositories.AudioFragment{
					Data:     p.InlineData.Data,
					MIMEType: p.InlineData.MIMEType,
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
