package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
	"github.com/satriahrh/ami/internal/audio"
	"github.com/satriahrh/ami/internal/live"
	"github.com/satriahrh/ami/internal/observe"
)

const (
	// inputSampleRate is what the live model expects for raw PCM uploads
	inputSampleRate = 16000

	audioMessagePlaceholder = "User audio message"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 100

	persistTimeout = 5 * time.Second
)

// ChatService is the caller-facing API over the live conversations
type ChatService struct {
	conversations *ConversationService
	chats         repositories.ChatRepository
	profiles      repositories.ProfileRepository
	speechToText  repositories.SpeechToText
	language      string
	audioDir      string
	metrics       *observe.Metrics
	logger        *zap.Logger
}

// ChatOption configures optional collaborators of a ChatService
type ChatOption func(*ChatService)

// WithProfiles resolves a stored profile when a session starts without one
func WithProfiles(profiles repositories.ProfileRepository) ChatOption {
	return func(s *ChatService) { s.profiles = profiles }
}

// WithSpeechToText transcribes audio messages so the stored turn carries the user's words
func WithSpeechToText(stt repositories.SpeechToText, language string) ChatOption {
	return func(s *ChatService) {
		s.speechToText = stt
		s.language = language
	}
}

// WithAudioDir writes every reply's WAV under dir
func WithAudioDir(dir string) ChatOption {
	return func(s *ChatService) { s.audioDir = dir }
}

// WithMetrics records turn outcomes
func WithMetrics(metrics *observe.Metrics) ChatOption {
	return func(s *ChatService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// NewChatService creates a new chat service
func NewChatService(
	conversations *ConversationService,
	chats repositories.ChatRepository,
	logger *zap.Logger,
	opts ...ChatOption,
) *ChatService {
	s := &ChatService{
		conversations: conversations,
		chats:         chats,
		language:      "en-US",
		metrics:       observe.NopMetrics(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession connects the user's live session. A nil profile falls back to
// the stored one. Starting an already connected session reuses it.
func (s *ChatService) StartSession(ctx context.Context, userID string, profile *entities.UserProfile) (*entities.LiveSession, error) {
	if profile != nil {
		if err := profile.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	} else {
		profile = s.storedProfile(ctx, userID)
	}

	session, err := s.conversations.Get(userID).Connect(ctx, profile)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// EndSession disconnects the user's live session; ending twice is harmless
func (s *ChatService) EndSession(ctx context.Context, userID string) error {
	s.conversations.End(userID)
	return nil
}

// SendTextMessage sends one text turn, connecting first if needed
func (s *ChatService) SendTextMessage(ctx context.Context, userID, text string) (*domain.ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.connected(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	turn, err := conv.SendText(ctx, text)
	s.metrics.RecordTurn(ctx, "text", outcomeOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, conv, text, turn), nil
}

// SendAudioMessage sends one spoken turn. The payload is base64 of either a
// WAV file or raw 16-bit PCM at 16kHz.
func (s *ChatService) SendAudioMessage(ctx context.Context, userID, audioBase64 string) (*domain.ChatResult, error) {
	audioBase64 = strings.TrimSpace(audioBase64)
	if audioBase64 == "" {
		return nil, ErrEmptyMessage
	}

	pcm, format, err := decodeUpload(audioBase64)
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyMessage
	}

	conv, err := s.connected(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	turn, err := conv.SendAudio(ctx, pcm, format.MIMEType())
	s.metrics.RecordTurn(ctx, "audio", outcomeOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, conv, s.transcribe(ctx, pcm, format), turn), nil
}

// History returns one page of the user's stored turns, newest first
func (s *ChatService) History(ctx context.Context, userID string, page, limit int) (*domain.ChatHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, total, err := s.chats.ListByUser(ctx, userID, repositories.ListOptions{Page: page, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list chat history: %w", err)
	}

	return &domain.ChatHistoryPage{
		Records: records,
		Page:    page,
		Limit:   limit,
		Total:   total,
	}, nil
}

// DeleteChat removes one of the user's stored turns
func (s *ChatService) DeleteChat(ctx context.Context, userID, chatID string) error {
	err := s.chats.Delete(ctx, userID, chatID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// connected returns the user's conversation, opening the session on first use
func (s *ChatService) connected(ctx context.Context, userID string) (*live.Conversation, error) {
	conv := s.conversations.Get(userID)
	if conv.State() == entities.SessionStateConnected {
		return conv, nil
	}

	s.logger.Info("No live session, connecting", zap.String("userID", userID))
	if _, err := conv.Connect(ctx, s.storedProfile(ctx, userID)); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ChatService) storedProfile(ctx context.Context, userID string) *entities.UserProfile {
	if s.profiles == nil {
		return nil
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to load user profile, using default prompt",
			zap.String("userID", userID), zap.Error(err))
		return nil
	}
	return profile
}

// complete persists the turn and builds the caller's result. Neither a reply
// that fell back to plain text nor a failed save fails the turn.
func (s *ChatService) complete(ctx context.Context, conv *live.Conversation, userMessage string, turn *live.Turn) *domain.ChatResult {
	result := &domain.ChatResult{
		Reply:     turn.Reply,
		Timestamp: time.Now(),
	}
	if info := conv.Session(); info != nil {
		result.SessionID = info.ID
		result.HistoryCount = info.Turns
	}
	if turn.HasAudio() {
		result.Audio = turn.Audio.Bytes()
	}

	if turn.ParseFallback {
		s.metrics.RecordParseFallback(ctx)
		s.logger.Warn("Model reply was not structured, using raw text",
			zap.String("userID", conv.UserID()),
			zap.Int("textLength", len(turn.Text)))
	}

	s.persist(ctx, conv.UserID(), result, userMessage)
	s.writeAudio(result)
	return result
}

func (s *ChatService) persist(ctx context.Context, userID string, result *domain.ChatResult, userMessage string) {
	record := entities.NewChatRecord(userID, result.SessionID, userMessage, result.Reply)
	record.AudioBytes = len(result.Audio)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.chats.Save(ctx, record); err != nil {
		s.metrics.RecordPersistenceFailure(ctx)
		s.logger.Error("Failed to save chat record",
			zap.String("userID", userID),
			zap.String("sessionID", result.SessionID),
			zap.Error(err))
	}
}

func (s *ChatService) writeAudio(result *domain.ChatResult) {
	if s.audioDir == "" || !result.HasAudio() {
		return
	}
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		s.logger.Warn("Failed to create audio directory", zap.String("dir", s.audioDir), zap.Error(err))
		return
	}
	name := filepath.Join(s.audioDir, fmt.Sprintf("%s-%d.wav", result.SessionID, result.HistoryCount))
	if err := os.WriteFile(name, result.Audio, 0o644); err != nil {
		s.logger.Warn("Failed to write reply audio", zap.String("file", name), zap.Error(err))
		return
	}
	s.logger.Debug("Reply audio written", zap.String("file", name), zap.Int("bytes", len(result.Audio)))
}

func (s *ChatService) transcribe(ctx context.Context, pcm []byte, format audio.Format) string {
	if s.speechToText == nil {
		return audioMessagePlaceholder
	}
	text, err := s.speechToText.TranscribeAudio(ctx, pcm, repositories.AudioConfig{
		SampleRate: format.SampleRate,
		Encoding:   "LINEAR16",
		Language:   s.language,
	})
	if err != nil {
		s.logger.Warn("Transcription failed, storing placeholder", zap.Error(err))
		return audioMessagePlaceholder
	}
	if text = strings.TrimSpace(text); text == "" {
		return audioMessagePlaceholder
	}
	return text
}

// decodeUpload unwraps a WAV upload; anything else is taken as raw PCM
func decodeUpload(audioBase64 string) ([]byte, audio.Format, error) {
	raw, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}

	if audio.IsWAV(raw) {
		format, pcm, err := audio.DecodeWAV(raw)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		return pcm, format, nil
	}

	format := audio.DefaultFormat()
	format.SampleRate = inputSampleRate
	return raw, format, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observe.OutcomeOK
	case errors.Is(err, live.ErrTurnTimeout):
		return observe.OutcomeTimeout
	case errors.Is(err, live.ErrSessionUnavailable):
		return observe.OutcomeUnavailable
	case live.IsTransportError(err):
		return observe.OutcomeTransport
	default:
		return observe.OutcomeError
	}
}
