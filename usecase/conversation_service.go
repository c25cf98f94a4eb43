package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
	"github.com/satriahrh/ami/internal/live"
	"github.com/satriahrh/ami/internal/observe"
)

// ConversationService keeps one live conversation per user
type ConversationService struct {
	transport repositories.LiveTransport
	config    live.Config
	metrics   *observe.Metrics
	logger    *zap.Logger

	mu            sync.Mutex
	conversations map[string]*entry
}

type entry struct {
	conv    *live.Conversation
	touched time.Time
}

// NewConversationService creates a registry whose conversations dial through transport
func NewConversationService(
	transport repositories.LiveTransport,
	config live.Config,
	metrics *observe.Metrics,
	logger *zap.Logger,
) *ConversationService {
	if metrics == nil {
		metrics = observe.NopMetrics()
	}
	config.OnConnectionChange = func(connected bool) {
		if connected {
			metrics.SessionOpened(context.Background())
		} else {
			metrics.SessionClosed(context.Background())
		}
	}
	return &ConversationService{
		transport:     transport,
		config:        config,
		metrics:       metrics,
		logger:        logger,
		conversations: make(map[string]*entry),
	}
}

// Get returns the user's conversation, creating a disconnected one on first use
func (s *ConversationService) Get(userID string) *live.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.conversations[userID]
	if !ok {
		e = &entry{conv: live.NewConversation(userID, s.transport, s.config, s.logger)}
		s.conversations[userID] = e
	}
	e.touched = time.Now()
	return e.conv
}

// Lookup returns the user's conversation without creating one
func (s *ConversationService) Lookup(userID string) (*live.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.conversations[userID]
	if !ok {
		return nil, false
	}
	return e.conv, true
}

// End disconnects the user's conversation. It is a no-op when there is none.
func (s *ConversationService) End(userID string) {
	conv, ok := s.Lookup(userID)
	if !ok {
		return
	}
	conv.Disconnect()
}

// ReapIdle disconnects every session idle for longer than ttl and returns how
// many were closed. Disconnected conversations not handed out within ttl are
// dropped from the registry.
func (s *ConversationService) ReapIdle(ttl time.Duration) int {
	reaped := 0
	for _, conv := range s.snapshot() {
		info := conv.Session()
		if info == nil || !info.IsConnected() || !info.IsIdle(ttl) {
			continue
		}
		s.logger.Info("Disconnecting idle live session",
			zap.String("userID", conv.UserID()),
			zap.String("sessionID", info.ID),
			zap.Time("lastActiveAt", info.LastActiveAt))
		conv.Disconnect()
		reaped++
	}
	s.prune(ttl)
	return reaped
}

func (s *ConversationService) prune(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, e := range s.conversations {
		if e.conv.State() == entities.SessionStateDisconnected && time.Since(e.touched) > ttl {
			delete(s.conversations, userID)
		}
	}
}

// Active counts connected conversations
func (s *ConversationService) Active() int {
	active := 0
	for _, conv := range s.snapshot() {
		if info := conv.Session(); info != nil && info.IsConnected() {
			active++
		}
	}
	return active
}

// Close disconnects every conversation
func (s *ConversationService) Close() {
	for _, conv := range s.snapshot() {
		conv.Disconnect()
	}
}

func (s *ConversationService) snapshot() []*live.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	convs := make([]*live.Conversation, 0, len(s.conversations))
	for _, e := range s.conversations {
		convs = append(convs, e.conv)
	}
	return convs
}
