// Package live manages a streaming conversation with a remote multimodal
// model: it owns the session handle, turns the asynchronous frame stream into
// complete turns and exposes a request/response style API on top.
package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/domain/repositories"
)

const defaultTurnTimeout = 30 * time.Second

// Config tunes a Conversation
type Config struct {
	Model string
	Voice string
	// TurnTimeout bounds the wait for the model's turn boundary.
	// Zero applies the default; negative disables the bound. A timed out
	// turn tears the session down, since its late frames would otherwise
	// complete the next turn.
	TurnTimeout time.Duration
	// OnConnectionChange, if set, observes transitions into and out of the
	// connected state. It runs with internal locks held and must not call
	// back into the conversation.
	OnConnectionChange func(connected bool)
}

// Conversation owns one live session for one user. Only the conversation
// mutates the session handle; a single turn is in flight at a time.
type Conversation struct {
	userID    string
	transport repositories.LiveTransport
	config    Config
	logger    *zap.Logger

	mu        sync.Mutex
	state     entities.SessionState
	session   repositories.LiveSession
	queue     *FrameQueue
	assembler *TurnAssembler
	info      *entities.LiveSession

	turnMu sync.Mutex
}

// NewConversation creates a disconnected conversation
func NewConversation(userID string, transport repositories.LiveTransport, config Config, logger *zap.Logger) *Conversation {
	if config.TurnTimeout == 0 {
		config.TurnTimeout = defaultTurnTimeout
	}
	return &Conversation{
		userID:    userID,
		transport: transport,
		config:    config,
		logger:    logger.With(zap.String("userID", userID)),
		state:     entities.SessionStateDisconnected,
	}
}

// UserID returns the owner of the conversation
func (c *Conversation) UserID() string {
	return c.userID
}

// State returns the lifecycle state
func (c *Conversation) State() entities.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the current session, nil when disconnected
func (c *Conversation) Session() *entities.LiveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return nil
	}
	snapshot := *c.info
	return &snapshot
}

// Connect opens the live session. Calling it while connected reuses the
// existing session.
func (c *Conversation) Connect(ctx context.Context, profile *entities.UserProfile) (*entities.LiveSession, error) {
	c.mu.Lock()
	switch c.state {
	case entities.SessionStateConnected:
		snapshot := *c.info
		c.mu.Unlock()
		c.logger.Warn("Live session already connected, reusing it",
			zap.String("sessionID", snapshot.ID))
		return &snapshot, nil
	case entities.SessionStateConnecting:
		c.mu.Unlock()
		return nil, ErrSessionBusy
	}

	info := entities.NewLiveSession(c.userID)
	queue := NewFrameQueue()
	c.state = entities.SessionStateConnecting
	c.info = info
	c.queue = queue
	c.mu.Unlock()

	config := repositories.LiveConfig{
		Model:        c.config.Model,
		Voice:        c.config.Voice,
		Instructions: BuildInstructions(profile),
	}
	session, err := c.transport.Connect(ctx, config, queue.Push)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue != queue {
		// Disconnected while the transport was dialing.
		if session != nil {
			c.closeSession(session)
		}
		return nil, ErrSessionUnavailable
	}
	if err != nil || session == nil {
		if err == nil {
			err = fmt.Errorf("transport returned no session")
		}
		c.resetLocked()
		queue.Close()
		c.logger.Error("Failed to connect live session", zap.Error(err))
		return nil, &TransportError{Op: "connect", Err: err}
	}

	info.State = entities.SessionStateConnected
	info.Touch()
	c.state = entities.SessionStateConnected
	c.session = session
	c.assembler = NewTurnAssembler(queue, c.aliveFunc(queue), c.logger)
	c.notify(true)

	c.logger.Info("Live session connected",
		zap.String("sessionID", info.ID),
		zap.String("model", c.config.Model))

	snapshot := *info
	return &snapshot, nil
}

// Reset clears the per-turn accumulators and any buffered frames without
// tearing down the transport.
func (c *Conversation) Reset() {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.Lock()
	queue, assembler := c.queue, c.assembler
	c.mu.Unlock()

	if queue != nil {
		queue.Drain()
	}
	if assembler != nil {
		assembler.Reset()
	}
}

// Disconnect closes the transport best-effort and always clears the session.
// An in-flight turn is abandoned with ErrSessionUnavailable.
func (c *Conversation) Disconnect() {
	assembler := c.teardown(nil)

	c.turnMu.Lock()
	if assembler != nil {
		assembler.Reset()
	}
	c.turnMu.Unlock()
}

// teardown clears the session and closes queue and transport. When only is
// non-nil, nothing happens unless it is still the active queue. It returns the
// assembler of the torn down session so the caller can reset it under turnMu.
func (c *Conversation) teardown(only *FrameQueue) *TurnAssembler {
	c.mu.Lock()
	if only != nil && c.queue != only {
		c.mu.Unlock()
		return nil
	}
	session, queue, assembler := c.session, c.queue, c.assembler
	wasActive := c.state != entities.SessionStateDisconnected
	wasConnected := c.state == entities.SessionStateConnected
	var sessionID string
	if c.info != nil {
		sessionID = c.info.ID
	}
	c.resetLocked()
	if wasConnected {
		c.notify(false)
	}
	c.mu.Unlock()

	if queue != nil {
		queue.Close()
	}
	if session != nil {
		c.closeSession(session)
	}

	if wasActive {
		c.logger.Info("Live session disconnected", zap.String("sessionID", sessionID))
	}
	return assembler
}

// SendText sends a user text turn and waits for the model's complete reply
func (c *Conversation) SendText(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	return c.exchange(ctx, "send_text", func(session repositories.LiveSession) error {
		return session.SendText(ctx, []repositories.ChatMessage{
			{Role: repositories.UserRole, Content: text},
		})
	})
}

// SendAudio sends raw PCM speech and waits for the model's complete reply
func (c *Conversation) SendAudio(ctx context.Context, pcm []byte, mimeType string) (*Turn, error) {
	return c.exchange(ctx, "send_audio", func(session repositories.LiveSession) error {
		return session.SendAudio(ctx, []repositories.AudioChunk{
			{MIMEType: mimeType, Data: pcm},
		})
	})
}

func (c *Conversation) exchange(ctx context.Context, op string, send func(repositories.LiveSession) error) (*Turn, error) {
	c.turnMu.Lock()
	defer c.turnMu.Unlock()

	c.mu.Lock()
	if c.state != entities.SessionStateConnected || c.session == nil {
		c.mu.Unlock()
		return nil, ErrSessionUnavailable
	}
	session, queue, assembler := c.session, c.queue, c.assembler
	c.info.Touch()
	c.mu.Unlock()

	if stale := queue.Drain(); stale > 0 {
		c.logger.Debug("Dropped stale frames before turn", zap.Int("frames", stale))
	}

	if err := send(session); err != nil {
		c.logger.Error("Failed to send to live session", zap.String("op", op), zap.Error(err))
		c.teardown(queue)
		assembler.Reset()
		return nil, &TransportError{Op: op, Err: err}
	}

	start := time.Now()
	turn, err := assembler.Assemble(ctx, c.config.TurnTimeout)
	if err != nil {
		switch {
		case IsTransportError(err):
			c.logger.Error("Live transport failed during turn", zap.Error(err))
			c.teardown(queue)
			assembler.Reset()
		case errors.Is(err, ErrTurnTimeout):
			c.logger.Warn("Live turn timed out, closing session", zap.Duration("timeout", c.config.TurnTimeout))
			c.teardown(queue)
			assembler.Reset()
		}
		return nil, err
	}

	c.mu.Lock()
	if c.info != nil && c.queue == queue {
		c.info.CompleteTurn()
	}
	c.mu.Unlock()

	c.logger.Info("Live turn completed",
		zap.String("op", op),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("audio", turn.HasAudio()))

	return turn, nil
}

func (c *Conversation) aliveFunc(queue *FrameQueue) func() bool {
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state == entities.SessionStateConnected && c.queue == queue
	}
}

func (c *Conversation) notify(connected bool) {
	if c.config.OnConnectionChange != nil {
		c.config.OnConnectionChange(connected)
	}
}

// resetLocked requires c.mu
func (c *Conversation) resetLocked() {
	c.state = entities.SessionStateDisconnected
	c.session = nil
	c.queue = nil
	c.assembler = nil
	c.info = nil
}

func (c *Conversation) closeSession(session repositories.LiveSession) {
	if err := session.Close(); err != nil {
		c.logger.Warn("Failed to close live session cleanly", zap.Error(err))
	}
}
