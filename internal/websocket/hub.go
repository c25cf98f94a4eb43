package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/internal/live"
	"github.com/satriahrh/ami/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Whole utterances arrive in one message.
	maxMessageSize = 8 << 20

	// Chat requests queued per client before new ones are rejected as busy.
	maxPendingRequests = 4
)

var upgrader = websocket.Upgrader{
	// Clients are native apps holding a bearer token, not browsers.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ChatService is the conversation API a socket drives
type ChatService interface {
	SendTextMessage(ctx context.Context, userID, text string) (*domain.ChatResult, error)
	SendAudioMessage(ctx context.Context, userID, audioBase64 string) (*domain.ChatResult, error)
	StartSession(ctx context.Context, userID string, profile *entities.UserProfile) (*entities.LiveSession, error)
	EndSession(ctx context.Context, userID string) error
}

// Hub tracks the connected sockets, one per user
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	chat      ChatService
	validator *MessageValidator
	logger    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(chat ChatService, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       chat,
		validator:  NewMessageValidator(),
		logger:     logger,
	}
}

// Run serves registrations until ctx is done, then closes every client.
// It must be called exactly once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.userID]; ok && old != client {
				old.closeSend()
				h.logger.Info("Replacing existing connection", zap.String("userID", client.userID))
			}
			h.clients[client.userID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()
			client.closeSend()
			h.logger.Info("Client unregistered", zap.String("userID", client.userID))

		case <-ctx.Done():
			h.mu.Lock()
			for userID, client := range h.clients {
				client.closeSend()
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Connected reports whether the user has an open socket
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Count returns the number of open sockets
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	logger *zap.Logger

	// Buffered channel of outbound messages.
	send chan WriteData

	// Chat requests, run in order by a single worker.
	requests chan func(context.Context)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// HandleWebSocket upgrades an authenticated request. The live session
// outlives the socket; idle sessions are reaped separately.
func HandleWebSocket(hub *Hub, c echo.Context, userID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		logger:   hub.logger.With(zap.String("userID", userID)),
		send:     make(chan WriteData, 256),
		requests: make(chan func(context.Context), maxPendingRequests),
		ctx:      ctx,
		cancel:   cancel,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		cancel()
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.work()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		close(c.requests)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
			c.closeSend()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			// A binary message is one whole utterance.
			audioBase64 := base64.StdEncoding.EncodeToString(message)
			c.submit(func(ctx context.Context) {
				c.deliver(c.hub.chat.SendAudioMessage(ctx, c.userID, audioBase64))
			})
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// work runs chat requests one at a time so replies keep request order
func (c *Client) work() {
	for request := range c.requests {
		request(c.ctx)
	}
}

// processMessage routes one JSON message from the peer
func (c *Client) processMessage(message []byte) {
	validated, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected message", zap.Error(err))
		c.sendJSON(CreateErrorMessage(ErrorCodeInvalidMessage, "Invalid message", err.Error()))
		return
	}

	switch msg := validated.(type) {
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))

	case *TextMessage:
		c.submit(func(ctx context.Context) {
			c.deliver(c.hub.chat.SendTextMessage(ctx, c.userID, msg.Text))
		})

	case *AudioMessage:
		c.submit(func(ctx context.Context) {
			c.deliver(c.hub.chat.SendAudioMessage(ctx, c.userID, msg.AudioData))
		})

	case *SessionStartMessage:
		c.submit(func(ctx context.Context) {
			session, err := c.hub.chat.StartSession(ctx, c.userID, msg.Profile)
			if err != nil {
				c.sendError(err)
				return
			}
			c.sendJSON(CreateSessionMessage(MessageTypeSessionStarted, session))
		})

	case *SessionEndMessage:
		c.submit(func(ctx context.Context) {
			if err := c.hub.chat.EndSession(ctx, c.userID); err != nil {
				c.sendError(err)
				return
			}
			c.sendJSON(CreateSessionMessage(MessageTypeSessionEnded, nil))
		})
	}
}

func (c *Client) submit(request func(context.Context)) {
	select {
	case c.requests <- request:
	default:
		c.sendJSON(CreateErrorMessage(ErrorCodeBusy, "Too many pending requests", ""))
	}
}

// deliver sends the reply as JSON followed by its WAV as a binary message
func (c *Client) deliver(result *domain.ChatResult, err error) {
	if err != nil {
		c.sendError(err)
		return
	}

	c.sendJSON(CreateReplyMessage(result))
	if result.HasAudio() {
		c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: result.Audio})
	}
}

func (c *Client) sendError(err error) {
	if errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
		return
	}
	code, message := errorCode(err)
	if code == ErrorCodeInternal {
		c.logger.Error("Chat request failed", zap.Error(err))
		c.sendJSON(CreateErrorMessage(code, message, ""))
		return
	}
	c.sendJSON(CreateErrorMessage(code, message, err.Error()))
}

func (c *Client) sendJSON(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) enqueue(data WriteData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Send buffer full, dropping message", zap.Int("bytes", len(data.Payload)))
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		return ErrorCodeEmptyMessage, "Message is empty"
	case errors.Is(err, usecase.ErrInvalidAudio):
		return ErrorCodeInvalidAudio, "Audio could not be decoded"
	case errors.Is(err, usecase.ErrInvalidProfile):
		return ErrorCodeInvalidProfile, "Profile is invalid"
	case errors.Is(err, live.ErrTurnTimeout):
		return ErrorCodeTimeout, "The assistant took too long to answer"
	case errors.Is(err, live.ErrSessionBusy):
		return ErrorCodeBusy, "Session is still connecting"
	case errors.Is(err, live.ErrSessionUnavailable), live.IsTransportError(err):
		return ErrorCodeUnavailable, "Live session is unavailable, please retry"
	default:
		return ErrorCodeInternal, "Internal error"
	}
}
