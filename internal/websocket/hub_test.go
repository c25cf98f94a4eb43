package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/domain/entities"
	"github.com/satriahrh/ami/internal/live"
	"github.com/satriahrh/ami/usecase"
)

type fakeChat struct {
	mu     sync.Mutex
	texts  []string
	audios []string
	ended  int
	err    error
}

func (f *fakeChat) SendTextMessage(_ context.Context, userID, text string) (*domain.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)
	return &domain.ChatResult{
		Reply:        entities.FallbackReply("echo: " + text),
		SessionID:    "session-" + userID,
		Timestamp:    time.Now(),
		HistoryCount: len(f.texts),
		Audio:        []byte("RIFF....WAVE"),
	}, nil
}

func (f *fakeChat) SendAudioMessage(_ context.Context, userID, audioBase64 string) (*domain.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.audios = append(f.audios, audioBase64)
	return &domain.ChatResult{
		Reply:     entities.FallbackReply("heard you"),
		SessionID: "session-" + userID,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeChat) StartSession(_ context.Context, userID string, profile *entities.UserProfile) (*entities.LiveSession, error) {
	session := entities.NewLiveSession(userID)
	session.State = entities.SessionStateConnected
	return session, nil
}

func (f *fakeChat) EndSession(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return nil
}

func startHub(t *testing.T, chat ChatService) (*Hub, string, context.CancelFunc) {
	t.Helper()

	hub := NewHub(chat, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocket(hub, c, c.QueryParam("user"))
	})
	server := httptest.NewServer(e)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return hub, "ws" + strings.TrimPrefix(server.URL, "http") + "/ws", cancel
}

func dial(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+userID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	return decoded
}

func TestHub_TextTurnRepliesWithJSONThenAudio(t *testing.T) {
	chat := &fakeChat{}
	_, url, _ := startHub(t, chat)
	conn := dial(t, url, "user-1")

	writeJSON(t, conn, map[string]string{"type": "text", "text": "Good morning"})

	reply := readJSON(t, conn)
	assert.Equal(t, "reply", reply["type"])
	assert.Equal(t, "session-user-1", reply["session_id"])
	assert.Equal(t, true, reply["has_audio"])
	body, _ := reply["reply"].(map[string]interface{})
	assert.Equal(t, "echo: Good morning", body["aiResponse"])

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, messageType)
	assert.Equal(t, []byte("RIFF....WAVE"), payload)
}

func TestHub_RepliesKeepRequestOrder(t *testing.T) {
	chat := &fakeChat{}
	_, url, _ := startHub(t, chat)
	conn := dial(t, url, "user-1")

	writeJSON(t, conn, map[string]string{"type": "text", "text": "one"})
	writeJSON(t, conn, map[string]string{"type": "text", "text": "two"})

	for _, want := range []string{"echo: one", "echo: two"} {
		reply := readJSON(t, conn)
		body, _ := reply["reply"].(map[string]interface{})
		assert.Equal(t, want, body["aiResponse"])
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage() // audio
		require.NoError(t, err)
	}
}

func TestHub_BinaryMessageIsAudioTurn(t *testing.T) {
	chat := &fakeChat{}
	_, url, _ := startHub(t, chat)
	conn := dial(t, url, "user-1")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}))

	reply := readJSON(t, conn)
	assert.Equal(t, "reply", reply["type"])
	assert.Equal(t, false, reply["has_audio"])

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})}, chat.audios)
}

func TestHub_PingPong(t *testing.T) {
	_, url, _ := startHub(t, &fakeChat{})
	conn := dial(t, url, "user-1")

	writeJSON(t, conn, map[string]string{"type": "ping", "data": "hi"})

	pong := readJSON(t, conn)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, "hi", pong["data"])
}

func TestHub_InvalidMessage(t *testing.T) {
	_, url, _ := startHub(t, &fakeChat{})
	conn := dial(t, url, "user-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "text"}`)))

	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, ErrorCodeInvalidMessage, msg["error_code"])
}

func TestHub_ChatErrorIsReported(t *testing.T) {
	chat := &fakeChat{err: live.ErrTurnTimeout}
	_, url, _ := startHub(t, chat)
	conn := dial(t, url, "user-1")

	writeJSON(t, conn, map[string]string{"type": "text", "text": "hello"})

	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, ErrorCodeTimeout, msg["error_code"])
}

func TestHub_SessionStartAndEnd(t *testing.T) {
	chat := &fakeChat{}
	_, url, _ := startHub(t, chat)
	conn := dial(t, url, "user-1")

	writeJSON(t, conn, map[string]interface{}{"type": "session_start", "profile": map[string]interface{}{"nickname": "Nana"}})
	started := readJSON(t, conn)
	assert.Equal(t, "session_started", started["type"])
	session, _ := started["session"].(map[string]interface{})
	assert.Equal(t, "user-1", session["user_id"])
	assert.Equal(t, "connected", session["state"])

	writeJSON(t, conn, map[string]string{"type": "session_end"})
	ended := readJSON(t, conn)
	assert.Equal(t, "session_ended", ended["type"])

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Equal(t, 1, chat.ended)
}

func TestHub_NewConnectionReplacesOld(t *testing.T) {
	hub, url, _ := startHub(t, &fakeChat{})

	first := dial(t, url, "user-1")
	require.Eventually(t, func() bool { return hub.Connected("user-1") }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, url, "user-1")

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err)

	writeJSON(t, second, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", readJSON(t, second)["type"])
	assert.Equal(t, 1, hub.Count())
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, url, _ := startHub(t, &fakeChat{})

	conn := dial(t, url, "user-1")
	require.Eventually(t, func() bool { return hub.Connected("user-1") }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return !hub.Connected("user-1") }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, url, cancel := startHub(t, &fakeChat{})

	conn := dial(t, url, "user-1")
	require.Eventually(t, func() bool { return hub.Connected("user-1") }, 2*time.Second, 10*time.Millisecond)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Zero(t, hub.Count())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{usecase.ErrEmptyMessage, ErrorCodeEmptyMessage},
		{usecase.ErrInvalidAudio, ErrorCodeInvalidAudio},
		{usecase.ErrInvalidProfile, ErrorCodeInvalidProfile},
		{live.ErrTurnTimeout, ErrorCodeTimeout},
		{live.ErrSessionBusy, ErrorCodeBusy},
		{live.ErrSessionUnavailable, ErrorCodeUnavailable},
		{&live.TransportError{Op: "connect", Err: errors.New("refused")}, ErrorCodeUnavailable},
		{errors.New("boom"), ErrorCodeInternal},
	}
	for _, tt := range tests {
		code, _ := errorCode(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

type countingReaper struct {
	calls atomic.Int32
	ttl   atomic.Int64
}

func (r *countingReaper) ReapIdle(ttl time.Duration) int {
	r.calls.Add(1)
	r.ttl.Store(int64(ttl))
	return 1
}

func TestSessionCleanupService(t *testing.T) {
	reaper := &countingReaper{}
	service := NewSessionCleanupService(reaper, time.Minute, 10*time.Millisecond, zap.NewNop())

	service.Start()
	require.Eventually(t, func() bool { return reaper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	service.Stop()
	service.Stop()

	assert.Equal(t, int64(time.Minute), reaper.ttl.Load())
	calls := reaper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, reaper.calls.Load())
}

func TestSessionCleanupService_Disabled(t *testing.T) {
	reaper := &countingReaper{}
	service := NewSessionCleanupService(reaper, 0, 5*time.Millisecond, zap.NewNop())

	service.Start()
	time.Sleep(30 * time.Millisecond)
	service.Stop()

	assert.Zero(t, reaper.calls.Load())
}
