package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/ami/domain"
	"github.com/satriahrh/ami/internal/auth"
	"github.com/satriahrh/ami/internal/live"
	"github.com/satriahrh/ami/internal/websocket"
	"github.com/satriahrh/ami/usecase"
)

const (
	maxTextLength = 2000
	maxPageLimit  = 100
)

// ChatService is the conversation API exposed over HTTP
type ChatService interface {
	websocket.ChatService
	History(ctx context.Context, userID string, page, limit int) (*domain.ChatHistoryPage, error)
	DeleteChat(ctx context.Context, userID, chatID string) error
}

// Dependencies wires the routes
type Dependencies struct {
	Chat    ChatService
	Hub     *websocket.Hub
	Tokens  *auth.Manager
	Metrics http.Handler
	Logger  *zap.Logger
}

type handler struct {
	chat   ChatService
	hub    *websocket.Hub
	logger *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	h := &handler{chat: deps.Chat, hub: deps.Hub, logger: deps.Logger}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "ami",
		})
	})
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	chat := e.Group("/api/v1/chat", RequireAuth(deps.Tokens, deps.Logger))
	chat.POST("/session/start", h.startSession)
	chat.POST("/session/end", h.endSession)
	chat.POST("/text_to_text", h.textToText)
	chat.POST("/audio", h.audio)
	chat.GET("/history", h.history)
	chat.DELETE("/history/:id", h.deleteChat)
	if deps.Hub != nil {
		chat.GET("/ws", h.stream)
	}
}

func (h *handler) startSession(c echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}

	session, err := h.chat.StartSession(c.Request().Context(), userID(c), req.UserProfile)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "Session started", Data: session})
}

func (h *handler) endSession(c echo.Context) error {
	if err := h.chat.EndSession(c.Request().Context(), userID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "Session ended"})
}

func (h *handler) textToText(c echo.Context) error {
	var req TextChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return badRequest(c, "Text is required and must be a non-empty string")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return badRequest(c, "Text cannot exceed 2000 characters")
	}

	result, err := h.chat.SendTextMessage(c.Request().Context(), userID(c), text)
	if err != nil {
		return h.fail(c, err)
	}
	return h.reply(c, result)
}

func (h *handler) audio(c echo.Context) error {
	var req AudioChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request format")
	}
	if strings.TrimSpace(req.AudioData) == "" {
		return badRequest(c, "Audio data is required")
	}

	result, err := h.chat.SendAudioMessage(c.Request().Context(), userID(c), req.AudioData)
	if err != nil {
		return h.fail(c, err)
	}
	return h.reply(c, result)
}

// reply answers with JSON, or with the WAV itself when the client accepts audio/wav
func (h *handler) reply(c echo.Context, result *domain.ChatResult) error {
	if result.HasAudio() && strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "audio/wav") {
		header := c.Response().Header()
		header.Set("X-Session-Id", result.SessionID)
		header.Set("X-Expression", string(result.Reply.Expression))
		return c.Blob(http.StatusOK, "audio/wav", result.Audio)
	}
	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Chat response generated successfully",
		Data:    newChatResponse(result),
	})
}

func (h *handler) history(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil || page < 1 {
		return badRequest(c, "Page must be greater than 0")
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil || limit < 1 || limit > maxPageLimit {
		return badRequest(c, "Limit must be between 1 and 100")
	}

	result, err := h.chat.History(c.Request().Context(), userID(c), page, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "Chat history retrieved successfully", Data: result})
}

func (h *handler) deleteChat(c echo.Context) error {
	if err := h.chat.DeleteChat(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "Chat deleted"})
}

func (h *handler) stream(c echo.Context) error {
	id := userID(c)
	h.logger.Info("WebSocket connection authenticated", zap.String("userID", id))
	return websocket.HandleWebSocket(h.hub, c, id)
}

func (h *handler) fail(c echo.Context, err error) error {
	status, code := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Chat request failed",
			zap.String("path", c.Path()),
			zap.String("userID", userID(c)),
			zap.Error(err))
		message = "Internal error"
	}
	return c.JSON(status, ErrorResponse{Error: code, Message: message})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, usecase.ErrInvalidAudio):
		return http.StatusBadRequest, "invalid_audio"
	case errors.Is(err, usecase.ErrInvalidProfile):
		return http.StatusBadRequest, "invalid_profile"
	case errors.Is(err, usecase.ErrChatNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, live.ErrSessionBusy):
		return http.StatusConflict, "session_busy"
	case errors.Is(err, live.ErrTurnTimeout):
		return http.StatusGatewayTimeout, "turn_timeout"
	case errors.Is(err, live.ErrSessionUnavailable), live.IsTransportError(err):
		return http.StatusServiceUnavailable, "session_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: message})
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
