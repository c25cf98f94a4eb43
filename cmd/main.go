package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/ami/adapters"
	"github.com/satriahrh/ami/adapters/llm"
	"github.com/satriahrh/ami/adapters/mongo"
	"github.com/satriahrh/ami/adapters/stt"
	"github.com/satriahrh/ami/domain/repositories"
	"github.com/satriahrh/ami/internal/api"
	"github.com/satriahrh/ami/internal/auth"
	"github.com/satriahrh/ami/internal/config"
	"github.com/satriahrh/ami/internal/live"
	"github.com/satriahrh/ami/internal/observe"
	"github.com/satriahrh/ami/internal/websocket"
	"github.com/satriahrh/ami/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Invalid configuration", zap.Error(err))
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(cfg.ZapLevel())
	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ami"})
	if err != nil {
		return err
	}
	defer shutdown(logger, "metrics provider", provider.Shutdown)

	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return err
	}

	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}

	chats, profiles, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown(logger, "storage", closeStore)

	conversations := usecase.NewConversationService(transport, live.Config{
		Model:       cfg.Live.Model,
		Voice:       cfg.Live.Voice,
		TurnTimeout: cfg.Live.TurnTimeout,
	}, metrics, logger)
	defer conversations.Close()

	opts := []usecase.ChatOption{
		usecase.WithProfiles(profiles),
		usecase.WithMetrics(metrics),
		usecase.WithAudioDir(cfg.Server.AudioDir),
	}
	if cfg.Speech.Enabled {
		speechToText, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return err
		}
		defer speechToText.Close()
		opts = append(opts, usecase.WithSpeechToText(speechToText, cfg.Speech.Language))
	}
	chatService := usecase.NewChatService(conversations, chats, logger, opts...)

	tokens, err := newTokenManager(cfg, logger)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(chatService, logger)

	cleanup := websocket.NewSessionCleanupService(conversations, cfg.Session.IdleTTL, cfg.Session.CleanupInterval, logger)
	cleanup.Start()
	defer cleanup.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, api.Dependencies{
		Chat:    chatService,
		Hub:     hub,
		Tokens:  tokens,
		Metrics: provider.Handler(),
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("Server started",
			zap.String("port", cfg.Server.Port),
			zap.String("transport", cfg.ResolvedTransport()))
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newTransport(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.LiveTransport, error) {
	gemini := llm.GeminiConfig{
		APIKey: cfg.Live.APIKey,
		Model:  cfg.Live.Model,
		Voice:  cfg.Live.Voice,
	}

	switch cfg.ResolvedTransport() {
	case config.TransportGenAI:
		return llm.NewGeminiLive(ctx, gemini, logger)
	case config.TransportWebSocket:
		var opts []llm.WebSocketOption
		if cfg.Live.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.Live.BaseURL))
		}
		return llm.NewWebSocketLive(gemini, logger, opts...), nil
	default:
		logger.Warn("No live model configured, using the mock transport")
		return llm.NewMockLive(), nil
	}
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.ChatRepository, repositories.ProfileRepository, func(context.Context) error, error) {
	if cfg.Mongo.URI == "" {
		logger.Warn("MONGODB_URI not set, chat history is kept in memory")
		return adapters.NewMemoryChatRepository(), adapters.NewMemoryProfileRepository(),
			func(context.Context) error { return nil }, nil
	}

	client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := client.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure indexes", zap.Error(err))
	}
	return mongo.NewChatRepository(client.Database), mongo.NewProfileRepository(client.Database), client.Close, nil
}

func newTokenManager(cfg *config.Config, logger *zap.Logger) (*auth.Manager, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	tokens, err := auth.NewManager(secret, 0)
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		token, err := tokens.GenerateToken("demo-user", auth.RoleUser, "")
		if err != nil {
			return nil, err
		}
		logger.Info("Issued development token", zap.String("userID", "demo-user"), zap.String("token", token))
	}
	return tokens, nil
}

func shutdown(logger *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("Failed to shut down "+name, zap.Error(err))
	}
}
