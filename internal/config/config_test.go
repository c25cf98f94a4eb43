package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func envOf(values map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, TransportMock, cfg.ResolvedTransport())
	assert.Equal(t, 30*time.Second, cfg.Live.TurnTimeout)
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
server:
  port: "9090"
  log_level: debug
live:
  transport: mock
  voice: Puck
  turn_timeout: 45s
session:
  idle_ttl: 5m
  cleanup_interval: 30s
`))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, zapcore.DebugLevel, cfg.ZapLevel())
	assert.Equal(t, "Puck", cfg.Live.Voice)
	assert.Equal(t, 45*time.Second, cfg.Live.TurnTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, "ami", cfg.Mongo.Database)
}

func TestLoadFromReader_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  prot: 1\n"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := applyEnv(cfg, envOf(map[string]string{
		"PORT":             "7000",
		"GEMINI_API_KEY":   "secret",
		"MONGODB_URI":      "mongodb://db:27017",
		"TURN_TIMEOUT":     "10s",
		"SPEECH_ENABLED":   "true",
		"SESSION_IDLE_TTL": "",
		"JWT_SECRET":       "jwt",
		"AUDIO_DIR":        "/tmp/ami",
	}))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Live.APIKey)
	assert.Equal(t, TransportGenAI, cfg.ResolvedTransport())
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, 10*time.Second, cfg.Live.TurnTimeout)
	assert.True(t, cfg.Speech.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, "jwt", cfg.Auth.JWTSecret)
	assert.Equal(t, "/tmp/ami", cfg.Server.AudioDir)
}

func TestApplyEnv_JoinsErrors(t *testing.T) {
	err := applyEnv(Default(), envOf(map[string]string{
		"TURN_TIMEOUT":   "soon",
		"SPEECH_ENABLED": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TURN_TIMEOUT")
	assert.Contains(t, err.Error(), "SPEECH_ENABLED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "bad port and log level",
			mutate: func(c *Config) { c.Server.Port = "http"; c.Server.LogLevel = "loud" },
			want:   []string{"server.port", "server.log_level"},
		},
		{
			name:   "genai without key",
			mutate: func(c *Config) { c.Live.Transport = "genai" },
			want:   []string{"requires GEMINI_API_KEY"},
		},
		{
			name:   "unknown transport",
			mutate: func(c *Config) { c.Live.Transport = "carrier-pigeon" },
			want:   []string{"live.transport"},
		},
		{
			name:   "reaper without interval",
			mutate: func(c *Config) { c.Session.CleanupInterval = 0 },
			want:   []string{"session.cleanup_interval"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestValidate_WebSocketWithBaseURLNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.Live.Transport = "WebSocket"
	cfg.Live.BaseURL = "ws://proxy:9000"
	assert.NoError(t, Validate(cfg))
	assert.Equal(t, TransportWebSocket, cfg.ResolvedTransport())
}
