// Package config loads server settings from the environment, an optional
// .env file and an optional YAML file. Environment variables win over YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by LiveConfig.Transport
const (
	TransportGenAI     = "genai"
	TransportWebSocket = "websocket"
	TransportMock      = "mock"
)

// Config is the full server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Live    LiveConfig    `yaml:"live"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Speech  SpeechConfig  `yaml:"speech"`
	Session SessionConfig `yaml:"session"`
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// AudioDir, when set, receives a WAV file per assistant turn
	AudioDir string `yaml:"audio_dir"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"-"`
}

type LiveConfig struct {
	APIKey      string        `yaml:"-"`
	Transport   string        `yaml:"transport"`
	Model       string        `yaml:"model"`
	Voice       string        `yaml:"voice"`
	BaseURL     string        `yaml:"base_url"`
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

type MongoConfig struct {
	URI      string `yaml:"-"`
	Database string `yaml:"database"`
}

type SpeechConfig struct {
	// Enabled turns on Google Cloud transcription of user audio messages
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `yaml:"idle_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", LogLevel: "info"},
		Live: LiveConfig{
			TurnTimeout: 30 * time.Second,
		},
		Mongo:  MongoConfig{Database: "ami"},
		Speech: SpeechConfig{Language: "en-US"},
		Session: SessionConfig{
			IdleTTL:         15 * time.Minute,
			CleanupInterval: time.Minute,
		},
	}
}

// Load reads .env (if present), the YAML file named by CONFIG_FILE (if set)
// and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decodeYAML(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML over the defaults and validates the result.
// The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &cfg.Server.Port)
	str("LOG_LEVEL", &cfg.Server.LogLevel)
	str("AUDIO_DIR", &cfg.Server.AudioDir)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("GEMINI_API_KEY", &cfg.Live.APIKey)
	str("LIVE_TRANSPORT", &cfg.Live.Transport)
	str("GEMINI_MODEL", &cfg.Live.Model)
	str("GEMINI_VOICE", &cfg.Live.Voice)
	str("GEMINI_BASE_URL", &cfg.Live.BaseURL)
	dur("TURN_TIMEOUT", &cfg.Live.TurnTimeout)
	str("MONGODB_URI", &cfg.Mongo.URI)
	str("MONGODB_DATABASE", &cfg.Mongo.Database)
	str("SPEECH_LANGUAGE", &cfg.Speech.Language)
	dur("SESSION_IDLE_TTL", &cfg.Session.IdleTTL)
	dur("SESSION_CLEANUP_INTERVAL", &cfg.Session.CleanupInterval)

	if v, ok := lookup("SPEECH_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SPEECH_ENABLED: %w", err))
		} else {
			cfg.Speech.Enabled = b
		}
	}

	return errors.Join(errs...)
}

// ResolvedTransport picks the live transport: an explicit choice wins,
// otherwise genai with an API key and the mock without one.
func (c *Config) ResolvedTransport() string {
	if c.Live.Transport != "" {
		return strings.ToLower(c.Live.Transport)
	}
	if c.Live.APIKey != "" {
		return TransportGenAI
	}
	return TransportMock
}

// ZapLevel converts the configured log level
func (c *Config) ZapLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port <= 0 || port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %q is not a valid port", cfg.Server.Port))
	}
	if cfg.Server.LogLevel != "" {
		if _, err := zapcore.ParseLevel(cfg.Server.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
		}
	}

	switch cfg.ResolvedTransport() {
	case TransportMock:
	case TransportGenAI, TransportWebSocket:
		if cfg.Live.APIKey == "" && cfg.Live.BaseURL == "" {
			errs = append(errs, fmt.Errorf("live.transport %q requires GEMINI_API_KEY", cfg.ResolvedTransport()))
		}
	default:
		errs = append(errs, fmt.Errorf("live.transport %q is invalid; valid values: genai, websocket, mock", cfg.Live.Transport))
	}
	if cfg.Live.TurnTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.turn_timeout must not be negative"))
	}

	if cfg.Session.IdleTTL < 0 {
		errs = append(errs, fmt.Errorf("session.idle_ttl must not be negative"))
	}
	if cfg.Session.IdleTTL > 0 && cfg.Session.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.cleanup_interval must be positive when idle_ttl is set"))
	}

	return errors.Join(errs...)
}
