// Package config loads server configuration from a YAML file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TABLETOP_SERVER_HTTP_ADDRESS.
const EnvPrefix = "TABLETOP"

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Game    GameConfig    `mapstructure:"game"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// ServerConfig groups the network listeners.
type ServerConfig struct {
	HTTP            HTTPConfig      `mapstructure:"http"`
	GRPC            GRPCConfig      `mapstructure:"grpc"`
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// HTTPConfig configures the HTTP and websocket listener.
type HTTPConfig struct {
	Address string `mapstructure:"address"`
	Mode    string `mapstructure:"mode"`
}

// GRPCConfig configures the gRPC health listener.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// WebSocketConfig tunes per-connection transport behaviour.
type WebSocketConfig struct {
	ReadLimit      int64         `mapstructure:"read_limit"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig holds tabletop behaviour switches.
type GameConfig struct {
	InitialHandSize  int  `mapstructure:"initial_hand_size"`
	StrictInvariants bool `mapstructure:"strict_invariants"`
}

// CatalogConfig selects and tunes the deck catalog.
type CatalogConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	DatabaseURL string        `mapstructure:"database_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":3000")
	v.SetDefault("server.http.mode", "release")
	v.SetDefault("server.grpc.enabled", true)
	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.websocket.read_limit", 64*1024)
	v.SetDefault("server.websocket.write_wait", 10*time.Second)
	v.SetDefault("server.websocket.pong_wait", 60*time.Second)
	v.SetDefault("server.websocket.send_buffer", 256)
	v.SetDefault("server.websocket.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("game.initial_hand_size", 7)
	v.SetDefault("game.strict_invariants", false)

	v.SetDefault("catalog.provider", "static")
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.timeout", 15*time.Second)
	v.SetDefault("catalog.database_url", "")
}

// Load reads configuration from path (if it exists), then applies
// TABLETOP_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Server.HTTP.Address == "" {
		return errors.New("server.http.address is required")
	}
	if c.Server.GRPC.Enabled && c.Server.GRPC.Address == "" {
		return errors.New("server.grpc.address is required when grpc is enabled")
	}
	if c.Server.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("server.websocket.send_buffer must be positive, got %d", c.Server.WebSocket.SendBuffer)
	}
	if c.Server.WebSocket.PongWait <= 0 || c.Server.WebSocket.WriteWait <= 0 {
		return errors.New("server.websocket write_wait and pong_wait must be positive")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be positive, got %s", c.Catalog.Timeout)
	}
	switch c.Catalog.Provider {
	case "static", "moxfield":
	default:
		return fmt.Errorf("catalog.provider must be static or moxfield, got %q", c.Catalog.Provider)
	}
	if c.Game.InitialHandSize < 0 {
		return fmt.Errorf("game.initial_hand_size must not be negative, got %d", c.Game.InitialHandSize)
	}
	return nil
}
