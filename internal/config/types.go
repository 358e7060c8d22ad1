package config

import "time"

// Config represents the main process configuration. This is operator-facing
// plumbing (ports, URLs, file paths) and is distinct from the user Settings
// object, which carries the privacy policy and lives in internal/settings.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Stats     StatsConfig     `yaml:"stats" mapstructure:"stats"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// StorageConfig locates the durable files the backend owns.
type StorageConfig struct {
	SettingsPath string `yaml:"settings_path" mapstructure:"settings_path"`
	SecretsPath  string `yaml:"secrets_path" mapstructure:"secrets_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// UpstreamConfig contains the transcription and reformatting collaborators.
// Both are opaque HTTP services to this backend.
type UpstreamConfig struct {
	GroqURL   string        `yaml:"groq_url" mapstructure:"groq_url"`
	GeminiURL string        `yaml:"gemini_url" mapstructure:"gemini_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig contains the Redis reformat-response cache configuration.
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// StatsConfig contains the usage-stats database configuration.
type StatsConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	PruneInterval   time.Duration `yaml:"prune_interval" mapstructure:"prune_interval"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Path           string   `yaml:"path" mapstructure:"path"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events         struct {
		BroadcastSettings bool `yaml:"broadcast_settings" mapstructure:"broadcast_settings"`
		BroadcastMasking  bool `yaml:"broadcast_masking" mapstructure:"broadcast_masking"`
		BroadcastPTT      bool `yaml:"broadcast_ptt" mapstructure:"broadcast_ptt"`
		BroadcastSystem   bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	} `yaml:"events" mapstructure:"events"`
}

// RateLimitConfig contains per-client request limiting configuration.
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8818,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			SettingsPath: "data/settings.json",
			SecretsPath:  "data/secrets.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			GroqURL:   "https://api.groq.com",
			GeminiURL: "https://generativelanguage.googleapis.com",
			Timeout:   60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     15 * time.Minute,
			KeyPrefix:      "koe",
		},
		Stats: StatsConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/koe_sentinel?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
			PruneInterval:   24 * time.Hour,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerSec: 20,
			Burst:          40,
		},
	}
	cfg.Logging.File.Enabled = false
	cfg.Logging.File.Path = "logs/koe-sentinel.log"
	cfg.WebSocket.Events.BroadcastSettings = true
	cfg.WebSocket.Events.BroadcastMasking = true
	cfg.WebSocket.Events.BroadcastPTT = true
	cfg.WebSocket.Events.BroadcastSystem = true
	return cfg
}
