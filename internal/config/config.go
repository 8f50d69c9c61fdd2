package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"bullmeter/internal/logger"
)

// Config is the full runtime configuration of the server
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Round     *RoundConfig     `json:"round"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
	Auth      *AuthConfig      `json:"auth"`
	Log       *LogConfig       `json:"log"`
	CORS      *CORSConfig      `json:"cors"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// Address returns host:port for the listener
func (h *HTTPConfig) Address() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

type WebSocketConfig struct {
	Path         string        `json:"path"`
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// RoundConfig controls expiry sweeps and how long finished rounds stay readable
type RoundConfig struct {
	SweepInterval time.Duration `json:"sweep_interval"`
	Retention     time.Duration `json:"retention"`
}

// RateLimitConfig holds per-address admission limits
type RateLimitConfig struct {
	Window          time.Duration `json:"window"`
	IdleTTL         time.Duration `json:"idle_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	VoteLimit       int           `json:"vote_limit"`
	SpamLimit       int           `json:"spam_limit"`
}

// AuthConfig enables host tokens when JWTSecret is non-empty
type AuthConfig struct {
	JWTSecret string        `json:"-"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// DefaultConfig returns settings suitable for a single-node deployment
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			Path:         "/bullmeter",
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Round: &RoundConfig{
			SweepInterval: 5 * time.Minute,
			Retention:     time.Hour,
		},
		RateLimit: &RateLimitConfig{
			Window:          time.Second,
			IdleTTL:         time.Minute,
			CleanupInterval: time.Minute,
			VoteLimit:       10,
			SpamLimit:       5,
		},
		Auth: &AuthConfig{
			TokenTTL: 12 * time.Hour,
		},
		Log: &LogConfig{
			Level: "info",
		},
		CORS: &CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("WebSocket path must start with /")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Round == nil {
		return fmt.Errorf("round configuration is required")
	}
	if c.Round.SweepInterval <= 0 {
		return fmt.Errorf("round sweep interval must be positive")
	}
	if c.Round.Retention <= 0 {
		return fmt.Errorf("round retention must be positive")
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.IdleTTL <= 0 || c.RateLimit.CleanupInterval <= 0 {
		return fmt.Errorf("rate limit durations must be positive")
	}
	if c.RateLimit.VoteLimit <= 0 || c.RateLimit.SpamLimit <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Log == nil || !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("log level must be one of trace, debug, info, warn, error, off")
	}

	if c.CORS == nil {
		return fmt.Errorf("CORS configuration is required")
	}
	return nil
}

// setting binds one config key to its environment variable and field
type setting struct {
	key string
	env string
	set func(c *Config, raw string) error
}

var settings = []setting{
	{"http.host", "BULLMETER_HTTP_HOST", stringField(func(c *Config) *string { return &c.HTTP.Host })},
	{"http.port", "BULLMETER_HTTP_PORT", intField(func(c *Config) *int { return &c.HTTP.Port })},
	{"http.read_timeout", "BULLMETER_HTTP_READ_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.HTTP.ReadTimeout })},
	{"http.write_timeout", "BULLMETER_HTTP_WRITE_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.HTTP.WriteTimeout })},

	{"websocket.path", "BULLMETER_WEBSOCKET_PATH", stringField(func(c *Config) *string { return &c.WebSocket.Path })},
	{"websocket.ping_interval", "BULLMETER_WEBSOCKET_PING_INTERVAL", durationField(func(c *Config) *time.Duration { return &c.WebSocket.PingInterval })},
	{"websocket.read_timeout", "BULLMETER_WEBSOCKET_READ_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.WebSocket.ReadTimeout })},
	{"websocket.write_timeout", "BULLMETER_WEBSOCKET_WRITE_TIMEOUT", durationField(func(c *Config) *time.Duration { return &c.WebSocket.WriteTimeout })},
	{"websocket.buffer_size", "BULLMETER_WEBSOCKET_BUFFER_SIZE", intField(func(c *Config) *int { return &c.WebSocket.BufferSize })},

	{"round.sweep_interval", "BULLMETER_SWEEP_INTERVAL", durationField(func(c *Config) *time.Duration { return &c.Round.SweepInterval })},
	{"round.retention", "BULLMETER_ROUND_RETENTION", durationField(func(c *Config) *time.Duration { return &c.Round.Retention })},

	{"rate_limit.window", "BULLMETER_RATE_LIMIT_WINDOW", durationField(func(c *Config) *time.Duration { return &c.RateLimit.Window })},
	{"rate_limit.idle_ttl", "BULLMETER_RATE_LIMIT_IDLE_TTL", durationField(func(c *Config) *time.Duration { return &c.RateLimit.IdleTTL })},
	{"rate_limit.cleanup_interval", "BULLMETER_RATE_LIMIT_CLEANUP_INTERVAL", durationField(func(c *Config) *time.Duration { return &c.RateLimit.CleanupInterval })},
	{"rate_limit.vote_limit", "BULLMETER_VOTE_RATE_LIMIT", intField(func(c *Config) *int { return &c.RateLimit.VoteLimit })},
	{"rate_limit.spam_limit", "BULLMETER_SPAM_RATE_LIMIT", intField(func(c *Config) *int { return &c.RateLimit.SpamLimit })},

	{"auth.jwt_secret", "BULLMETER_JWT_SECRET", stringField(func(c *Config) *string { return &c.Auth.JWTSecret })},
	{"auth.token_ttl", "BULLMETER_TOKEN_TTL", durationField(func(c *Config) *time.Duration { return &c.Auth.TokenTTL })},

	{"log.level", "BULLMETER_LOG_LEVEL", stringField(func(c *Config) *string { return &c.Log.Level })},

	{"cors.allowed_origins", "BULLMETER_CORS_ORIGINS", listField(func(c *Config) *[]string { return &c.CORS.AllowedOrigins })},
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		*field(c) = raw
		return nil
	}
}

func intField(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, raw string) error {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*field(c) = v
		return nil
	}
}

func listField(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, raw string) error {
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*field(c) = items
		return nil
	}
}

// rawValue flattens a viper value to the string form the setters parse
func rawValue(v *viper.Viper, key string) string {
	if list, ok := v.Get(key).([]interface{}); ok {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	}
	return strings.TrimSpace(v.GetString(key))
}

// apply copies every set key from v onto cfg. With strict off, unparsable
// values keep the previous setting.
func apply(v *viper.Viper, cfg *Config, strict bool) error {
	for _, s := range settings {
		if !v.IsSet(s.key) {
			continue
		}
		raw := rawValue(v, s.key)
		if raw == "" {
			continue
		}
		if err := s.set(cfg, raw); err != nil && strict {
			return fmt.Errorf("invalid value for %s: %w", s.key, err)
		}
	}
	return nil
}

// LoadFromEnv overlays BULLMETER_* environment variables onto the defaults.
// Malformed values are ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	v := viper.New()
	for _, s := range settings {
		_ = v.BindEnv(s.key, s.env)
	}
	_ = apply(v, config, false)
}

// LoadFromFile reads a JSON or YAML file over the defaults. Durations are
// strings such as "5m".
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(path, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(path string, config *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := apply(v, config, true); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults, key by key
func LoadConfigWithPrecedence(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config := LoadFromEnv()
	if path != "" {
		if err := applyFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
