// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay front-ends.
package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/heartbeat"
	"github.com/spf13/viper"
)

// Configuration keys. With AutomaticEnv each key is also read from the
// upper-cased environment variable of the same name.
const (
	KeyServerPort              = "server_port"
	KeyTCPAddr                 = "tcp_addr"
	KeyAllowedOrigins          = "allowed_origins"
	KeyMaxMessageSize          = "max_message_size"
	KeyRateLimitBurst          = "rate_limit_burst"
	KeyRateLimitRefillInterval = "rate_limit_refill_interval"
	KeySendBuffer              = "send_buffer"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string
	TCPAddr        string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	// SendBuffer is the capacity of each session's outbound channel.
	SendBuffer int
	// Heartbeat is fixed at 5s/10s in production; tests shorten it.
	Heartbeat heartbeat.Config
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port:    ":8080",
		TCPAddr: ":12345",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		SendBuffer: 256,
		Heartbeat: heartbeat.Config{
			Interval: heartbeat.DefaultInterval,
			Timeout:  heartbeat.DefaultTimeout,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = ":12345"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 5
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}

	if cfg.Heartbeat.Interval <= 0 {
		cfg.Heartbeat.Interval = heartbeat.DefaultInterval
	}

	if cfg.Heartbeat.Timeout <= 0 {
		cfg.Heartbeat.Timeout = 2 * cfg.Heartbeat.Interval
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins
	if allowAll {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, "*")
	}

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	cfg := defaultConfig()
	v.SetDefault(KeyServerPort, cfg.Port)
	v.SetDefault(KeyTCPAddr, cfg.TCPAddr)
	v.SetDefault(KeyAllowedOrigins, strings.Join(cfg.AllowedOrigins, ","))
	v.SetDefault(KeyMaxMessageSize, cfg.MaxMessageSize)
	v.SetDefault(KeyRateLimitBurst, cfg.RateLimit.Burst)
	v.SetDefault(KeyRateLimitRefillInterval, int(cfg.RateLimit.RefillInterval/time.Second))
	v.SetDefault(KeySendBuffer, cfg.SendBuffer)
}

// LoadConfig builds a Config from v, layering defaults, an optional config
// file, the environment and any bound flags. Invalid numeric values fall back
// to the defaults, as the environment loader always did.
func LoadConfig(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := defaultConfig()

	if port := v.GetString(KeyServerPort); port != "" {
		cfg.Port = port
	}

	if addr := v.GetString(KeyTCPAddr); addr != "" {
		cfg.TCPAddr = addr
	}

	if origins := originsFrom(v); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	cfg.MaxMessageSize = parseMaxMessageSize(v.GetString(KeyMaxMessageSize), cfg.MaxMessageSize)
	cfg.RateLimit.Burst = parseIntValue(v.GetString(KeyRateLimitBurst), cfg.RateLimit.Burst)
	cfg.RateLimit.RefillInterval = parseRefillInterval(v.GetString(KeyRateLimitRefillInterval), cfg.RateLimit.RefillInterval)
	cfg.SendBuffer = parseIntValue(v.GetString(KeySendBuffer), cfg.SendBuffer)

	return &cfg, nil
}

// originsFrom accepts either a comma separated string (environment, flags)
// or a list (config file).
func originsFrom(v *viper.Viper) []string {
	if raw, ok := v.Get(KeyAllowedOrigins).(string); ok {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		return parseOrigins(raw)
	}
	return v.GetStringSlice(KeyAllowedOrigins)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
