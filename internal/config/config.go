// Package config defines the service configuration, its YAML loader, and a
// file watcher for hot reload.
package config

import (
	"fmt"
	"time"
)

// Store backend types.
const (
	StoreTypeMemory = "memory"
	StoreTypeRedis  = "redis"
)

// ServiceConfig is the root configuration of the sheet service.
type ServiceConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`
	Store   StoreConfig   `yaml:"store"`
	Collab  CollabConfig  `yaml:"collab"`
	History HistoryConfig `yaml:"history"`
	Audit   AuditConfig   `yaml:"audit"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	Port           int      `yaml:"port"`
	ReadTimeout    Duration `yaml:"readTimeout"`
	WriteTimeout   Duration `yaml:"writeTimeout"`
	IdleTimeout    Duration `yaml:"idleTimeout"`
	MaxRequestBody int64    `yaml:"maxRequestBody"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig holds credential verification settings.
type AuthConfig struct {
	// Secret is the HMAC secret for JWT verification.
	Secret string `yaml:"secret"`
	// Issuer, when set, is enforced against the token's iss claim.
	Issuer string `yaml:"issuer"`
	// Audience, when set, is enforced against the token's aud claim.
	Audience string `yaml:"audience"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// Enabled turns the audit trail on. Defaults to on.
	Enabled *bool `yaml:"enabled"`
	// Output is stdout, stderr, or a file path.
	Output string `yaml:"output"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// IsEnabled reports whether auditing is on, defaulting to true.
func (c AuditConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// CollabConfig holds realtime collaboration settings.
type CollabConfig struct {
	// SendBuffer is the per-session outbound queue size. A session that
	// cannot keep up is disconnected rather than blocking the room.
	SendBuffer int `yaml:"sendBuffer"`
	// EventRate limits inbound events per session, events per second.
	EventRate float64 `yaml:"eventRate"`
	// EventBurst is the burst allowance for the event rate limit.
	EventBurst int `yaml:"eventBurst"`
	// WriteTimeout bounds a single websocket write.
	WriteTimeout Duration `yaml:"writeTimeout"`
	// PongTimeout bounds the wait for a pong before the connection is
	// considered dead.
	PongTimeout Duration `yaml:"pongTimeout"`
}

// WebhookConfig holds inbound webhook settings. The webhook endpoint is
// unauthenticated; the secret in the URL path is the only credential.
type WebhookConfig struct {
	// Enabled turns inbound webhook processing on. Defaults to off.
	Enabled bool `yaml:"enabled"`
	// Secret is the path segment a caller must present. Required when
	// enabled.
	Secret string `yaml:"secret"`
}

// HistoryConfig holds cell history pagination settings.
type HistoryConfig struct {
	DefaultLimit int `yaml:"defaultLimit"`
	MaxLimit     int `yaml:"maxLimit"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Address:        "",
			Port:           8080,
			ReadTimeout:    Duration(30 * time.Second),
			WriteTimeout:   Duration(30 * time.Second),
			IdleTimeout:    Duration(120 * time.Second),
			MaxRequestBody: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Store: StoreConfig{
			Type: StoreTypeMemory,
		},
		Collab: CollabConfig{
			SendBuffer:   64,
			EventRate:    50,
			EventBurst:   100,
			WriteTimeout: Duration(10 * time.Second),
			PongTimeout:  Duration(60 * time.Second),
		},
		History: HistoryConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
		},
		Audit: AuditConfig{
			Output: "stdout",
			Format: "json",
		},
	}
}

// ApplyDefaults fills zero-valued fields from the defaults.
func (c *ServiceConfig) ApplyDefaults() {
	def := DefaultConfig()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Server.MaxRequestBody == 0 {
		c.Server.MaxRequestBody = def.Server.MaxRequestBody
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Log.Output == "" {
		c.Log.Output = def.Log.Output
	}
	if c.Store.Type == "" {
		c.Store.Type = def.Store.Type
	}
	if c.Collab.SendBuffer == 0 {
		c.Collab.SendBuffer = def.Collab.SendBuffer
	}
	if c.Collab.EventRate == 0 {
		c.Collab.EventRate = def.Collab.EventRate
	}
	if c.Collab.EventBurst == 0 {
		c.Collab.EventBurst = def.Collab.EventBurst
	}
	if c.Collab.WriteTimeout == 0 {
		c.Collab.WriteTimeout = def.Collab.WriteTimeout
	}
	if c.Collab.PongTimeout == 0 {
		c.Collab.PongTimeout = def.Collab.PongTimeout
	}
	if c.History.DefaultLimit == 0 {
		c.History.DefaultLimit = def.History.DefaultLimit
	}
	if c.History.MaxLimit == 0 {
		c.History.MaxLimit = def.History.MaxLimit
	}
	if c.Audit.Output == "" {
		c.Audit.Output = def.Audit.Output
	}
	if c.Audit.Format == "" {
		c.Audit.Format = def.Audit.Format
	}
}

// Validate checks the configuration for errors.
func Validate(c *ServiceConfig) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	switch c.Store.Type {
	case StoreTypeMemory:
	case StoreTypeRedis:
		if c.Store.Redis == nil || c.Store.Redis.URL == "" {
			return fmt.Errorf("store.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("store.type %q is not supported", c.Store.Type)
	}
	if c.Collab.EventRate < 0 {
		return fmt.Errorf("collab.eventRate must not be negative")
	}
	if c.History.MaxLimit < c.History.DefaultLimit {
		return fmt.Errorf("history.maxLimit must be >= history.defaultLimit")
	}
	if c.Webhook.Enabled && c.Webhook.Secret == "" {
		return fmt.Errorf("webhook.secret is required when webhook.enabled is set")
	}
	return nil
}
