// Package config handles gateway configuration loading and validation.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// knownWeakSecrets is a blocklist of secrets that must never be used in production.
var knownWeakSecrets = map[string]bool{
	"your-secret-key-here": true,
	"changeme":             true,
	"secret":               true,
}

// GenerateRandomSecret returns a cryptographically random 64-character hex
// string suitable for use as a JWT secret.
func GenerateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Auth      AuthConfig      `json:"auth"`
	Storage   StorageConfig   `json:"storage"`
	Session   SessionConfig   `json:"session"`
	ShipVox   ShipVoxConfig   `json:"shipvox"`
	Logging   LoggingConfig   `json:"logging"`
	RateLimit RateLimitConfig `json:"rate_limit,omitempty"`
}

// ServerConfig defines the gateway's listener settings.
type ServerConfig struct {
	Addr           string   `json:"addr"`                      // e.g. ":8000"
	TLSCert        string   `json:"tls_cert,omitempty"`
	TLSKey         string   `json:"tls_key,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // CORS + WS origin check; default ["*"]
	MaxBodyBytes   int64    `json:"max_body_bytes,omitempty"`  // max HTTP request body; default 1MB
}

// AuthConfig defines authentication settings.
type AuthConfig struct {
	Provider   string   `json:"provider,omitempty"`    // "builtin" (default) or "jwks"
	JWKSIssuer string   `json:"jwks_issuer,omitempty"` // issuer URL when provider is "jwks"
	JWTSecret  string   `json:"jwt_secret"`
	JWTExpiry  Duration `json:"jwt_expiry,omitempty"` // default 30m
	// TestToken, when set, is accepted as a bearer token for the "user"
	// principal. Development and test environments only.
	TestToken    string        `json:"test_token,omitempty"`
	InitialAdmin *InitialAdmin `json:"initial_admin,omitempty"`
}

// InitialAdmin is used to bootstrap the first user account.
type InitialAdmin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StorageConfig defines where users and sessions are kept.
type StorageConfig struct {
	Driver string `json:"driver"` // "memory" (default), "sqlite", or "postgres"
	DSN    string `json:"dsn"`    // e.g. "gateway.db" or a postgres URL
}

// SessionConfig defines session lifecycle behavior.
type SessionConfig struct {
	// MaxAge is the inactivity threshold after which a session is swept.
	MaxAge Duration `json:"max_age,omitempty"` // default 1h
	// SweepInterval is how often the background sweeper runs. A negative
	// value disables the sweeper, leaving sweeping as an operator-invoked
	// operation.
	SweepInterval   Duration `json:"sweep_interval,omitempty"` // default 5m
	MaxMessageBytes int64    `json:"max_message_bytes,omitempty"`
}

// ShipVoxConfig defines the upstream rate/label service.
type ShipVoxConfig struct {
	BaseURL string   `json:"base_url,omitempty"` // e.g. "http://localhost:8003/api"
	Timeout Duration `json:"timeout,omitempty"`  // per-call budget; default 10s
	Mock    bool     `json:"mock,omitempty"`     // generate quotes locally instead of calling out
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // "json" or "text"
}

// RateLimitConfig defines login rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"` // default 5
	Burst             int     `json:"burst,omitempty"`               // default 10
}

// Duration is a JSON-friendly time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	// JWTSecret is only required for the builtin auth provider.
	if (c.Auth.Provider == "" || c.Auth.Provider == "builtin") && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters")
	}
	if knownWeakSecrets[c.Auth.JWTSecret] {
		return fmt.Errorf("auth.jwt_secret is a well-known weak secret, generate a new one")
	}
	if c.Auth.Provider == "jwks" && c.Auth.JWKSIssuer == "" {
		return fmt.Errorf("auth.jwks_issuer is required when provider is jwks")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Auth.JWTExpiry.Duration == 0 {
		c.Auth.JWTExpiry.Duration = 30 * time.Minute
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Session.MaxAge.Duration == 0 {
		c.Session.MaxAge.Duration = 1 * time.Hour
	}
	if c.Session.SweepInterval.Duration == 0 {
		c.Session.SweepInterval.Duration = 5 * time.Minute
	}
	if c.Session.MaxMessageBytes == 0 {
		c.Session.MaxMessageBytes = 64 * 1024 // 64KB
	}
	if c.ShipVox.BaseURL == "" {
		c.ShipVox.BaseURL = "http://localhost:8003/api"
	}
	if c.ShipVox.Timeout.Duration == 0 {
		c.ShipVox.Timeout.Duration = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1024 * 1024 // 1MB
	}
}
