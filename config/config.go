// Package config defines the walletauth configuration and loads it with koanf.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// MinSecretLength is the minimum length in bytes of a signing secret.
const MinSecretLength = 32

// Config is the root configuration.
type Config struct {
	HTTP     HTTPSection     `koanf:"http"`
	Log      LogSection      `koanf:"log"`
	Database DatabaseSection `koanf:"database"`
	Redis    RedisSection    `koanf:"redis"`
	Auth     AuthSection     `koanf:"auth"`
	Events   EventsSection   `koanf:"events"`
}

// HTTPSection configures the HTTP server.
type HTTPSection struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is the sustained requests per second allowed per client IP on
	// the challenge and verify endpoints. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// RateLimitIdle drops a client's limiter after this long without requests.
	RateLimitIdle time.Duration `koanf:"rate_limit_idle"`

	TrustedProxies []string `koanf:"trusted_proxies"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DatabaseSection configures the session and identity stores.
// An empty URL selects the in-memory stores.
type DatabaseSection struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

// RedisSection configures the revocation cache and nonce store.
// An empty URL selects the in-memory implementations.
type RedisSection struct {
	URL string `koanf:"url"`
}

// AuthSection configures signatures, tokens and rotation.
type AuthSection struct {
	Chain         string `koanf:"chain"`
	AccessSecret  string `koanf:"access_secret"`
	RefreshSecret string `koanf:"refresh_secret"`
	Issuer        string `koanf:"issuer"`

	AccessTTL        time.Duration `koanf:"access_ttl"`
	RefreshTTL       time.Duration `koanf:"refresh_ttl"`
	ClockSkew        time.Duration `koanf:"clock_skew"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	ChallengeTTL     time.Duration `koanf:"challenge_ttl"`

	// RotationHold bounds how long a claimed refresh token stays unusable
	// when its rotation does not complete.
	RotationHold time.Duration `koanf:"rotation_hold"`

	RequireChallenge      bool `koanf:"require_challenge"`
	ReturnRotatedRefresh  bool `koanf:"return_rotated_refresh"`
	RefreshRequiresAccess bool `koanf:"refresh_requires_access"`
}

// EventsSection configures session event publishing.
type EventsSection struct {
	Enabled     bool   `koanf:"enabled"`
	TopicPrefix string `koanf:"topic_prefix"`
}

// Default returns the configuration used before any file or env override.
func Default() Config {
	return Config{
		HTTP: HTTPSection{
			Addr:            ":9000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       5,
			RateBurst:       10,
			RateLimitIdle:   3 * time.Minute,
		},
		Log: LogSection{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseSection{
			MaxConns: 10,
		},
		Auth: AuthSection{
			Chain:                 "solana",
			Issuer:                "walletauth",
			AccessTTL:             time.Hour,
			RefreshTTL:            168 * time.Hour,
			ClockSkew:             30 * time.Second,
			OperationTimeout:      5 * time.Second,
			ChallengeTTL:          5 * time.Minute,
			RotationHold:          30 * time.Second,
			RequireChallenge:      false,
			ReturnRotatedRefresh:  true,
			RefreshRequiresAccess: true,
		},
		Events: EventsSection{
			TopicPrefix: "walletauth",
		},
	}
}

// Validate reports every problem found in c, joined and wrapped with ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.HTTP.Addr == "" {
		add("http.addr is required")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 || c.HTTP.RateLimitIdle < 0 {
		add("http.rate_limit, http.rate_burst and http.rate_limit_idle must not be negative")
	}

	a := c.Auth
	switch a.Chain {
	case "solana", "ethereum":
	default:
		add("auth.chain %q is not supported", a.Chain)
	}
	if len(a.AccessSecret) < MinSecretLength {
		add("auth.access_secret must be at least %d bytes", MinSecretLength)
	}
	if len(a.RefreshSecret) < MinSecretLength {
		add("auth.refresh_secret must be at least %d bytes", MinSecretLength)
	}
	if a.AccessSecret != "" && a.AccessSecret == a.RefreshSecret {
		add("auth.access_secret and auth.refresh_secret must differ")
	}
	for name, d := range map[string]time.Duration{
		"auth.access_ttl":        a.AccessTTL,
		"auth.refresh_ttl":       a.RefreshTTL,
		"auth.operation_timeout": a.OperationTimeout,
		"auth.challenge_ttl":     a.ChallengeTTL,
		"auth.rotation_hold":     a.RotationHold,
	} {
		if d <= 0 {
			add("%s must be positive", name)
		}
	}
	if a.ClockSkew < 0 {
		add("auth.clock_skew must not be negative")
	}
	if a.AccessTTL > 0 && a.AccessTTL >= a.RefreshTTL {
		add("auth.access_ttl must be shorter than auth.refresh_ttl")
	}

	if c.Events.Enabled && c.Redis.URL == "" {
		add("events.enabled requires redis.url")
	}

	return errors.Join(errs...)
}
