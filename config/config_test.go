package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := Default()
	c.Auth.AccessSecret = strings.Repeat("a", MinSecretLength)
	c.Auth.RefreshSecret = strings.Repeat("r", MinSecretLength)
	return c
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "solana", c.Auth.Chain)
	assert.Equal(t, time.Hour, c.Auth.AccessTTL)
	assert.Equal(t, 168*time.Hour, c.Auth.RefreshTTL)
	assert.Equal(t, 5*time.Minute, c.Auth.ChallengeTTL)
	assert.Equal(t, 30*time.Second, c.Auth.RotationHold)
	assert.False(t, c.Auth.RequireChallenge)
	assert.True(t, c.Auth.ReturnRotatedRefresh)
	assert.True(t, c.Auth.RefreshRequiresAccess)

	// Secrets have no default.
	assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
	assert.NoError(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"short access secret": {
			mutate: func(c *Config) { c.Auth.AccessSecret = "short" },
			want:   "auth.access_secret",
		},
		"equal secrets": {
			mutate: func(c *Config) { c.Auth.RefreshSecret = c.Auth.AccessSecret },
			want:   "must differ",
		},
		"unknown chain": {
			mutate: func(c *Config) { c.Auth.Chain = "bitcoin" },
			want:   "auth.chain",
		},
		"zero refresh ttl": {
			mutate: func(c *Config) { c.Auth.RefreshTTL = 0 },
			want:   "auth.refresh_ttl must be positive",
		},
		"access ttl not shorter": {
			mutate: func(c *Config) { c.Auth.AccessTTL = c.Auth.RefreshTTL },
			want:   "shorter than",
		},
		"negative rate limit idle": {
			mutate: func(c *Config) { c.HTTP.RateLimitIdle = -time.Second },
			want:   "http.rate_limit_idle",
		},
		"negative skew": {
			mutate: func(c *Config) { c.Auth.ClockSkew = -time.Second },
			want:   "auth.clock_skew",
		},
		"events without redis": {
			mutate: func(c *Config) { c.Events.Enabled = true },
			want:   "events.enabled",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletauth.yaml")
	yaml := `
http:
  addr: ":8080"
log:
  level: debug
auth:
  chain: ethereum
  access_ttl: 15m
  access_secret: "file-access-secret-file-access-secret"
  require_challenge: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("WALLETAUTH_AUTH__ACCESS_TTL", "30m")
	t.Setenv("WALLETAUTH_AUTH__REFRESH_SECRET", "env-refresh-secret-env-refresh-secret")
	t.Setenv("WALLETAUTH_REDIS__URL", "redis://localhost:6379/1")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format, "defaults survive")
	assert.Equal(t, "ethereum", c.Auth.Chain)
	assert.Equal(t, 30*time.Minute, c.Auth.AccessTTL, "env overrides file")
	assert.Equal(t, 168*time.Hour, c.Auth.RefreshTTL)
	assert.True(t, c.Auth.RequireChallenge)
	assert.True(t, c.Auth.ReturnRotatedRefresh)
	assert.Equal(t, "redis://localhost:6379/1", c.Redis.URL)
	assert.NoError(t, c.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
