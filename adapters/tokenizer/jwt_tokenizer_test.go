package tokenizer

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/walletauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	accessSecret  = []byte("access-secret-access-secret-0123456789")
	refreshSecret = []byte("refresh-secret-refresh-secret-01234567")
)

func newTokenizer(t *testing.T, now time.Time) *JWTTokenizer {
	t.Helper()
	tk, err := NewJWTTokenizer(Config{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		Issuer:        "walletauth-test",
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)
	return tk.(*JWTTokenizer)
}

func sampleClaims(now time.Time, ttl time.Duration) core.TokenClaims {
	return core.TokenClaims{
		Subject:       "6f1c2a8e-5d7b-4d0e-9a55-0c1f2e3d4b5a",
		WalletAddress: "vines1vzrYbzLMRdu58em5RbLnzAxcWN8n8PaaiqyEU",
		SessionID:     "2b4d6f80-1a3c-4e5f-8a9b-cdef01234567",
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	tk := newTokenizer(t, now)
	in := sampleClaims(now, time.Hour)

	token, err := tk.SessionToAccessToken(in)
	require.NoError(t, err)

	out, err := tk.AccessTokenToClaims(token)
	require.NoError(t, err)
	assert.Equal(t, in.Subject, out.Subject)
	assert.Equal(t, in.WalletAddress, out.WalletAddress)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.NotEmpty(t, out.TokenID)
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	now := time.Now()
	tk := newTokenizer(t, now)
	c := sampleClaims(now, time.Hour)

	access, err := tk.SessionToAccessToken(c)
	require.NoError(t, err)
	refresh, err := tk.SessionToRefreshToken(c)
	require.NoError(t, err)

	_, err = tk.RefreshTokenToClaims(access)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	_, err = tk.AccessTokenToClaims(refresh)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	tk := newTokenizer(t, time.Now())

	token, err := tk.SessionToRefreshToken(sampleClaims(issued, time.Hour))
	require.NoError(t, err)

	_, err = tk.RefreshTokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestForeignSigningMethodRejected(t *testing.T) {
	now := time.Now()
	tk := newTokenizer(t, now)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "walletauth-test",
			Subject:   "someone",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		SessionID: "sid",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tk.AccessTokenToClaims(token)
	assert.True(t, errors.Is(err, core.ErrInvalidToken))
}

func TestWrongIssuerRejected(t *testing.T) {
	now := time.Now()
	tk := newTokenizer(t, now)
	other, err := NewJWTTokenizer(Config{AccessSecret: accessSecret, RefreshSecret: refreshSecret, Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := other.SessionToAccessToken(sampleClaims(now, time.Hour))
	require.NoError(t, err)

	_, err = tk.AccessTokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSignRequiresSession(t *testing.T) {
	tk := newTokenizer(t, time.Now())
	_, err := tk.SessionToAccessToken(core.TokenClaims{Subject: "x"})
	assert.Error(t, err)

	_, err = NewJWTTokenizer(Config{AccessSecret: accessSecret})
	assert.Error(t, err)
}
