package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := map[string]error{
		"ok":               nil,
		"InvalidSignature": ErrInvalidSignature,
		"InvalidToken":     fmt.Errorf("parse: %w", ErrInvalidToken),
		"SessionRevoked":   ErrSessionRevoked,
		"SessionExpired":   ErrSessionExpired,
		"NotFound":         ErrNotFound,
		"UnknownIdentity":  ErrUnknownIdentity,
		"IdentityDisabled": ErrIdentityDisabled,
		"Unavailable":      Unavailable("cache.claim", io.ErrUnexpectedEOF),
		"InvalidInput":     fmt.Errorf("%w: empty nonce", ErrInvalidInput),
		"Internal":         ConflictError{Op: "identity.create", Field: "wallet_address"},
	}
	for want, err := range tests {
		assert.Equal(t, want, Kind(err))
	}
	assert.Equal(t, "Unavailable", Kind(context.DeadlineExceeded))
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("session.get", cause)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "session.get: backing store unavailable: connection refused", err.Error())

	var ue *UnavailableError
	assert.ErrorAs(t, err, &ue)
	assert.Equal(t, "session.get", ue.Op)

	assert.NoError(t, Unavailable("noop", nil))
}

func TestConflictError(t *testing.T) {
	err := fmt.Errorf("bootstrap: %w", ConflictError{Op: "identity.create", Field: "referral_code"})
	assert.ErrorIs(t, err, ErrConflict)

	var ce ConflictError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, "referral_code", ce.Field)
	assert.Equal(t, "session.create: conflict", ConflictError{Op: "session.create"}.Error())
}

func TestSessionActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ExpiresAt: now.Add(time.Hour)}
	assert.True(t, s.Active(now))
	assert.False(t, s.Active(now.Add(time.Hour)))

	revoked := now
	s.RevokedAt = &revoked
	assert.False(t, s.Active(now))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	p := Principal{Identity: Identity{ID: "id-1"}, SessionID: "sid-1"}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), p))
	assert.True(t, ok)
	assert.Equal(t, p, got)
}

func TestZeroBalanceAndChallenge(t *testing.T) {
	b := ZeroBalance("id-1")
	assert.True(t, b.Available.IsZero())
	assert.True(t, b.Locked.IsZero())
	assert.True(t, b.Pending.IsZero())
	assert.Equal(t, "Sign this message to authenticate: abc", ChallengeMessage("abc"))
}
