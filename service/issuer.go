package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
)

// TokenIssuer mints token pairs and records the session they belong to.
type TokenIssuer struct {
	tokenizer  ports.Tokenizer
	sessions   ports.SessionStore
	cache      ports.RevocationCache
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	log        *slog.Logger
	metrics    *metrics.Recorder
}

// Issue creates a new session for identity. The session row is written first,
// then the cache entry; if the cache write fails the row is revoked again and
// no tokens are returned.
func (t *TokenIssuer) Issue(ctx context.Context, identity core.Identity, prov core.Provenance) (core.Issued, error) {
	return t.issue(ctx, identity, prov, t.sessions.Create)
}

// Reissue is Issue for a rotation: replacedID is retired and the new row
// inserted in a single store operation.
func (t *TokenIssuer) Reissue(ctx context.Context, identity core.Identity, prov core.Provenance, replacedID string) (core.Issued, error) {
	return t.issue(ctx, identity, prov, func(ctx context.Context, session core.Session) error {
		return t.sessions.Rotate(ctx, replacedID, session, session.CreatedAt)
	})
}

func (t *TokenIssuer) issue(ctx context.Context, identity core.Identity, prov core.Provenance,
	persist func(context.Context, core.Session) error) (core.Issued, error) {
	now := t.now().UTC()
	sessionID := uuid.NewString()
	refreshExpiresAt := now.Add(t.refreshTTL)

	claims := core.TokenClaims{
		Subject:       identity.ID,
		WalletAddress: identity.WalletAddress,
		SessionID:     sessionID,
		IssuedAt:      now,
		ExpiresAt:     now.Add(t.accessTTL),
	}
	accessToken, err := t.tokenizer.SessionToAccessToken(claims)
	if err != nil {
		return core.Issued{}, fmt.Errorf("failed to create access token: %w", err)
	}

	claims.ExpiresAt = refreshExpiresAt
	refreshToken, err := t.tokenizer.SessionToRefreshToken(claims)
	if err != nil {
		return core.Issued{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	session := core.Session{
		ID:            sessionID,
		IdentityID:    identity.ID,
		WalletAddress: prov.WalletAddress,
		Signature:     prov.Signature,
		Nonce:         prov.Nonce,
		IPAddress:     prov.Client.IPAddress,
		UserAgent:     prov.Client.UserAgent,
		ExpiresAt:     refreshExpiresAt,
		CreatedAt:     now,
	}
	if err := persist(ctx, session); err != nil {
		return core.Issued{}, fmt.Errorf("failed to store session: %w", err)
	}

	if err := t.cache.Put(ctx, sessionID, hashToken(refreshToken), t.refreshTTL); err != nil {
		if rerr := t.sessions.Revoke(ctx, sessionID, now, core.ReasonIssueFailed); rerr != nil {
			t.log.Error("auth.issue.compensation_failed",
				"session_id", sessionID, "identity_id", identity.ID, "error", rerr)
		} else {
			t.metrics.SessionsRevoked(core.ReasonIssueFailed, 1)
		}
		t.log.Error("auth.issue.cache_failed", "session_id", sessionID, "identity_id", identity.ID, "error", err)
		return core.Issued{}, fmt.Errorf("failed to cache session: %w", err)
	}

	return core.Issued{
		SessionID:        sessionID,
		AccessToken:      accessToken,
		AccessExpiresAt:  claims.IssuedAt.Add(t.accessTTL),
		AccessExpiresIn:  t.accessTTL,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
