package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
)

// RotationProtocol exchanges a refresh token for a new session and detects replays.
//
// The revocation cache decides whether a refresh secret is usable right now;
// the session store decides whether the session exists, who owns it and
// whether it was revoked. A refresh token whose cache entry is gone, or whose
// hash does not match, is treated as stolen: every active session of the
// identity is revoked.
type RotationProtocol struct {
	tokenizer  ports.Tokenizer
	sessions   ports.SessionStore
	identities ports.IdentityStore
	cache      ports.RevocationCache
	issuer     *TokenIssuer
	events     ports.EventPublisher
	hold       time.Duration
	now        func() time.Time
	log        *slog.Logger
	metrics    *metrics.Recorder
}

// Rotate validates refreshToken and replaces its session with a new one.
// A non-empty subject must match the token subject.
func (r *RotationProtocol) Rotate(ctx context.Context, refreshToken, subject string, client core.ClientInfo) (core.Issued, error) {
	claims, err := r.tokenizer.RefreshTokenToClaims(refreshToken)
	if err != nil {
		return core.Issued{}, err
	}
	if subject != "" && subject != claims.Subject {
		return core.Issued{}, fmt.Errorf("%w: refresh token belongs to another identity", core.ErrInvalidToken)
	}

	storedHash, state, err := r.cache.Claim(ctx, claims.SessionID, r.hold)
	if err != nil {
		return core.Issued{}, err
	}
	switch state {
	case ports.ClaimInFlight:
		r.log.Info("auth.rotate.concurrent", "session_id", claims.SessionID, "identity_id", claims.Subject)
		return core.Issued{}, core.ErrSessionRevoked
	case ports.ClaimAbsent:
		return core.Issued{}, r.replayed(ctx, claims, "absent")
	}
	if !tokenMatches(refreshToken, storedHash) {
		return core.Issued{}, r.replayed(ctx, claims, "hash_mismatch")
	}

	// From here on this caller owns the rotation. Failures leave the in-flight
	// marker behind so retries of the same token fail without a cascade until
	// the hold expires.
	session, err := r.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return core.Issued{}, err
	}
	now := r.now().UTC()
	switch {
	case session.IdentityID != claims.Subject:
		return core.Issued{}, fmt.Errorf("%w: session owner mismatch", core.ErrInvalidToken)
	case !session.ExpiresAt.After(now):
		return core.Issued{}, core.ErrSessionExpired
	case session.RevokedAt != nil:
		return core.Issued{}, core.ErrSessionRevoked
	}

	identity, err := r.identities.FindByID(ctx, session.IdentityID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Issued{}, core.ErrUnknownIdentity
	}
	if err != nil {
		return core.Issued{}, err
	}
	if identity.Status != core.IdentityActive {
		return core.Issued{}, core.ErrIdentityDisabled
	}

	// Retiring the old row and inserting the new one is a single store step,
	// serialized with logout-all for the identity.
	issued, err := r.issuer.Reissue(ctx, identity, core.Provenance{
		WalletAddress: session.WalletAddress,
		Signature:     session.Signature,
		Nonce:         session.Nonce,
		Client:        client,
	}, session.ID)
	if err != nil {
		r.log.Info("auth.rotate.issue_failed", "session_id", session.ID, "identity_id", identity.ID, "error", err)
		return core.Issued{}, err
	}
	r.metrics.SessionsRevoked(core.ReasonRotated, 1)

	if err := r.cache.Delete(ctx, session.ID); err != nil {
		r.log.Warn("auth.cache.release_failed", "session_id", session.ID, "error", err)
	}

	r.log.Info("auth.rotate.ok", "identity_id", identity.ID, "session_id", session.ID, "new_session_id", issued.SessionID)
	return issued, nil
}

// replayed handles a refresh token the cache no longer vouches for. A session
// that simply ran out is reported as expired; anything else revokes every
// active session of the identity.
func (r *RotationProtocol) replayed(ctx context.Context, claims core.TokenClaims, signal string) error {
	now := r.now().UTC()

	session, err := r.sessions.Get(ctx, claims.SessionID)
	if err == nil && session.IdentityID == claims.Subject && session.RevokedAt == nil && !session.ExpiresAt.After(now) {
		return core.ErrSessionExpired
	}

	revoked, err := r.sessions.RevokeAll(ctx, claims.Subject, now, core.ReasonTheftDetected)
	if err != nil {
		r.log.Error("auth.rotate.cascade_failed",
			"identity_id", claims.Subject, "session_id", claims.SessionID, "error", err)
		return core.ErrSessionRevoked
	}
	r.metrics.SessionsRevoked(core.ReasonTheftDetected, len(revoked))

	if err := r.cache.Delete(ctx, append(revoked, claims.SessionID)...); err != nil {
		r.log.Warn("auth.cache.sweep_failed", "identity_id", claims.Subject, "error", err)
	}
	if err := r.events.PublishTheftDetected(ctx, claims.Subject, claims.SessionID, revoked); err != nil {
		r.log.Warn("auth.events.publish_failed", "topic", "theft_detected", "identity_id", claims.Subject, "error", err)
	}

	r.log.Warn("auth.rotate.theft_detected",
		"identity_id", claims.Subject,
		"session_id", claims.SessionID,
		"signal", signal,
		"revoked", len(revoked),
	)
	return core.ErrSessionRevoked
}
