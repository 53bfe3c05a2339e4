package service

import (
	"context"
	"errors"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// AccessGuard resolves access tokens to principals on every protected request.
type AccessGuard struct {
	tokenizer  ports.Tokenizer
	identities ports.IdentityStore
	sessions   ports.SessionStore
	now        func() time.Time
}

// Authenticate verifies accessToken and checks that its identity is active and
// its session is still live.
func (g *AccessGuard) Authenticate(ctx context.Context, accessToken string) (core.Principal, error) {
	principal, err := g.ResolveIdentity(ctx, accessToken)
	if err != nil {
		return core.Principal{}, err
	}

	session, err := g.sessions.Get(ctx, principal.SessionID)
	if err != nil {
		return core.Principal{}, err
	}
	if session.IdentityID != principal.Identity.ID {
		return core.Principal{}, core.ErrInvalidToken
	}
	if !session.Active(g.now()) {
		return core.Principal{}, core.ErrSessionRevoked
	}

	return principal, nil
}

// ResolveIdentity performs the checks of Authenticate except session liveness.
func (g *AccessGuard) ResolveIdentity(ctx context.Context, accessToken string) (core.Principal, error) {
	claims, err := g.tokenizer.AccessTokenToClaims(accessToken)
	if err != nil {
		return core.Principal{}, err
	}

	identity, err := g.identities.FindByID(ctx, claims.Subject)
	if errors.Is(err, core.ErrNotFound) {
		return core.Principal{}, core.ErrUnknownIdentity
	}
	if err != nil {
		return core.Principal{}, err
	}
	if identity.Status != core.IdentityActive {
		return core.Principal{}, core.ErrIdentityDisabled
	}

	return core.Principal{Identity: identity, SessionID: claims.SessionID}, nil
}
