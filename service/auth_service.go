package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
)

// Deps are the collaborators of AuthService. Events may be nil.
type Deps struct {
	Verifier   ports.SignatureVerifier
	Tokenizer  ports.Tokenizer
	Identities ports.IdentityStore
	Sessions   ports.SessionStore
	Cache      ports.RevocationCache
	Nonces     ports.NonceStore
	Events     ports.EventPublisher
}

// Options tune AuthService. Zero durations fall back to the defaults below.
type Options struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ChallengeTTL     time.Duration
	OperationTimeout time.Duration

	// RotationHold is how long a claimed refresh token stays in flight when its
	// rotation does not complete.
	RotationHold time.Duration

	// RequireChallenge makes Verify accept only nonces issued by CreateChallenge.
	RequireChallenge bool

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

const (
	DefaultAccessTTL        = time.Hour
	DefaultRefreshTTL       = 7 * 24 * time.Hour
	DefaultChallengeTTL     = 5 * time.Minute
	DefaultOperationTimeout = 5 * time.Second
	DefaultRotationHold     = 30 * time.Second
)

// AuthService handles authentication business logic
type AuthService struct {
	verifier ports.SignatureVerifier
	nonces   ports.NonceStore
	sessions ports.SessionStore
	cache    ports.RevocationCache
	events   ports.EventPublisher

	bootstrap *IdentityBootstrap
	issuer    *TokenIssuer
	rotation  *RotationProtocol
	guard     *AccessGuard

	challengeTTL     time.Duration
	operationTimeout time.Duration
	requireChallenge bool

	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.Recorder
}

// NewAuthService creates a new authentication service
func NewAuthService(deps Deps, opts Options) (*AuthService, error) {
	switch {
	case deps.Verifier == nil:
		return nil, errors.New("service: nil signature verifier")
	case deps.Tokenizer == nil:
		return nil, errors.New("service: nil tokenizer")
	case deps.Identities == nil || deps.Sessions == nil:
		return nil, errors.New("service: nil store")
	case deps.Cache == nil || deps.Nonces == nil:
		return nil, errors.New("service: nil cache")
	}

	opts = withDefaults(opts)
	if opts.AccessTTL >= opts.RefreshTTL {
		return nil, fmt.Errorf("service: access ttl %s must be shorter than refresh ttl %s", opts.AccessTTL, opts.RefreshTTL)
	}

	events := deps.Events
	if events == nil {
		events = noopEvents{}
	}

	issuer := &TokenIssuer{
		tokenizer:  deps.Tokenizer,
		sessions:   deps.Sessions,
		cache:      deps.Cache,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Now,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}

	return &AuthService{
		verifier:  deps.Verifier,
		nonces:    deps.Nonces,
		sessions:  deps.Sessions,
		cache:     deps.Cache,
		events:    events,
		bootstrap: NewIdentityBootstrap(deps.Identities, opts.Now, opts.Logger),
		issuer:    issuer,
		rotation: &RotationProtocol{
			tokenizer:  deps.Tokenizer,
			sessions:   deps.Sessions,
			identities: deps.Identities,
			cache:      deps.Cache,
			issuer:     issuer,
			events:     events,
			hold:       opts.RotationHold,
			now:        opts.Now,
			log:        opts.Logger,
			metrics:    opts.Metrics,
		},
		guard: &AccessGuard{
			tokenizer:  deps.Tokenizer,
			identities: deps.Identities,
			sessions:   deps.Sessions,
			now:        opts.Now,
		},
		challengeTTL:     opts.ChallengeTTL,
		operationTimeout: opts.OperationTimeout,
		requireChallenge: opts.RequireChallenge,
		now:              opts.Now,
		log:              opts.Logger,
		metrics:          opts.Metrics,
	}, nil
}

func withDefaults(o Options) Options {
	if o.AccessTTL <= 0 {
		o.AccessTTL = DefaultAccessTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = DefaultRefreshTTL
	}
	if o.ChallengeTTL <= 0 {
		o.ChallengeTTL = DefaultChallengeTTL
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = DefaultOperationTimeout
	}
	if o.RotationHold <= 0 {
		o.RotationHold = DefaultRotationHold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// detach returns a context that survives caller cancellation but is bounded by
// the operation timeout. Issuance and rotation must not stop halfway.
func (s *AuthService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.operationTimeout)
}

// Challenge is a nonce a wallet signs to prove key ownership
type Challenge struct {
	Nonce     string
	Message   string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// CreateChallenge generates a new authentication challenge
func (s *AuthService) CreateChallenge(ctx context.Context) (Challenge, error) {
	// Generate random nonce
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return Challenge{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	if err := s.nonces.Issue(ctx, nonce, s.challengeTTL); err != nil {
		return Challenge{}, fmt.Errorf("failed to store nonce: %w", err)
	}

	return Challenge{
		Nonce:     nonce,
		Message:   core.ChallengeMessage(nonce),
		ExpiresAt: s.now().UTC().Add(s.challengeTTL),
		ExpiresIn: s.challengeTTL,
	}, nil
}

// VerifyRequest carries a signed challenge
type VerifyRequest struct {
	WalletAddress string
	Signature     string
	Nonce         string
	Client        core.ClientInfo
}

// LoginResult is the outcome of a successful Verify
type LoginResult struct {
	Identity core.Identity
	Tokens   core.Issued
}

// Verify authenticates a wallet by its signature over the challenge message,
// creating the identity on first sight, and opens a new session.
func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (LoginResult, error) {
	res, err := s.verify(ctx, req)
	s.metrics.Verify(core.Kind(err))
	if err != nil {
		s.log.Info("auth.verify.failed", "kind", core.Kind(err), "error", err)
		return LoginResult{}, err
	}
	s.log.Info("auth.verify.ok", "identity_id", res.Identity.ID, "session_id", res.Tokens.SessionID)
	return res, nil
}

func (s *AuthService) verify(ctx context.Context, req VerifyRequest) (LoginResult, error) {
	address, ok := s.verifier.NormalizeAddress(req.WalletAddress)
	if !ok {
		return LoginResult{}, fmt.Errorf("%w: malformed %s wallet address", core.ErrInvalidInput, s.verifier.Chain())
	}
	if req.Signature == "" || req.Nonce == "" {
		return LoginResult{}, fmt.Errorf("%w: signature and nonce are required", core.ErrInvalidInput)
	}

	// Verify the signature
	if !s.verifier.Verify(core.ChallengeMessage(req.Nonce), req.Signature, address) {
		return LoginResult{}, core.ErrInvalidSignature
	}

	ctx, cancel := s.detach(ctx)
	defer cancel()

	if s.requireChallenge {
		issued, err := s.nonces.Consume(ctx, req.Nonce)
		if err != nil {
			return LoginResult{}, err
		}
		if !issued {
			return LoginResult{}, fmt.Errorf("%w: unknown or used challenge", core.ErrInvalidSignature)
		}
	}

	identity, err := s.bootstrap.ResolveOrCreate(ctx, address)
	if err != nil {
		return LoginResult{}, err
	}
	if identity.Status != core.IdentityActive {
		return LoginResult{}, core.ErrIdentityDisabled
	}

	tokens, err := s.issuer.Issue(ctx, identity, core.Provenance{
		WalletAddress: address,
		Signature:     req.Signature,
		Nonce:         req.Nonce,
		Client:        req.Client,
	})
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Identity: identity, Tokens: tokens}, nil
}

// RefreshRequest carries a refresh token. Subject, when set, is the identity
// the caller already authenticated as; the token must belong to it.
type RefreshRequest struct {
	RefreshToken string
	Subject      string
	Client       core.ClientInfo
}

// Refresh rotates the refresh token and issues new access and refresh tokens
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (core.Issued, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	issued, err := s.rotation.Rotate(ctx, req.RefreshToken, req.Subject, req.Client)
	s.metrics.Rotate(core.Kind(err))
	if err != nil {
		s.log.Info("auth.rotate.failed", "kind", core.Kind(err), "error", err)
		return core.Issued{}, err
	}
	return issued, nil
}

// Logout revokes the caller's session, or every active session of the
// identity when all is set, and returns the number of revoked sessions.
func (s *AuthService) Logout(ctx context.Context, sessionID, identityID string, all bool) (int, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	now := s.now().UTC()
	reason := core.ReasonLogout

	var revoked, sweep []string
	if all {
		reason = core.ReasonLogoutAll
		ids, err := s.sessions.RevokeAll(ctx, identityID, now, reason)
		if err != nil {
			return 0, err
		}
		revoked = ids
	} else {
		ok, err := s.sessions.RevokeOwned(ctx, sessionID, identityID, now, reason)
		if err != nil {
			return 0, err
		}
		if ok {
			revoked = []string{sessionID}
		} else if owned, err := s.sessions.Get(ctx, sessionID); err == nil && owned.IdentityID == identityID {
			// Already revoked; drop any entry left behind.
			sweep = []string{sessionID}
		}
	}
	s.metrics.SessionsRevoked(reason, len(revoked))

	if err := s.cache.Delete(ctx, append(sweep, revoked...)...); err != nil {
		// The store revocation already holds; stale entries expire on their own.
		s.log.Warn("auth.cache.sweep_failed", "identity_id", identityID, "error", err)
	}

	// Publish logout event for cross-instance notifications
	if len(revoked) > 0 {
		if err := s.events.PublishLogout(ctx, identityID, revoked); err != nil {
			s.log.Warn("auth.events.publish_failed", "topic", "logout", "identity_id", identityID, "error", err)
		}
	}

	s.log.Info("auth.logout", "identity_id", identityID, "session_id", sessionID, "all", all, "revoked", len(revoked))
	return len(revoked), nil
}

// Authenticate resolves an access token to a principal with a live session.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (core.Principal, error) {
	return s.guard.Authenticate(ctx, accessToken)
}

// ResolveIdentity resolves an access token to a principal without checking
// that its session is still live.
func (s *AuthService) ResolveIdentity(ctx context.Context, accessToken string) (core.Principal, error) {
	return s.guard.ResolveIdentity(ctx, accessToken)
}

// CurrentIdentity returns the principal attached to ctx by the access guard.
func (s *AuthService) CurrentIdentity(ctx context.Context) (core.Principal, error) {
	p, ok := core.PrincipalFrom(ctx)
	if !ok {
		return core.Principal{}, core.ErrInvalidToken
	}
	return p, nil
}

// ListSessions returns the active sessions of identityID, newest first.
func (s *AuthService) ListSessions(ctx context.Context, identityID string) ([]core.Session, error) {
	return s.sessions.ListActive(ctx, identityID, s.now().UTC())
}

type noopEvents struct{}

func (noopEvents) PublishLogout(context.Context, string, []string) error { return nil }

func (noopEvents) PublishTheftDetected(context.Context, string, string, []string) error {
	return nil
}
