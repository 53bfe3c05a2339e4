package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/walletauth/adapters/cache"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/wallet"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/logging"
	"github.com/layer-3/walletauth/ports"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

const (
	testAccessTTL  = time.Hour
	testRefreshTTL = 168 * time.Hour
	testClockSkew  = 30 * time.Second
	testHold       = 30 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvent struct {
	topic      string
	identityID string
	sessionID  string
	sessionIDs []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishLogout(_ context.Context, identityID string, sessionIDs []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic: "logout", identityID: identityID, sessionIDs: sessionIDs})
	return nil
}

func (p *recordingPublisher) PublishTheftDetected(_ context.Context, identityID, sessionID string, revoked []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{topic: "theft_detected", identityID: identityID, sessionID: sessionID, sessionIDs: revoked})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

type harness struct {
	svc        *AuthService
	clock      *fakeClock
	sessions   *store.MemorySessionStore
	identities *store.MemoryIdentityStore
	cache      *cache.MemoryCache
	nonces     *cache.MemoryNonceStore
	events     *recordingPublisher
}

type harnessOption func(*Deps, *Options)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		clock:      newFakeClock(),
		sessions:   store.NewMemorySessionStore(),
		identities: store.NewMemoryIdentityStore(),
		events:     &recordingPublisher{},
	}
	h.cache = cache.NewMemoryCache(h.clock.Now)
	h.nonces = cache.NewMemoryNonceStore(h.clock.Now)

	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		AccessSecret:  []byte("access-secret-access-secret-access"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-refresh"),
		Issuer:        "walletauth-test",
		ClockSkew:     testClockSkew,
		Now:           h.clock.Now,
	})
	require.NoError(t, err)

	deps := Deps{
		Verifier:   wallet.NewSolanaVerifier(),
		Tokenizer:  tok,
		Identities: h.identities,
		Sessions:   h.sessions,
		Cache:      h.cache,
		Nonces:     h.nonces,
		Events:     h.events,
	}
	options := Options{
		AccessTTL:    testAccessTTL,
		RefreshTTL:   testRefreshTTL,
		RotationHold: testHold,
		Now:          h.clock.Now,
		Logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(&deps, &options)
	}

	h.svc, err = NewAuthService(deps, options)
	require.NoError(t, err)
	return h
}

type testWallet struct {
	address string
	priv    ed25519.PrivateKey
}

func newWallet(t *testing.T) testWallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return testWallet{address: base58.Encode(pub), priv: priv}
}

func (w testWallet) sign(nonce string) string {
	return base58.Encode(ed25519.Sign(w.priv, []byte(core.ChallengeMessage(nonce))))
}

func (h *harness) login(t *testing.T, w testWallet, nonce string) LoginResult {
	t.Helper()
	res, err := h.svc.Verify(context.Background(), VerifyRequest{
		WalletAddress: w.address,
		Signature:     w.sign(nonce),
		Nonce:         nonce,
		Client:        core.ClientInfo{IPAddress: "203.0.113.7", UserAgent: "wallet-test/1.0"},
	})
	require.NoError(t, err)
	return res
}

func (h *harness) rotate(refreshToken string) (core.Issued, error) {
	return h.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: refreshToken})
}

func (h *harness) active(t *testing.T, identityID string) []core.Session {
	t.Helper()
	sessions, err := h.sessions.ListActive(context.Background(), identityID, h.clock.Now())
	require.NoError(t, err)
	return sessions
}

var errInjected = errors.New("injected failure")

// faultyCache fails Put when failPut is set.
type faultyCache struct {
	ports.RevocationCache
	failPut bool
}

func (c *faultyCache) Put(ctx context.Context, sessionID, refreshHash string, ttl time.Duration) error {
	if c.failPut {
		return core.Unavailable("cache.put", errInjected)
	}
	return c.RevocationCache.Put(ctx, sessionID, refreshHash, ttl)
}

// pausingCache blocks the first successful Claim until release is closed.
type pausingCache struct {
	ports.RevocationCache
	once    sync.Once
	claimed chan struct{}
	release chan struct{}
}

func newPausingCache(inner ports.RevocationCache) *pausingCache {
	return &pausingCache{
		RevocationCache: inner,
		claimed:         make(chan struct{}),
		release:         make(chan struct{}),
	}
}

func (c *pausingCache) Claim(ctx context.Context, sessionID string, hold time.Duration) (string, ports.ClaimState, error) {
	hash, state, err := c.RevocationCache.Claim(ctx, sessionID, hold)
	if state == ports.ClaimTaken {
		c.once.Do(func() {
			close(c.claimed)
			<-c.release
		})
	}
	return hash, state, err
}

// flakySessions fails Get once when failNextGet is set.
type flakySessions struct {
	ports.SessionStore
	mu          sync.Mutex
	failNextGet bool
}

func (s *flakySessions) Get(ctx context.Context, sessionID string) (core.Session, error) {
	s.mu.Lock()
	fail := s.failNextGet
	s.failNextGet = false
	s.mu.Unlock()
	if fail {
		return core.Session{}, core.Unavailable("store.GetSession", errInjected)
	}
	return s.SessionStore.Get(ctx, sessionID)
}

// pausingSessions blocks the first Rotate until release is closed. With
// afterCommit set it pauses once the inner store has committed, otherwise
// before the store is touched.
type pausingSessions struct {
	ports.SessionStore
	afterCommit bool
	once        sync.Once
	paused      chan struct{}
	release     chan struct{}
}

func newPausingSessions(inner ports.SessionStore, afterCommit bool) *pausingSessions {
	return &pausingSessions{
		SessionStore: inner,
		afterCommit:  afterCommit,
		paused:       make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (s *pausingSessions) pause() {
	s.once.Do(func() {
		close(s.paused)
		<-s.release
	})
}

func (s *pausingSessions) Rotate(ctx context.Context, replacedID string, next core.Session, now time.Time) error {
	if !s.afterCommit {
		s.pause()
		return s.SessionStore.Rotate(ctx, replacedID, next, now)
	}
	err := s.SessionStore.Rotate(ctx, replacedID, next, now)
	s.pause()
	return err
}
