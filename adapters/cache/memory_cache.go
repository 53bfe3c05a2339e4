package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

type entry struct {
	value     string
	inFlight  bool
	expiresAt time.Time
}

// MemoryCache is an in-memory RevocationCache for tests and single-node development.
// Expired entries are dropped lazily.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemoryCache creates a new in-memory cache. A nil clock uses time.Now.
func NewMemoryCache(now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		entries: make(map[string]entry),
		now:     now,
	}
}

var _ ports.RevocationCache = (*MemoryCache)(nil)

// Put binds the session to the refresh hash
func (c *MemoryCache) Put(ctx context.Context, sessionID, refreshHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache: ttl must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[sessionID] = entry{value: refreshHash, expiresAt: c.now().Add(ttl)}
	return nil
}

// Claim takes the refresh hash under one lock and leaves an in-flight entry
func (c *MemoryCache) Claim(ctx context.Context, sessionID string, hold time.Duration) (string, ports.ClaimState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[sessionID]
	if !ok || !now.Before(e.expiresAt) {
		delete(c.entries, sessionID)
		return "", ports.ClaimAbsent, nil
	}
	if e.inFlight {
		return "", ports.ClaimInFlight, nil
	}
	c.entries[sessionID] = entry{inFlight: true, expiresAt: now.Add(hold)}
	return e.value, ports.ClaimTaken, nil
}

// Delete removes entries
func (c *MemoryCache) Delete(ctx context.Context, sessionIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range sessionIDs {
		delete(c.entries, id)
	}
	return nil
}

// Has reports whether a usable refresh hash is cached for sessionID.
func (c *MemoryCache) Has(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sessionID]
	return ok && !e.inFlight && c.now().Before(e.expiresAt)
}

// MemoryNonceStore is an in-memory NonceStore
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

// NewMemoryNonceStore creates a new in-memory nonce store. A nil clock uses time.Now.
func NewMemoryNonceStore(now func() time.Time) *MemoryNonceStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryNonceStore{
		nonces: make(map[string]time.Time),
		now:    now,
	}
}

var _ ports.NonceStore = (*MemoryNonceStore)(nil)

func (s *MemoryNonceStore) Issue(ctx context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.nonces[nonce]; ok && s.now().Before(exp) {
		return core.ConflictError{Op: "nonce.issue", Field: "nonce"}
	}
	s.nonces[nonce] = s.now().Add(ttl)
	return nil
}

func (s *MemoryNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(s.nonces, nonce)
	return s.now().Before(exp), nil
}
