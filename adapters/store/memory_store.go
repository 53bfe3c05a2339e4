package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// MemorySessionStore is an in-memory implementation of the SessionStore interface
type MemorySessionStore struct {
	sessions map[string]core.Session
	mu       sync.RWMutex
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]core.Session),
	}
}

var _ ports.SessionStore = (*MemorySessionStore)(nil)

// Create inserts a new session
func (s *MemorySessionStore) Create(ctx context.Context, session core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return core.ConflictError{Op: "store.CreateSession", Field: "session_id"}
	}
	s.sessions[session.ID] = session
	return nil
}

// Get loads a session by ID
func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return core.Session{}, core.ErrNotFound
	}
	return session, nil
}

// Revoke marks a session as revoked, keeping the first revocation
func (s *MemorySessionStore) Revoke(ctx context.Context, sessionID string, now time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return core.ErrNotFound
	}
	if session.RevokedAt == nil {
		revokedAt := now
		session.RevokedAt = &revokedAt
		session.RevocationReason = reason
		s.sessions[sessionID] = session
	}
	return nil
}

// RevokeOwned revokes a not yet revoked session owned by identityID
func (s *MemorySessionStore) RevokeOwned(ctx context.Context, sessionID, identityID string, now time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists || session.IdentityID != identityID || session.RevokedAt != nil {
		return false, nil
	}
	revokedAt := now
	session.RevokedAt = &revokedAt
	session.RevocationReason = reason
	s.sessions[sessionID] = session
	return true, nil
}

// Rotate retires replacedID and inserts next under the store lock
func (s *MemorySessionStore) Rotate(ctx context.Context, replacedID string, next core.Session, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.sessions[replacedID]
	if !exists || old.IdentityID != next.IdentityID {
		return core.ErrNotFound
	}
	if old.RevokedAt != nil {
		return core.ErrSessionRevoked
	}
	if _, exists := s.sessions[next.ID]; exists {
		return core.ConflictError{Op: "store.RotateSession", Field: "session_id"}
	}

	revokedAt := now
	old.RevokedAt = &revokedAt
	old.RevocationReason = core.ReasonRotated
	s.sessions[replacedID] = old
	s.sessions[next.ID] = next
	return nil
}

// RevokeAll revokes every active session of identityID
func (s *MemorySessionStore) RevokeAll(ctx context.Context, identityID string, now time.Time, reason string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked []string
	for id, session := range s.sessions {
		if session.IdentityID != identityID || !session.Active(now) {
			continue
		}
		revokedAt := now
		session.RevokedAt = &revokedAt
		session.RevocationReason = reason
		s.sessions[id] = session
		revoked = append(revoked, id)
	}
	sort.Strings(revoked)
	return revoked, nil
}

// ListActive returns the active sessions of identityID, newest first
func (s *MemorySessionStore) ListActive(ctx context.Context, identityID string, now time.Time) ([]core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []core.Session
	for _, session := range s.sessions {
		if session.IdentityID == identityID && session.Active(now) {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

// MemoryIdentityStore is an in-memory implementation of the IdentityStore interface
type MemoryIdentityStore struct {
	identities map[string]core.Identity
	byWallet   map[string]string
	byReferral map[string]string
	balances   map[string]core.Balance
	mu         sync.RWMutex
}

// NewMemoryIdentityStore creates a new in-memory identity store
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		identities: make(map[string]core.Identity),
		byWallet:   make(map[string]string),
		byReferral: make(map[string]string),
		balances:   make(map[string]core.Balance),
	}
}

var _ ports.IdentityStore = (*MemoryIdentityStore)(nil)

// FindByWallet looks an identity up by wallet address
func (s *MemoryIdentityStore) FindByWallet(ctx context.Context, walletAddress string) (core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byWallet[walletAddress]
	if !exists {
		return core.Identity{}, core.ErrNotFound
	}
	return s.identities[id], nil
}

// FindByID looks an identity up by ID
func (s *MemoryIdentityStore) FindByID(ctx context.Context, identityID string) (core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[identityID]
	if !exists {
		return core.Identity{}, core.ErrNotFound
	}
	return identity, nil
}

// CreateWithBalance stores the identity and its balance, or neither
func (s *MemoryIdentityStore) CreateWithBalance(ctx context.Context, identity core.Identity, balance core.Balance) error {
	const op = "store.CreateIdentity"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byWallet[identity.WalletAddress]; exists {
		return core.ConflictError{Op: op, Field: "wallet_address"}
	}
	if _, exists := s.byReferral[identity.ReferralCode]; exists {
		return core.ConflictError{Op: op, Field: "referral_code"}
	}
	if _, exists := s.identities[identity.ID]; exists {
		return core.ConflictError{Op: op, Field: "id"}
	}

	s.identities[identity.ID] = identity
	s.byWallet[identity.WalletAddress] = identity.ID
	s.byReferral[identity.ReferralCode] = identity.ID
	s.balances[identity.ID] = balance
	return nil
}

// SetStatus changes the status of an identity. Status is owned by identity
// management; the auth core only reads it.
func (s *MemoryIdentityStore) SetStatus(identityID string, status core.IdentityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[identityID]
	if !exists {
		return core.ErrNotFound
	}
	identity.Status = status
	s.identities[identityID] = identity
	return nil
}

// Balance returns the balance record of identityID
func (s *MemoryIdentityStore) Balance(identityID string) (core.Balance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, exists := s.balances[identityID]
	return balance, exists
}
