package ports

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// SessionStore is the authoritative, append-mostly session log.
// Rows are only ever inserted or have revoked_at set; they are never deleted.
type SessionStore interface {
	// Create inserts a new session row.
	Create(ctx context.Context, session core.Session) error

	// Get loads a session by ID. Returns core.ErrNotFound when absent.
	Get(ctx context.Context, sessionID string) (core.Session, error)

	// Revoke sets revoked_at on one session if not already set (idempotent).
	Revoke(ctx context.Context, sessionID string, now time.Time, reason string) error

	// RevokeOwned revokes one session only if it belongs to identityID.
	// Returns false when no active row matched.
	RevokeOwned(ctx context.Context, sessionID, identityID string, now time.Time, reason string) (bool, error)

	// Rotate revokes replacedID (reason "rotated") and inserts next in one step.
	// It is serialized with RevokeAll for the same identity, so a rotation
	// either finishes before a revoke-all (which then revokes next) or finds
	// replacedID revoked. Returns core.ErrNotFound when replacedID does not
	// exist or belongs to another identity, core.ErrSessionRevoked when it is
	// already revoked.
	Rotate(ctx context.Context, replacedID string, next core.Session, now time.Time) error

	// RevokeAll revokes every active session of identityID and returns the revoked IDs.
	RevokeAll(ctx context.Context, identityID string, now time.Time, reason string) ([]string, error)

	// ListActive returns the active sessions of identityID, newest first.
	ListActive(ctx context.Context, identityID string, now time.Time) ([]core.Session, error)
}

// IdentityStore persists identities and their dependent balance record.
type IdentityStore interface {
	// FindByWallet returns core.ErrNotFound when no identity owns the address.
	FindByWallet(ctx context.Context, walletAddress string) (core.Identity, error)

	// FindByID returns core.ErrNotFound when the identity does not exist.
	FindByID(ctx context.Context, identityID string) (core.Identity, error)

	// CreateWithBalance writes the identity and its balance in one transaction.
	// A uniqueness violation is reported as core.ConflictError.
	CreateWithBalance(ctx context.Context, identity core.Identity, balance core.Balance) error
}
