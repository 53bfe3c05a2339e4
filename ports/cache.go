package ports

import (
	"context"
	"time"
)

// ClaimState is the outcome of RevocationCache.Claim.
type ClaimState int

const (
	// ClaimAbsent means there is no entry: the refresh secret is not usable.
	ClaimAbsent ClaimState = iota
	// ClaimTaken means the caller took the refresh hash and now owns the rotation.
	ClaimTaken
	// ClaimInFlight means another caller owns a rotation of this session.
	ClaimInFlight
)

func (s ClaimState) String() string {
	switch s {
	case ClaimTaken:
		return "taken"
	case ClaimInFlight:
		return "in_flight"
	default:
		return "absent"
	}
}

// RevocationCache mirrors the hash of the current refresh token of every live session.
type RevocationCache interface {
	// Put binds sessionID to refreshHash for ttl.
	Put(ctx context.Context, sessionID, refreshHash string, ttl time.Duration) error

	// Claim atomically reads the entry for sessionID and, when it holds a
	// refresh hash, replaces it with an in-flight marker that expires after hold.
	// Of concurrent callers at most one observes ClaimTaken.
	Claim(ctx context.Context, sessionID string, hold time.Duration) (refreshHash string, state ClaimState, err error)

	// Delete removes entries; missing keys are ignored.
	Delete(ctx context.Context, sessionIDs ...string) error
}

// NonceStore keeps challenge nonces issued by the challenge endpoint.
type NonceStore interface {
	// Issue records nonce as outstanding for ttl.
	Issue(ctx context.Context, nonce string, ttl time.Duration) error

	// Consume removes nonce and reports whether it was outstanding.
	Consume(ctx context.Context, nonce string) (bool, error)
}
