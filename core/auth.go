package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChallengePrefix is prepended to the nonce to build the message a wallet signs.
const ChallengePrefix = "Sign this message to authenticate: "

// ChallengeMessage returns the exact message a wallet must sign for nonce.
func ChallengeMessage(nonce string) string {
	return ChallengePrefix + nonce
}

// IdentityStatus is owned by the identity-management collaborator.
type IdentityStatus string

const (
	IdentityActive    IdentityStatus = "active"
	IdentitySuspended IdentityStatus = "suspended"
	IdentityBanned    IdentityStatus = "banned"
)

// Identity binds a wallet address to a user
type Identity struct {
	ID            string         `json:"id"`
	WalletAddress string         `json:"walletAddress"`
	ReferralCode  string         `json:"referralCode"`
	Status        IdentityStatus `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Balance is the zero-balance record created together with an identity
type Balance struct {
	IdentityID string
	Available  decimal.Decimal
	Locked     decimal.Decimal
	Pending    decimal.Decimal
}

// ZeroBalance returns an empty balance owned by identityID.
func ZeroBalance(identityID string) Balance {
	return Balance{
		IdentityID: identityID,
		Available:  decimal.Zero,
		Locked:     decimal.Zero,
		Pending:    decimal.Zero,
	}
}

// Revocation reasons recorded on session rows.
const (
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonRotated       = "rotated"
	ReasonTheftDetected = "theft_detected"
	ReasonIssueFailed   = "issue_failed"
)

// Session represents one issued token pair. Rows are never deleted.
type Session struct {
	ID               string     // Embedded in both tokens as "sid"
	IdentityID       string     // Owner
	WalletAddress    string     // Provenance of the authentication event
	Signature        string     // Provenance of the authentication event
	Nonce            string     // Provenance of the authentication event
	IPAddress        string     // Client address, may be empty
	UserAgent        string     // Client user agent, may be empty
	ExpiresAt        time.Time  // Creation time plus refresh lifetime
	RevokedAt        *time.Time // nil when not revoked
	RevocationReason string
	CreatedAt        time.Time
}

// Active reports whether the session is neither revoked nor expired at now.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// Provenance describes the authentication event behind a new session.
type Provenance struct {
	WalletAddress string
	Signature     string
	Nonce         string
	Client        ClientInfo
}

// ClientInfo carries request metadata recorded on sessions.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// TokenClaims is the payload shared by access and refresh tokens.
type TokenClaims struct {
	Subject       string    // Identity ID
	WalletAddress string    // Wallet that authenticated
	SessionID     string    // Session the token belongs to
	TokenID       string    // Unique token identifier (jti)
	IssuedAt      time.Time // When the token was minted
	ExpiresAt     time.Time // When the token stops verifying
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	AccessExpiresIn  time.Duration
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Principal is what AccessGuard attaches to an authenticated request.
type Principal struct {
	Identity  Identity
	SessionID string
}
