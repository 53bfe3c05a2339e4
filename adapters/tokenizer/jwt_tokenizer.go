package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// Config holds the signing material. Secrets are immutable after construction.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	ClockSkew     time.Duration

	// Now overrides the verification clock, used by tests.
	Now func() time.Time
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	clockSkew  time.Duration
	now        func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(cfg Config) (ports.Tokenizer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("tokenizer: empty signing secret")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JWTTokenizer{
		accessKey:  append([]byte(nil), cfg.AccessSecret...),
		refreshKey: append([]byte(nil), cfg.RefreshSecret...),
		issuer:     cfg.Issuer,
		clockSkew:  cfg.ClockSkew,
		now:        now,
	}, nil
}

// SessionToAccessToken signs claims with the access key
func (j *JWTTokenizer) SessionToAccessToken(claims core.TokenClaims) (string, error) {
	return j.sign(claims, AudienceAccess, j.accessKey)
}

// SessionToRefreshToken signs claims with the refresh key
func (j *JWTTokenizer) SessionToRefreshToken(claims core.TokenClaims) (string, error) {
	return j.sign(claims, AudienceRefresh, j.refreshKey)
}

// AccessTokenToClaims verifies an access token
func (j *JWTTokenizer) AccessTokenToClaims(tokenStr string) (core.TokenClaims, error) {
	return j.parse(tokenStr, AudienceAccess, j.accessKey)
}

// RefreshTokenToClaims verifies a refresh token
func (j *JWTTokenizer) RefreshTokenToClaims(tokenStr string) (core.TokenClaims, error) {
	return j.parse(tokenStr, AudienceRefresh, j.refreshKey)
}

func (j *JWTTokenizer) sign(c core.TokenClaims, audience string, key []byte) (string, error) {
	if c.Subject == "" || c.SessionID == "" {
		return "", fmt.Errorf("failed to sign %s token: missing subject or session", audience)
	}
	id := c.TokenID
	if id == "" {
		id = uuid.NewString()
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   c.Subject,
			ID:        id,
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			Audience:  jwt.ClaimStrings{audience},
		},
		WalletAddress: c.WalletAddress,
		SessionID:     c.SessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", audience, err)
	}

	return signedToken, nil
}

func (j *JWTTokenizer) parse(tokenStr, audience string, key []byte) (core.TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.clockSkew),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return core.TokenClaims{}, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return core.TokenClaims{}, core.ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return core.TokenClaims{}, fmt.Errorf("%w: missing subject or session", core.ErrInvalidToken)
	}

	out := core.TokenClaims{
		Subject:       claims.Subject,
		WalletAddress: claims.WalletAddress,
		SessionID:     claims.SessionID,
		TokenID:       claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}
