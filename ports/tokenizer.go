package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer converts between token claims and signed tokens.
// Access and refresh tokens are signed with distinct keys.
type Tokenizer interface {
	SessionToAccessToken(claims core.TokenClaims) (string, error)
	SessionToRefreshToken(claims core.TokenClaims) (string, error)

	// AccessTokenToClaims and RefreshTokenToClaims return core.ErrInvalidToken
	// for malformed, expired, wrongly signed or wrong-audience tokens.
	AccessTokenToClaims(token string) (core.TokenClaims, error)
	RefreshTokenToClaims(token string) (core.TokenClaims, error)
}
