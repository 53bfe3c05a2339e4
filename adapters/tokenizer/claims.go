package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the JWT payload of both access and refresh tokens.
// The audience tells them apart.
type SessionClaims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"walletAddress"`
	SessionID     string `json:"sid"`
}
