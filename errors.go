package walletauth

import (
	"errors"
	"fmt"
)

// Errors matched by APIError through errors.Is.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrSessionRevoked   = errors.New("session revoked")
	ErrSessionExpired   = errors.New("session expired")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUnknownIdentity  = errors.New("unknown identity")
	ErrIdentityDisabled = errors.New("identity disabled")
	ErrUnavailable      = errors.New("service unavailable")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidRequest   = errors.New("invalid request")
)

var kindErrors = map[string]error{
	"InvalidSignature": ErrInvalidSignature,
	"InvalidToken":     ErrInvalidToken,
	"SessionRevoked":   ErrSessionRevoked,
	"SessionExpired":   ErrSessionExpired,
	"NotFound":         ErrSessionNotFound,
	"UnknownIdentity":  ErrUnknownIdentity,
	"IdentityDisabled": ErrIdentityDisabled,
	"Unavailable":      ErrUnavailable,
	"RateLimited":      ErrRateLimited,
	"InvalidInput":     ErrInvalidRequest,
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("walletauth: request failed with status %d", e.Status)
	}
	return fmt.Sprintf("walletauth: [%s] %s", e.Kind, e.Message)
}

// Is matches the sentinel for the error kind.
func (e *APIError) Is(target error) bool {
	sentinel, ok := kindErrors[e.Kind]
	return ok && sentinel == target
}
