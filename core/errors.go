package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")
	ErrSessionRevoked   = errors.New("session revoked")
	ErrSessionExpired   = errors.New("session expired")
	ErrNotFound         = errors.New("not found")
	ErrUnknownIdentity  = errors.New("unknown identity")
	ErrIdentityDisabled = errors.New("identity disabled")
	ErrUnavailable      = errors.New("backing store unavailable")

	// ErrConflict reports a uniqueness violation inside a store.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput reports a request the core refuses before touching any store.
	ErrInvalidInput = errors.New("invalid input")
)

// UnavailableError wraps an infrastructure failure of a backing store or cache.
// It matches both ErrUnavailable and the underlying cause with errors.Is.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }

// Unavailable wraps err as an UnavailableError for op. A nil err stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// ConflictError reports a uniqueness conflict on a logical field
// ("wallet_address", "referral_code", "session_id").
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// Kind returns the stable kind string for err, used in HTTP bodies, logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, ErrInvalidToken):
		return "InvalidToken"
	case errors.Is(err, ErrSessionRevoked):
		return "SessionRevoked"
	case errors.Is(err, ErrSessionExpired):
		return "SessionExpired"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrUnknownIdentity):
		return "UnknownIdentity"
	case errors.Is(err, ErrIdentityDisabled):
		return "IdentityDisabled"
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return "Unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "Internal"
	}
}
