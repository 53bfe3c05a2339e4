package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
)

// Error kinds that only exist at the HTTP edge.
const (
	kindRateLimited = "RateLimited"
	kindMissingAuth = "InvalidToken"
)

var errorMessages = map[string]string{
	"InvalidSignature": "Invalid signature",
	"InvalidToken":     "Invalid token",
	"SessionRevoked":   "Session revoked",
	"SessionExpired":   "Session expired",
	"NotFound":         "Session not found",
	"UnknownIdentity":  "Unknown identity",
	"IdentityDisabled": "Identity disabled",
	"Unavailable":      "Service temporarily unavailable",
	"InvalidInput":     "Invalid request",
	kindRateLimited:    "Too many requests",
	"Internal":         "Internal server error",
}

// statusFor maps an error kind onto its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "InvalidSignature", "InvalidToken", "SessionRevoked", "SessionExpired",
		"NotFound", "UnknownIdentity", "IdentityDisabled":
		return http.StatusUnauthorized
	case "Unavailable":
		return http.StatusServiceUnavailable
	case "InvalidInput":
		return http.StatusBadRequest
	case kindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abortWithKind writes the error body for kind and stops the handler chain.
func abortWithKind(c *gin.Context, kind string) {
	msg, ok := errorMessages[kind]
	if !ok {
		kind, msg = "Internal", errorMessages["Internal"]
	}
	c.AbortWithStatusJSON(statusFor(kind), gin.H{
		"success": false,
		"error":   kind,
		"message": msg,
	})
}

// abortWithError maps err to its kind and writes the error body.
func abortWithError(c *gin.Context, err error) {
	kind := core.Kind(err)
	if kind == "Internal" || kind == "Unavailable" {
		_ = c.Error(err)
	}
	abortWithKind(c, kind)
}
