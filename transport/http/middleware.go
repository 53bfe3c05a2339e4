package http

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/logging"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/service"
)

const (
	requestIDHeader = "X-Request-ID"
	principalKey    = "principal"
)

// RequestID tags every request with an id, taken from X-Request-ID when the
// caller sent one, and attaches a logger carrying it to the request context.
func RequestID(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		c.Header(requestIDHeader, id)

		reqLog := log.With("request_id", id)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), reqLog))
		c.Next()
	}
}

// RequestLogger logs one line per served request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logging.FromContext(c.Request.Context())
		attrs := []any{
			"method", c.Request.Method,
			"route", routeOf(c),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
			log.Error("http.request", attrs...)
			return
		}
		log.Info("http.request", attrs...)
	}
}

// Metrics counts requests by route and status.
func Metrics(m *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.HTTPRequest(routeOf(c), c.Writer.Status())
	}
}

// Recovery turns a panic into a 500 error body.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromContext(c.Request.Context()).Error("http.panic", "panic", recovered, "route", routeOf(c))
		abortWithKind(c, "Internal")
	})
}

// AuthMiddleware requires a Bearer access token whose session is still live.
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return guard(authService.Authenticate)
}

// IdentityMiddleware requires a Bearer access token of an active identity
// without checking its session, so refresh replays still reach rotation.
func IdentityMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return guard(authService.ResolveIdentity)
}

func guard(resolve func(ctx context.Context, accessToken string) (core.Principal, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithKind(c, kindMissingAuth)
			return
		}

		principal, err := resolve(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Request = c.Request.WithContext(core.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}
