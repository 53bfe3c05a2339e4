package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/walletauth/internal/logging"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/service"
)

// RouterConfig tunes SetupRouter.
type RouterConfig struct {
	// ReturnRotatedRefresh includes the new refresh token in /auth/refresh responses.
	ReturnRotatedRefresh bool
	// RefreshRequiresAccess puts /auth/refresh behind a Bearer access token.
	RefreshRequiresAccess bool

	// RateLimit and RateBurst bound /auth/challenge and /auth/verify per client IP.
	// A zero RateLimit disables limiting.
	RateLimit float64
	RateBurst int

	// RateLimitIdle is how long a client IP's limiter survives without traffic.
	RateLimitIdle time.Duration

	TrustedProxies []string

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// SetupRouter sets up the Gin router. Background work started for the router
// stops when ctx is done.
func SetupRouter(ctx context.Context, authService *service.AuthService, cfg RouterConfig) (*gin.Engine, error) {
	registerValidations()

	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(RequestID(log), RequestLogger(), Metrics(cfg.Metrics), Recovery())

	router.GET("/healthz", Health)
	router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	// Create handlers
	handlers := NewAuthHandlers(authService, cfg.ReturnRotatedRefresh)

	var limiter *RateLimiterRegistry
	if cfg.RateLimit > 0 {
		limiter = NewRateLimiterRegistry(cfg.RateLimit, cfg.RateBurst)
		go limiter.Run(ctx, cfg.RateLimitIdle)
	}

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", RateLimitMiddleware(limiter), handlers.Challenge)
		auth.POST("/verify", RateLimitMiddleware(limiter), handlers.Verify)

		if cfg.RefreshRequiresAccess {
			auth.POST("/refresh", IdentityMiddleware(authService), handlers.Refresh)
		} else {
			auth.POST("/refresh", handlers.Refresh)
		}
	}

	// Routes that need a live session
	protected := auth.Group("")
	protected.Use(AuthMiddleware(authService))
	{
		protected.POST("/logout", handlers.Logout)
		protected.GET("/me", handlers.Me)
		protected.GET("/sessions", handlers.Sessions)
		protected.GET("/authorize", handlers.Authorize)
	}

	return router, nil
}
