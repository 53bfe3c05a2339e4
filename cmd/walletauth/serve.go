package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/walletauth/adapters/cache"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/adapters/wallet"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/internal/logging"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
)

func loadConfig(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

// app holds everything serve needs, plus the resources to release on exit.
type app struct {
	handler http.Handler
	closers []io.Closer
	pool    *pgxpool.Pool
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

// build wires stores, cache, events and the router from cfg. Empty
// database and redis URLs select the in-memory implementations.
func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var (
		sessions   ports.SessionStore
		identities ports.IdentityStore
	)
	if cfg.Database.URL != "" {
		pool, err := store.OpenPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		sessions = store.NewPostgresSessionStore(pool)
		identities = store.NewPostgresIdentityStore(pool)
	} else {
		log.Warn("walletauth.store.memory", "reason", "database.url is empty")
		sessions = store.NewMemorySessionStore()
		identities = store.NewMemoryIdentityStore()
	}

	var (
		revocations ports.RevocationCache
		nonces      ports.NonceStore
		publisher   ports.EventPublisher = events.NoopPublisher{}
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		revocations = cache.NewRedisCache(client)
		nonces = cache.NewRedisNonceStore(client)

		if cfg.Events.Enabled {
			pub, err := redisstream.NewPublisher(
				redisstream.PublisherConfig{Client: client},
				watermill.NewSlogLogger(log),
			)
			if err != nil {
				return nil, fmt.Errorf("create event publisher: %w", err)
			}
			a.closers = append(a.closers, pub)
			publisher = events.NewWatermillPublisher(pub, cfg.Events.TopicPrefix)
		}
	} else {
		log.Warn("walletauth.cache.memory", "reason", "redis.url is empty")
		revocations = cache.NewMemoryCache(nil)
		nonces = cache.NewMemoryNonceStore(nil)
	}

	verifier, err := wallet.NewVerifier(cfg.Auth.Chain)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.NewJWTTokenizer(tokenizer.Config{
		AccessSecret:  []byte(cfg.Auth.AccessSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		Issuer:        cfg.Auth.Issuer,
		ClockSkew:     cfg.Auth.ClockSkew,
	})
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	authService, err := service.NewAuthService(service.Deps{
		Verifier:   verifier,
		Tokenizer:  tok,
		Identities: identities,
		Sessions:   sessions,
		Cache:      revocations,
		Nonces:     nonces,
		Events:     publisher,
	}, service.Options{
		AccessTTL:        cfg.Auth.AccessTTL,
		RefreshTTL:       cfg.Auth.RefreshTTL,
		ChallengeTTL:     cfg.Auth.ChallengeTTL,
		OperationTimeout: cfg.Auth.OperationTimeout,
		RotationHold:     cfg.Auth.RotationHold,
		RequireChallenge: cfg.Auth.RequireChallenge,
		Logger:           log,
		Metrics:          recorder,
	})
	if err != nil {
		return nil, err
	}

	router, err := transport.SetupRouter(ctx, authService, transport.RouterConfig{
		ReturnRotatedRefresh:  cfg.Auth.ReturnRotatedRefresh,
		RefreshRequiresAccess: cfg.Auth.RefreshRequiresAccess,
		RateLimit:             cfg.HTTP.RateLimit,
		RateBurst:             cfg.HTTP.RateBurst,
		RateLimitIdle:         cfg.HTTP.RateLimitIdle,
		TrustedProxies:        cfg.HTTP.TrustedProxies,
		Logger:                log,
		Metrics:               recorder,
	})
	if err != nil {
		return nil, err
	}
	a.handler = router

	ok = true
	return a, nil
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("walletauth.close", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      a.handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("walletauth.http.listen", "addr", cfg.HTTP.Addr, "chain", cfg.Auth.Chain)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("walletauth.http.shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func migrate(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.Database.URL == "" {
		return errors.New("migrate: database.url is required")
	}
	pool, err := store.OpenPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return err
	}
	log.Info("walletauth.migrate.done")
	return nil
}
