package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/core"
)

// OpenPool builds a pgxpool for databaseURL and checks connectivity.
// The caller owns the pool and must close it.
func OpenPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, core.Unavailable("store.OpenPool", err)
	}
	return pool, nil
}

// classify maps driver errors onto core error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return core.ConflictError{Op: op, Field: uniqueField(pgErr.ConstraintName)}
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return core.ErrNotFound
		}
	}
	return core.Unavailable(op, err)
}

func uniqueField(constraint string) string {
	c := strings.ToLower(constraint)
	switch c {
	case "uq_identities_wallet_address":
		return "wallet_address"
	case "uq_identities_referral_code":
		return "referral_code"
	case "identities_pkey":
		return "id"
	case "sessions_pkey":
		return "session_id"
	}
	switch {
	case strings.Contains(c, "wallet"):
		return "wallet_address"
	case strings.Contains(c, "referral"):
		return "referral_code"
	default:
		return c
	}
}
