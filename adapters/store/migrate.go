package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the PostgreSQL schema used by the Postgres stores. Every
// statement is idempotent so Migrate can run on each deploy.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
    id             uuid        PRIMARY KEY,
    wallet_address text        NOT NULL,
    referral_code  text        NOT NULL,
    status         text        NOT NULL DEFAULT 'active',
    created_at     timestamptz NOT NULL,
    CONSTRAINT uq_identities_wallet_address UNIQUE (wallet_address),
    CONSTRAINT uq_identities_referral_code UNIQUE (referral_code),
    CONSTRAINT ck_identities_status CHECK (status IN ('active', 'suspended', 'banned'))
);

CREATE TABLE IF NOT EXISTS identity_balances (
    identity_id uuid           PRIMARY KEY REFERENCES identities (id),
    available   numeric(20, 6) NOT NULL DEFAULT 0,
    locked      numeric(20, 6) NOT NULL DEFAULT 0,
    pending     numeric(20, 6) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
    id                uuid        PRIMARY KEY,
    identity_id       uuid        NOT NULL REFERENCES identities (id),
    wallet_address    text        NOT NULL,
    signature         text        NOT NULL,
    nonce             text        NOT NULL,
    ip_address        inet        NULL,
    user_agent        text        NULL,
    expires_at        timestamptz NOT NULL,
    revoked_at        timestamptz NULL,
    revocation_reason text        NULL,
    created_at        timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_sessions_identity_active
    ON sessions (identity_id, created_at DESC)
    WHERE revoked_at IS NULL;
`

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return classify("store.Migrate", err)
	}
	return nil
}
