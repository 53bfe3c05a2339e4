package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// PostgresIdentityStore implements ports.IdentityStore over PostgreSQL.
type PostgresIdentityStore struct {
	pool *pgxpool.Pool
}

// NewPostgresIdentityStore creates an identity store on pool.
func NewPostgresIdentityStore(pool *pgxpool.Pool) *PostgresIdentityStore {
	return &PostgresIdentityStore{pool: pool}
}

var _ ports.IdentityStore = (*PostgresIdentityStore)(nil)

const identityColumns = `id::text, wallet_address, referral_code, status, created_at`

func scanIdentity(row pgx.Row) (core.Identity, error) {
	var (
		identity core.Identity
		status   string
	)
	if err := row.Scan(&identity.ID, &identity.WalletAddress, &identity.ReferralCode, &status, &identity.CreatedAt); err != nil {
		return core.Identity{}, err
	}
	identity.Status = core.IdentityStatus(status)
	return identity, nil
}

func (s *PostgresIdentityStore) FindByWallet(ctx context.Context, walletAddress string) (core.Identity, error) {
	identity, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE wallet_address = $1`, walletAddress))
	if err != nil {
		return core.Identity{}, classify("store.FindIdentityByWallet", err)
	}
	return identity, nil
}

func (s *PostgresIdentityStore) FindByID(ctx context.Context, identityID string) (core.Identity, error) {
	identity, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, identityID))
	if err != nil {
		return core.Identity{}, classify("store.FindIdentityByID", err)
	}
	return identity, nil
}

// CreateWithBalance inserts the identity and its balance in one transaction.
func (s *PostgresIdentityStore) CreateWithBalance(ctx context.Context, identity core.Identity, balance core.Balance) error {
	const op = "store.CreateIdentity"

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO identities (id, wallet_address, referral_code, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID,
		identity.WalletAddress,
		identity.ReferralCode,
		string(identity.Status),
		identity.CreatedAt,
	)
	if err != nil {
		return classify(op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO identity_balances (identity_id, available, locked, pending)
		 VALUES ($1, $2::numeric, $3::numeric, $4::numeric)`,
		identity.ID,
		balance.Available.String(),
		balance.Locked.String(),
		balance.Pending.String(),
	)
	if err != nil {
		return classify(op, err)
	}

	return classify(op, tx.Commit(ctx))
}
