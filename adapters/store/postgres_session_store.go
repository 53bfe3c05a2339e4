package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// PostgresSessionStore implements ports.SessionStore over PostgreSQL.
// Rows are inserted and revoked, never deleted. The pool is owned by the caller.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore creates a session store on pool.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

var _ ports.SessionStore = (*PostgresSessionStore)(nil)

const sessionColumns = `id::text, identity_id::text, wallet_address, signature, nonce,
	COALESCE(host(ip_address), ''), COALESCE(user_agent, ''),
	expires_at, revoked_at, COALESCE(revocation_reason, ''), created_at`

func scanSession(row pgx.Row) (core.Session, error) {
	var s core.Session
	err := row.Scan(
		&s.ID, &s.IdentityID, &s.WalletAddress, &s.Signature, &s.Nonce,
		&s.IPAddress, &s.UserAgent,
		&s.ExpiresAt, &s.RevokedAt, &s.RevocationReason, &s.CreatedAt,
	)
	return s, err
}

const insertSession = `INSERT INTO sessions (
	     id, identity_id, wallet_address, signature, nonce,
	     ip_address, user_agent, expires_at, created_at
	   ) VALUES ($1, $2, $3, $4, $5, NULLIF($6::text, '')::inet, NULLIF($7, ''), $8, $9)`

func sessionArgs(session core.Session) []any {
	return []any{
		session.ID,
		session.IdentityID,
		session.WalletAddress,
		session.Signature,
		session.Nonce,
		session.IPAddress,
		session.UserAgent,
		session.ExpiresAt,
		session.CreatedAt,
	}
}

func (s *PostgresSessionStore) Create(ctx context.Context, session core.Session) error {
	const op = "store.CreateSession"

	_, err := s.pool.Exec(ctx, insertSession, sessionArgs(session)...)
	return classify(op, err)
}

func (s *PostgresSessionStore) Get(ctx context.Context, sessionID string) (core.Session, error) {
	const op = "store.GetSession"

	session, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID))
	if err != nil {
		return core.Session{}, classify(op, err)
	}
	return session, nil
}

// Revoke keeps the first revocation time and reason.
func (s *PostgresSessionStore) Revoke(ctx context.Context, sessionID string, now time.Time, reason string) error {
	const op = "store.RevokeSession"

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
		    SET revoked_at = COALESCE(revoked_at, $2),
		        revocation_reason = COALESCE(revocation_reason, $3)
		  WHERE id = $1`,
		sessionID, now, reason,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *PostgresSessionStore) RevokeOwned(ctx context.Context, sessionID, identityID string, now time.Time, reason string) (bool, error) {
	const op = "store.RevokeOwnedSession"

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
		    SET revoked_at = $3, revocation_reason = $4
		  WHERE id = $1 AND identity_id = $2 AND revoked_at IS NULL`,
		sessionID, identityID, now, reason,
	)
	if err != nil {
		err = classify(op, err)
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// lockIdentity takes the row lock that serializes Rotate and RevokeAll for
// one identity. It reports false when the identity does not exist.
func lockIdentity(ctx context.Context, tx pgx.Tx, identityID string) (bool, error) {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id::text FROM identities WHERE id = $1 FOR UPDATE`, identityID).Scan(&id)
	err = classify("store.LockIdentity", err)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *PostgresSessionStore) begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
}

// Rotate retires replacedID and inserts next in one transaction holding the
// owner's identity row lock.
func (s *PostgresSessionStore) Rotate(ctx context.Context, replacedID string, next core.Session, now time.Time) error {
	const op = "store.RotateSession"

	tx, err := s.begin(ctx)
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := lockIdentity(ctx, tx, next.IdentityID)
	if err != nil {
		return err
	}
	if !found {
		return core.ErrNotFound
	}

	var revokedAt *time.Time
	err = tx.QueryRow(ctx,
		`SELECT revoked_at FROM sessions WHERE id = $1 AND identity_id = $2`,
		replacedID, next.IdentityID,
	).Scan(&revokedAt)
	if err != nil {
		return classify(op, err)
	}
	if revokedAt != nil {
		return core.ErrSessionRevoked
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2, revocation_reason = $3 WHERE id = $1`,
		replacedID, now, core.ReasonRotated,
	); err != nil {
		return classify(op, err)
	}
	if _, err := tx.Exec(ctx, insertSession, sessionArgs(next)...); err != nil {
		return classify(op, err)
	}

	return classify(op, tx.Commit(ctx))
}

// RevokeAll holds the identity row lock, so no rotation of the identity can
// commit a new session between the revocation and the commit.
func (s *PostgresSessionStore) RevokeAll(ctx context.Context, identityID string, now time.Time, reason string) ([]string, error) {
	const op = "store.RevokeAllSessions"

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	found, err := lockIdentity(ctx, tx, identityID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	rows, err := tx.Query(ctx,
		`UPDATE sessions
		    SET revoked_at = $2, revocation_reason = $3
		  WHERE identity_id = $1 AND revoked_at IS NULL AND expires_at > $2
		  RETURNING id::text`,
		identityID, now, reason,
	)
	if err != nil {
		return nil, classify(op, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, classify(op, err)
	}
	return ids, nil
}

func (s *PostgresSessionStore) ListActive(ctx context.Context, identityID string, now time.Time) ([]core.Session, error) {
	const op = "store.ListActiveSessions"

	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		   FROM sessions
		  WHERE identity_id = $1 AND revoked_at IS NULL AND expires_at > $2
		  ORDER BY created_at DESC`,
		identityID, now,
	)
	if err != nil {
		return nil, classify(op, err)
	}

	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return sessions, nil
}
