package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	referralAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	referralLength   = 6

	// maxBootstrapAttempts bounds retries on referral code collisions.
	maxBootstrapAttempts = 5
)

// IdentityBootstrap finds or creates the identity owning a wallet address.
type IdentityBootstrap struct {
	identities   ports.IdentityStore
	now          func() time.Time
	log          *slog.Logger
	referralCode func() (string, error)
}

// NewIdentityBootstrap creates a bootstrap over identities.
func NewIdentityBootstrap(identities ports.IdentityStore, now func() time.Time, log *slog.Logger) *IdentityBootstrap {
	return &IdentityBootstrap{
		identities:   identities,
		now:          now,
		log:          log,
		referralCode: newReferralCode,
	}
}

// ResolveOrCreate returns the identity of walletAddress, creating it together
// with a zero balance on first sight. Concurrent callers for one address end up
// with the same identity: the loser of the insert race re-reads the winner's row.
func (b *IdentityBootstrap) ResolveOrCreate(ctx context.Context, walletAddress string) (core.Identity, error) {
	for attempt := 0; attempt < maxBootstrapAttempts; attempt++ {
		identity, err := b.identities.FindByWallet(ctx, walletAddress)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.Identity{}, err
		}

		code, err := b.referralCode()
		if err != nil {
			return core.Identity{}, fmt.Errorf("failed to generate referral code: %w", err)
		}

		identity = core.Identity{
			ID:            uuid.NewString(),
			WalletAddress: walletAddress,
			ReferralCode:  code,
			Status:        core.IdentityActive,
			CreatedAt:     b.now().UTC(),
		}

		err = b.identities.CreateWithBalance(ctx, identity, core.ZeroBalance(identity.ID))
		if err == nil {
			b.log.Info("auth.identity.created", "identity_id", identity.ID, "wallet_address", walletAddress)
			return identity, nil
		}

		var conflict core.ConflictError
		if !errors.As(err, &conflict) {
			return core.Identity{}, err
		}
		if conflict.Field == "wallet_address" {
			// Created concurrently; the next iteration reads it back.
			continue
		}
		b.log.Debug("auth.identity.conflict", "field", conflict.Field, "attempt", attempt+1)
	}

	return core.Identity{}, fmt.Errorf("bootstrap %s: attempts exhausted: %w", walletAddress, core.ErrConflict)
}

// newReferralCode returns referralLength uppercase base36 characters.
func newReferralCode() (string, error) {
	const limit = 256 - 256%len(referralAlphabet)

	out := make([]byte, 0, referralLength)
	buf := make([]byte, referralLength*2)
	for len(out) < referralLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, c := range buf {
			if int(c) >= limit {
				continue
			}
			out = append(out, referralAlphabet[int(c)%len(referralAlphabet)])
			if len(out) == referralLength {
				break
			}
		}
	}
	return string(out), nil
}
