package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentity(wallet, referral string, now time.Time) core.Identity {
	return core.Identity{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		ReferralCode:  referral,
		Status:        core.IdentityActive,
		CreatedAt:     now,
	}
}

func newSession(identity core.Identity, now time.Time, ttl time.Duration) core.Session {
	return core.Session{
		ID:            uuid.NewString(),
		IdentityID:    identity.ID,
		WalletAddress: identity.WalletAddress,
		Signature:     "sig",
		Nonce:         "nonce-1234",
		IPAddress:     "10.0.0.1",
		UserAgent:     "walletauth-test/1.0",
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}
}

// testStores exercises a SessionStore and IdentityStore pair against the
// behaviour every implementation must share.
func testStores(t *testing.T, sessions ports.SessionStore, identities ports.IdentityStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	suffix := uuid.NewString()[:8]

	alice := newIdentity("alice-"+suffix, "A"+suffix[:5], now)
	bob := newIdentity("bob-"+suffix, "B"+suffix[:5], now)
	require.NoError(t, identities.CreateWithBalance(ctx, alice, core.ZeroBalance(alice.ID)))
	require.NoError(t, identities.CreateWithBalance(ctx, bob, core.ZeroBalance(bob.ID)))

	t.Run("identity lookups", func(t *testing.T) {
		got, err := identities.FindByWallet(ctx, alice.WalletAddress)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, core.IdentityActive, got.Status)

		got, err = identities.FindByID(ctx, bob.ID)
		require.NoError(t, err)
		assert.Equal(t, bob.WalletAddress, got.WalletAddress)

		_, err = identities.FindByWallet(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, core.ErrNotFound)
		_, err = identities.FindByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("identity conflicts", func(t *testing.T) {
		dup := newIdentity(alice.WalletAddress, "C"+suffix[:5], now)
		err := identities.CreateWithBalance(ctx, dup, core.ZeroBalance(dup.ID))
		var conflict core.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "wallet_address", conflict.Field)

		dup = newIdentity("carol-"+suffix, alice.ReferralCode, now)
		err = identities.CreateWithBalance(ctx, dup, core.ZeroBalance(dup.ID))
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "referral_code", conflict.Field)

		_, err = identities.FindByWallet(ctx, "carol-"+suffix)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("session create and get", func(t *testing.T) {
		s := newSession(alice, now, time.Hour)
		require.NoError(t, sessions.Create(ctx, s))

		got, err := sessions.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.IdentityID, got.IdentityID)
		assert.Equal(t, s.IPAddress, got.IPAddress)
		assert.Equal(t, s.UserAgent, got.UserAgent)
		assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
		assert.Nil(t, got.RevokedAt)
		assert.True(t, got.Active(now))

		_, err = sessions.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("session without client info", func(t *testing.T) {
		s := newSession(alice, now, time.Hour)
		s.IPAddress, s.UserAgent = "", ""
		require.NoError(t, sessions.Create(ctx, s))

		got, err := sessions.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Empty(t, got.IPAddress)
		assert.Empty(t, got.UserAgent)
	})

	t.Run("revoke keeps the first reason", func(t *testing.T) {
		s := newSession(alice, now, time.Hour)
		require.NoError(t, sessions.Create(ctx, s))

		require.NoError(t, sessions.Revoke(ctx, s.ID, now, core.ReasonRotated))
		require.NoError(t, sessions.Revoke(ctx, s.ID, now.Add(time.Minute), core.ReasonLogout))

		got, err := sessions.Get(ctx, s.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.True(t, now.Equal(*got.RevokedAt))
		assert.Equal(t, core.ReasonRotated, got.RevocationReason)

		assert.ErrorIs(t, sessions.Revoke(ctx, uuid.NewString(), now, core.ReasonLogout), core.ErrNotFound)
	})

	t.Run("revoke owned", func(t *testing.T) {
		s := newSession(alice, now, time.Hour)
		require.NoError(t, sessions.Create(ctx, s))

		ok, err := sessions.RevokeOwned(ctx, s.ID, bob.ID, now, core.ReasonLogout)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = sessions.RevokeOwned(ctx, s.ID, alice.ID, now, core.ReasonLogout)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = sessions.RevokeOwned(ctx, s.ID, alice.ID, now, core.ReasonLogout)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rotate", func(t *testing.T) {
		old := newSession(alice, now, time.Hour)
		require.NoError(t, sessions.Create(ctx, old))

		next := newSession(alice, now.Add(time.Second), time.Hour)
		require.NoError(t, sessions.Rotate(ctx, old.ID, next, now))

		got, err := sessions.Get(ctx, old.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.Equal(t, core.ReasonRotated, got.RevocationReason)

		got, err = sessions.Get(ctx, next.ID)
		require.NoError(t, err)
		assert.True(t, got.Active(now))

		// The retired row cannot be rotated twice.
		again := newSession(alice, now, time.Hour)
		assert.ErrorIs(t, sessions.Rotate(ctx, old.ID, again, now), core.ErrSessionRevoked)
		_, err = sessions.Get(ctx, again.ID)
		assert.ErrorIs(t, err, core.ErrNotFound)

		foreign := newSession(bob, now, time.Hour)
		assert.ErrorIs(t, sessions.Rotate(ctx, next.ID, foreign, now), core.ErrNotFound)
		assert.ErrorIs(t, sessions.Rotate(ctx, uuid.NewString(), newSession(alice, now, time.Hour), now), core.ErrNotFound)

		got, err = sessions.Get(ctx, next.ID)
		require.NoError(t, err)
		assert.Nil(t, got.RevokedAt)
	})

	t.Run("rotate after revoke all", func(t *testing.T) {
		dave := newIdentity("dave-"+suffix, "E"+suffix[:5], now)
		require.NoError(t, identities.CreateWithBalance(ctx, dave, core.ZeroBalance(dave.ID)))

		old := newSession(dave, now, time.Hour)
		require.NoError(t, sessions.Create(ctx, old))
		_, err := sessions.RevokeAll(ctx, dave.ID, now, core.ReasonLogoutAll)
		require.NoError(t, err)

		next := newSession(dave, now, time.Hour)
		assert.ErrorIs(t, sessions.Rotate(ctx, old.ID, next, now), core.ErrSessionRevoked)

		active, err := sessions.ListActive(ctx, dave.ID, now)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("revoke all and list active", func(t *testing.T) {
		carol := newIdentity("carol2-"+suffix, "D"+suffix[:5], now)
		require.NoError(t, identities.CreateWithBalance(ctx, carol, core.ZeroBalance(carol.ID)))

		first := newSession(carol, now, time.Hour)
		second := newSession(carol, now.Add(time.Second), time.Hour)
		expired := newSession(carol, now.Add(-2*time.Hour), time.Hour)
		other := newSession(bob, now, time.Hour)
		for _, s := range []core.Session{first, second, expired, other} {
			require.NoError(t, sessions.Create(ctx, s))
		}

		active, err := sessions.ListActive(ctx, carol.ID, now)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, second.ID, active[0].ID)
		assert.Equal(t, first.ID, active[1].ID)

		revoked, err := sessions.RevokeAll(ctx, carol.ID, now, core.ReasonLogoutAll)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{first.ID, second.ID}, revoked)

		active, err = sessions.ListActive(ctx, carol.ID, now)
		require.NoError(t, err)
		assert.Empty(t, active)

		got, err := sessions.Get(ctx, other.ID)
		require.NoError(t, err)
		assert.Nil(t, got.RevokedAt)

		revoked, err = sessions.RevokeAll(ctx, carol.ID, now, core.ReasonLogoutAll)
		require.NoError(t, err)
		assert.Empty(t, revoked)
	})
}

func TestMemoryStores(t *testing.T) {
	identities := NewMemoryIdentityStore()
	testStores(t, NewMemorySessionStore(), identities)
}

func TestMemoryIdentityStore_BalanceAndStatus(t *testing.T) {
	ctx := context.Background()
	identities := NewMemoryIdentityStore()
	identity := newIdentity("wallet", "ABC123", time.Now())
	require.NoError(t, identities.CreateWithBalance(ctx, identity, core.ZeroBalance(identity.ID)))

	balance, ok := identities.Balance(identity.ID)
	require.True(t, ok)
	assert.True(t, balance.Available.IsZero())
	assert.True(t, balance.Locked.IsZero())
	assert.True(t, balance.Pending.IsZero())

	require.NoError(t, identities.SetStatus(identity.ID, core.IdentityBanned))
	got, err := identities.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, core.IdentityBanned, got.Status)

	assert.ErrorIs(t, identities.SetStatus("missing", core.IdentityActive), core.ErrNotFound)
}
