package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"margind/core/types"
	"margind/native/fixed"
	"margind/native/margin"
	"margind/native/marginpool"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "margind.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func storeAddr(index byte) types.Address {
	return types.DeriveAddress([]byte("storage-test"), []byte{index})
}

func TestAccountRoundTrip(t *testing.T) {
	store := openTestStore(t)

	airspace := storeAddr(1)
	owner := storeAddr(2)
	acct := margin.NewAccount(airspace, owner, 7, 0)
	mint := storeAddr(3)
	_, err := acct.RegisterPosition(margin.PositionConfig{
		Mint:          mint,
		Custodian:     mint,
		Airspace:      airspace,
		Decimals:      6,
		Kind:          margin.TokenCollateral,
		ValueModifier: 95,
	}, margin.Approvals{Authority: true})
	require.NoError(t, err)
	require.NoError(t, store.PutAccount(acct))

	loaded, err := store.GetAccount(acct.Address)
	require.NoError(t, err)
	require.Equal(t, owner, loaded.Owner)
	require.Equal(t, uint16(7), loaded.Seed)
	position := loaded.GetPosition(mint)
	require.NotNil(t, position)
	require.Equal(t, uint16(95), position.ValueModifier)
	require.Equal(t, int32(-6), position.Exponent)

	_, err = store.GetAccount(storeAddr(9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMutateAccount(t *testing.T) {
	store := openTestStore(t)

	acct := margin.NewAccount(storeAddr(1), storeAddr(2), 0, 0)
	require.NoError(t, store.PutAccount(acct))

	updated, err := store.MutateAccount(acct.Address, func(a *margin.Account) error {
		a.Liquidator = storeAddr(5)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, storeAddr(5), updated.Liquidator)

	loaded, err := store.GetAccount(acct.Address)
	require.NoError(t, err)
	require.Equal(t, storeAddr(5), loaded.Liquidator)

	// A failing mutation leaves the record untouched.
	boom := margin.ErrUnhealthy
	_, err = store.MutateAccount(acct.Address, func(a *margin.Account) error {
		a.Liquidator = types.ZeroAddress
		return boom
	})
	require.ErrorIs(t, err, boom)
	loaded, err = store.GetAccount(acct.Address)
	require.NoError(t, err)
	require.Equal(t, storeAddr(5), loaded.Liquidator)

	_, err = store.MutateAccount(storeAddr(9), func(*margin.Account) error { return nil })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPoolRoundTrip(t *testing.T) {
	store := openTestStore(t)

	mint := storeAddr(1)
	pool := &marginpool.Pool{
		Airspace:      storeAddr(2),
		TokenMint:     mint,
		DepositTokens: 1_000,
		DepositNotes:  900,
		Borrowed:      fixed.FromU64(250),
		AccruedUntil:  1_700_000_000,
	}
	require.NoError(t, store.PutPool(pool))

	loaded, err := store.GetPool(mint)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), loaded.DepositTokens)
	require.Zero(t, loaded.Borrowed.Cmp(fixed.FromU64(250)))

	_, err = store.MutatePool(mint, func(p *marginpool.Pool) error {
		p.DepositTokens += 500
		return nil
	})
	require.NoError(t, err)
	loaded, err = store.GetPool(mint)
	require.NoError(t, err)
	require.Equal(t, uint64(1_500), loaded.DepositTokens)

	pools, err := store.ListPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)

	_, err = store.GetPool(storeAddr(9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLiquidationRecords(t *testing.T) {
	store := openTestStore(t)

	rec := LiquidationRecord{
		Account:    storeAddr(1),
		Liquidator: storeAddr(2),
		StartTime:  1_700_000_000,
	}
	require.NoError(t, store.PutLiquidation(rec))

	got, err := store.GetLiquidation(rec.Account)
	require.NoError(t, err)
	require.Equal(t, rec, got)

	active, err := store.ListLiquidations()
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, store.DeleteLiquidation(rec.Account))
	_, err = store.GetLiquidation(rec.Account)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBalanceLedger(t *testing.T) {
	store := openTestStore(t)
	custodian := storeAddr(7)

	_, found := store.Balance(custodian)
	require.False(t, found)

	require.NoError(t, store.PutBalance(custodian, 1_500_000))
	tokens, found := store.Balance(custodian)
	require.True(t, found)
	require.Equal(t, uint64(1_500_000), tokens)

	require.NoError(t, store.PutBalance(custodian, 0))
	tokens, found = store.Balance(custodian)
	require.True(t, found)
	require.Zero(t, tokens)
}
