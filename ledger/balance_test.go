/*
balance_test.go - Available (redeemable) balance tests

The hold window is exercised by appending backdated rows directly through
the store: a row older than the window is matured, a fresh one is not.
*/
package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loyalty-ledger/bonus"
	"github.com/warp/loyalty-ledger/ledger"
)

func TestAvailableBalance_ExcludesHeldBonus(t *testing.T) {
	// GIVEN: 10.00 earned 11 hours ago and 5.00 earned 1 hour ago
	// WHEN: The available balance is read
	// THEN: Only the matured 10.00 is redeemable

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Pavel", "+400000001")

	now := time.Now().UTC()
	appendAt(t, store, client.ID, "333.33", "0", "10", now.Add(-11*time.Hour))
	appendAt(t, store, client.ID, "166.67", "0", "5", now.Add(-1*time.Hour))

	available, err := ledger.NewBalanceReader(store).AvailableBalance(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", available.StringFixed(2))
}

func TestAvailableBalance_CountsMaturedRedemptions(t *testing.T) {
	// GIVEN: 10.00 earned, then 4.00 redeemed while earning 1.38, both
	//        rows outside the hold window
	// WHEN: The available balance is read
	// THEN: The net 7.38 is redeemable

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Rita", "+400000002")

	now := time.Now().UTC()
	appendAt(t, store, client.ID, "333.33", "0", "10", now.Add(-2*bonus.HoldWindow))
	appendAt(t, store, client.ID, "50", "4", "1.38", now.Add(-bonus.HoldWindow-time.Minute))

	available, err := ledger.NewBalanceReader(store).AvailableBalance(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "7.38", available.StringFixed(2)) // 10 - 4 + 1.38
}

func TestAvailableBalance_ClampsAtZero(t *testing.T) {
	// A matured refund can push earned-minus-used negative; the readable
	// figure never goes below zero.

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Sven", "+400000003")

	now := time.Now().UTC()
	appendAt(t, store, client.ID, "50", "8", "1.26", now.Add(-11*time.Hour))

	available, err := ledger.NewBalanceReader(store).AvailableBalance(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", available.StringFixed(2))
}

func TestAvailableBalances_Batch(t *testing.T) {
	// GIVEN: Three clients, one with matured bonus, one with held bonus
	//        only, one unknown id
	// WHEN: Balances are read as a batch
	// THEN: Every requested id resolves; missing activity means zero

	store := newTestStore(t)
	ctx := context.Background()
	withBonus := newTestClient(t, store, "Tanya", "+400000004")
	heldOnly := newTestClient(t, store, "Uwe", "+400000005")

	now := time.Now().UTC()
	appendAt(t, store, withBonus.ID, "500", "0", "15", now.Add(-12*time.Hour))
	appendAt(t, store, heldOnly.ID, "500", "0", "15", now.Add(-time.Hour))

	balances, err := ledger.NewBalanceReader(store).AvailableBalances(ctx,
		[]string{withBonus.ID, heldOnly.ID, "ghost"})
	require.NoError(t, err)
	require.Len(t, balances, 3)

	assert.Equal(t, "15.00", balances[withBonus.ID].StringFixed(2))
	assert.Equal(t, "0.00", balances[heldOnly.ID].StringFixed(2))
	assert.Equal(t, "0.00", balances["ghost"].StringFixed(2))
}

func TestAvailableBalances_EmptyBatch(t *testing.T) {
	store := newTestStore(t)

	balances, err := ledger.NewBalanceReader(store).AvailableBalances(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, balances)
}
