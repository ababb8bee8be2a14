/*
engine_test.go - Purchase and refund engine tests

Runs the engines against the real SQLite store (in-memory) so that the
atomicity contract is exercised, not mocked.

KEY SCENARIOS:
  - Accrual on the amount actually paid, not the sticker price
  - Redeem-only purchases earn nothing
  - Refund appends a negated row and restores the account state
  - At most one refund per purchase, refunds cannot be refunded
  - Cached totals always match a replay of the ledger from zero
*/
package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/loyalty-ledger/ledger"
	"github.com/warp/loyalty-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestClient(t *testing.T, store *sqlite.Store, name, phone string) *ledger.Client {
	t.Helper()
	client, err := ledger.NewClientService(store).CreateClient(context.Background(), name, phone, ledger.RoleClient)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if got.StringFixed(2) != dec(want).StringFixed(2) {
		t.Errorf("%s = %s, want %s", label, got.StringFixed(2), want)
	}
}

// =============================================================================
// PURCHASE RECORDING
// =============================================================================

func TestRecordPurchase_AccruesOnAmountPaid(t *testing.T) {
	// GIVEN: A fresh client
	// WHEN: They pay 100.00 with no bonus
	// THEN: 3% of 100.00 accrues and the cached totals update in lockstep

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Anna", "+100000001")
	engine := ledger.NewPurchaseEngine(store)

	tx, err := engine.RecordPurchase(ctx, client.ID, dec("100"), decimal.Zero, true)
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	assertMoney(t, "PurchaseAmount", tx.PurchaseAmount, "100.00")
	assertMoney(t, "BonusUsed", tx.BonusUsed, "0.00")
	assertMoney(t, "BonusEarned", tx.BonusEarned, "3.00")
	assertMoney(t, "FinalPaid", tx.FinalPaid, "100.00")
	if tx.IsRefund {
		t.Error("purchase row must not be marked as refund")
	}

	updated, err := store.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	assertMoney(t, "BonusBalance", updated.BonusBalance, "3.00")
	assertMoney(t, "TotalPurchasesSum", updated.TotalPurchasesSum, "100.00")
	if updated.TotalOrdersCount != 1 {
		t.Errorf("TotalOrdersCount = %d, want 1", updated.TotalOrdersCount)
	}
}

func TestRecordPurchase_WithRedemption(t *testing.T) {
	// GIVEN: A client holding 30.00 of bonus from an earlier sale
	// WHEN: They buy for 100.00 redeeming 20.00
	// THEN: final_paid is 80.00, accrual is 3% of 80.00 = 2.40,
	//       and the balance moves by earned - used

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Boris", "+100000002")
	engine := ledger.NewPurchaseEngine(store)

	if _, err := engine.RecordPurchase(ctx, client.ID, dec("1000"), decimal.Zero, true); err != nil {
		t.Fatalf("seed purchase failed: %v", err)
	}

	tx, err := engine.RecordPurchase(ctx, client.ID, dec("100"), dec("20"), true)
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	assertMoney(t, "FinalPaid", tx.FinalPaid, "80.00")
	assertMoney(t, "BonusEarned", tx.BonusEarned, "2.40")

	updated, _ := store.GetClient(ctx, client.ID)
	assertMoney(t, "BonusBalance", updated.BonusBalance, "12.40") // 30 + 2.40 - 20
	assertMoney(t, "TotalPurchasesSum", updated.TotalPurchasesSum, "1100.00")
	if updated.TotalOrdersCount != 2 {
		t.Errorf("TotalOrdersCount = %d, want 2", updated.TotalOrdersCount)
	}
}

func TestRecordPurchase_RedeemOnlyAccruesNothing(t *testing.T) {
	// GIVEN: A purchase flagged as redeem-only
	// WHEN: It is recorded with a positive amount paid
	// THEN: No bonus accrues

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Clara", "+100000003")
	engine := ledger.NewPurchaseEngine(store)

	tx, err := engine.RecordPurchase(ctx, client.ID, dec("50"), decimal.Zero, false)
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	assertMoney(t, "BonusEarned", tx.BonusEarned, "0.00")

	updated, _ := store.GetClient(ctx, client.ID)
	assertMoney(t, "BonusBalance", updated.BonusBalance, "0.00")
}

func TestRecordPurchase_RoundsEarnedToCents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Dmitri", "+100000004")
	engine := ledger.NewPurchaseEngine(store)

	// 33.33 * 0.03 = 0.9999 -> 1.00
	tx, err := engine.RecordPurchase(ctx, client.ID, dec("33.33"), decimal.Zero, true)
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}
	assertMoney(t, "BonusEarned", tx.BonusEarned, "1.00")
}

func TestRecordPurchase_Validation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Elena", "+100000005")
	engine := ledger.NewPurchaseEngine(store)

	cases := []struct {
		name   string
		amount decimal.Decimal
		used   decimal.Decimal
	}{
		{"zero amount", decimal.Zero, decimal.Zero},
		{"negative amount", dec("-10"), decimal.Zero},
		{"negative bonus used", dec("100"), dec("-1")},
		{"bonus used exceeds amount", dec("100"), dec("100.01")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.RecordPurchase(ctx, client.ID, tc.amount, tc.used, true)
			if !ledger.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	// Nothing must have been written
	txs, err := store.TransactionsForClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("TransactionsForClient failed: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected empty ledger after rejected inputs, got %d rows", len(txs))
	}
}

func TestRecordPurchase_UnknownClient(t *testing.T) {
	store := newTestStore(t)
	engine := ledger.NewPurchaseEngine(store)

	_, err := engine.RecordPurchase(context.Background(), "no-such-client", dec("100"), decimal.Zero, true)
	if !ledger.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestRefund_NegatesAndRestoresAccount(t *testing.T) {
	// GIVEN: Client bought for 1000 (earned 30), then for 100 using 20 bonus
	// WHEN: The second purchase is refunded
	// THEN: The refund row is the exact negation of the original and the
	//       account returns to its state before that purchase

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Fedor", "+100000006")
	purchases := ledger.NewPurchaseEngine(store)
	refunds := ledger.NewRefundEngine(store)

	if _, err := purchases.RecordPurchase(ctx, client.ID, dec("1000"), decimal.Zero, true); err != nil {
		t.Fatalf("seed purchase failed: %v", err)
	}
	target, err := purchases.RecordPurchase(ctx, client.ID, dec("100"), dec("20"), true)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	refund, err := refunds.Refund(ctx, target.ID)
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}

	assertMoney(t, "PurchaseAmount", refund.PurchaseAmount, "-100.00")
	assertMoney(t, "BonusUsed", refund.BonusUsed, "-20.00")
	assertMoney(t, "BonusEarned", refund.BonusEarned, "-2.40")
	assertMoney(t, "FinalPaid", refund.FinalPaid, "-80.00")
	if !refund.IsRefund || refund.RefundFor != target.ID {
		t.Errorf("refund row not linked to original: is_refund=%v refund_for=%q", refund.IsRefund, refund.RefundFor)
	}

	updated, _ := store.GetClient(ctx, client.ID)
	assertMoney(t, "BonusBalance", updated.BonusBalance, "30.00")
	assertMoney(t, "TotalPurchasesSum", updated.TotalPurchasesSum, "1000.00")
	if updated.TotalOrdersCount != 1 {
		t.Errorf("TotalOrdersCount = %d, want 1", updated.TotalOrdersCount)
	}
}

func TestRefund_SecondAttemptConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Galina", "+100000007")
	purchases := ledger.NewPurchaseEngine(store)
	refunds := ledger.NewRefundEngine(store)

	target, err := purchases.RecordPurchase(ctx, client.ID, dec("100"), decimal.Zero, true)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if _, err := refunds.Refund(ctx, target.ID); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}

	_, err = refunds.Refund(ctx, target.ID)
	if !ledger.IsConflict(err) {
		t.Errorf("expected conflict on second refund, got %v", err)
	}

	// Account must not have been adjusted twice
	updated, _ := store.GetClient(ctx, client.ID)
	assertMoney(t, "BonusBalance", updated.BonusBalance, "0.00")
	assertMoney(t, "TotalPurchasesSum", updated.TotalPurchasesSum, "0.00")
	if updated.TotalOrdersCount != 0 {
		t.Errorf("TotalOrdersCount = %d, want 0", updated.TotalOrdersCount)
	}
}

func TestRefund_OfRefundRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Hana", "+100000008")
	purchases := ledger.NewPurchaseEngine(store)
	refunds := ledger.NewRefundEngine(store)

	target, _ := purchases.RecordPurchase(ctx, client.ID, dec("100"), decimal.Zero, true)
	refund, err := refunds.Refund(ctx, target.ID)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	_, err = refunds.Refund(ctx, refund.ID)
	if !ledger.IsInvalidOperation(err) {
		t.Errorf("expected invalid-operation error, got %v", err)
	}
}

func TestRefund_UnknownTransaction(t *testing.T) {
	store := newTestStore(t)
	refunds := ledger.NewRefundEngine(store)

	_, err := refunds.Refund(context.Background(), "no-such-tx")
	if !ledger.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

// =============================================================================
// CACHE CONSISTENCY
// =============================================================================

func TestCachedTotals_MatchLedgerReplay(t *testing.T) {
	// GIVEN: A mix of purchases, a redemption and a refund
	// WHEN: The full ledger is replayed from zero
	// THEN: The replay reproduces the cached totals exactly

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Igor", "+100000009")
	purchases := ledger.NewPurchaseEngine(store)
	refunds := ledger.NewRefundEngine(store)

	if _, err := purchases.RecordPurchase(ctx, client.ID, dec("250.50"), decimal.Zero, true); err != nil {
		t.Fatal(err)
	}
	second, err := purchases.RecordPurchase(ctx, client.ID, dec("99.99"), dec("5"), true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := purchases.RecordPurchase(ctx, client.ID, dec("10"), dec("2"), false); err != nil {
		t.Fatal(err)
	}
	if _, err := refunds.Refund(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	txs, err := store.TransactionsForClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("TransactionsForClient failed: %v", err)
	}

	replayBalance := decimal.Zero
	replaySum := decimal.Zero
	replayCount := 0
	for _, tx := range txs {
		replayBalance = replayBalance.Add(tx.BalanceDelta())
		replaySum = replaySum.Add(tx.PurchaseAmount)
		if tx.IsRefund {
			replayCount--
		} else {
			replayCount++
		}

		// Row-level invariant: final_paid = purchase_amount - bonus_used
		if !tx.FinalPaid.Equal(tx.PurchaseAmount.Sub(tx.BonusUsed)) {
			t.Errorf("row %s violates final_paid invariant", tx.ID)
		}
	}

	cached, _ := store.GetClient(ctx, client.ID)
	if !cached.BonusBalance.Equal(replayBalance) {
		t.Errorf("BonusBalance cache %s != replay %s", cached.BonusBalance, replayBalance)
	}
	if !cached.TotalPurchasesSum.Equal(replaySum) {
		t.Errorf("TotalPurchasesSum cache %s != replay %s", cached.TotalPurchasesSum, replaySum)
	}
	if cached.TotalOrdersCount != replayCount {
		t.Errorf("TotalOrdersCount cache %d != replay %d", cached.TotalOrdersCount, replayCount)
	}
}

func TestRecordPurchase_ConcurrentNoLostIncrements(t *testing.T) {
	// GIVEN: One client and many purchases arriving at once
	// WHEN: 20 goroutines each record a 10.00 purchase
	// THEN: Every increment survives and the cache matches a replay

	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Kira", "+200000004")
	engine := ledger.NewPurchaseEngine(store)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.RecordPurchase(ctx, client.ID, dec("10"), decimal.Zero, true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent RecordPurchase failed: %v", err)
		}
	}

	cached, err := store.GetClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if cached.TotalOrdersCount != n {
		t.Errorf("TotalOrdersCount = %d, want %d", cached.TotalOrdersCount, n)
	}
	assertMoney(t, "TotalPurchasesSum", cached.TotalPurchasesSum, "200.00")
	assertMoney(t, "BonusBalance", cached.BonusBalance, "6.00") // 20 * 0.30

	txs, err := store.TransactionsForClient(ctx, client.ID)
	if err != nil {
		t.Fatalf("TransactionsForClient failed: %v", err)
	}
	if len(txs) != n {
		t.Fatalf("ledger has %d rows, want %d", len(txs), n)
	}
	replayBalance := decimal.Zero
	for _, tx := range txs {
		replayBalance = replayBalance.Add(tx.BalanceDelta())
	}
	if !cached.BonusBalance.Equal(replayBalance) {
		t.Errorf("BonusBalance cache %s != replay %s", cached.BonusBalance, replayBalance)
	}
}

// =============================================================================
// CLIENT ACCOUNTS
// =============================================================================

func TestCreateClient_DuplicatePhone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	svc := ledger.NewClientService(store)

	if _, err := svc.CreateClient(ctx, "First", "+200000001", ledger.RoleClient); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	_, err := svc.CreateClient(ctx, "Second", "+200000001", ledger.RoleClient)
	if !ledger.IsConflict(err) {
		t.Errorf("expected conflict on duplicate phone, got %v", err)
	}

	// Empty phones never conflict
	if _, err := svc.CreateClient(ctx, "Third", "", ledger.RoleClient); err != nil {
		t.Fatalf("CreateClient without phone failed: %v", err)
	}
	if _, err := svc.CreateClient(ctx, "Fourth", "", ledger.RoleClient); err != nil {
		t.Fatalf("second CreateClient without phone failed: %v", err)
	}
}

func TestDeleteClient_CascadesTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Jana", "+200000002")
	purchases := ledger.NewPurchaseEngine(store)

	tx, err := purchases.RecordPurchase(ctx, client.ID, dec("100"), decimal.Zero, true)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	if err := ledger.NewClientService(store).DeleteClient(ctx, client.ID); err != nil {
		t.Fatalf("DeleteClient failed: %v", err)
	}

	if _, err := store.GetClient(ctx, client.ID); !ledger.IsNotFound(err) {
		t.Errorf("expected client gone, got %v", err)
	}
	if _, err := store.GetTransaction(ctx, tx.ID); !ledger.IsNotFound(err) {
		t.Errorf("expected transactions cascaded, got %v", err)
	}
}

func TestUpdateClient_PartialFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	client := newTestClient(t, store, "Karl", "+200000003")
	svc := ledger.NewClientService(store)

	newName := "Karl Renamed"
	updated, err := svc.UpdateClient(ctx, client.ID, ledger.ClientUpdate{Name: &newName})
	if err != nil {
		t.Fatalf("UpdateClient failed: %v", err)
	}
	if updated.Name != newName {
		t.Errorf("Name = %q, want %q", updated.Name, newName)
	}
	if updated.Phone != client.Phone {
		t.Errorf("Phone changed unexpectedly: %q", updated.Phone)
	}

	badRole := ledger.Role("admin")
	if _, err := svc.UpdateClient(ctx, client.ID, ledger.ClientUpdate{Role: &badRole}); !ledger.IsValidation(err) {
		t.Errorf("expected validation error for unknown role, got %v", err)
	}
}
