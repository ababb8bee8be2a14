/*
purchase.go - Purchase engine

PURPOSE:
  Records a sale: one immutable purchase transaction plus the matching
  update of the client's cached totals, as a single atomic unit.

TRUST BOUNDARY:
  The caller is expected to have bounded bonusUsed with bonus.MaxRedeemable
  against the client's AVAILABLE balance before calling. The engine does
  not re-derive the available balance; it still rejects bonusUsed outside
  [0, purchaseAmount] and non-positive purchase amounts.

REDEEM-ONLY MODE:
  With accrueBonus=false no bonus accrues regardless of the amount paid.
  Used for "spend bonus only" sales.

ATOMICITY:
  Transaction insert and account update happen inside one store.WithTx
  unit: both take effect or neither does. A crash between the two steps
  must never leave the cache inconsistent with the log.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-ledger/bonus"
	"github.com/warp/loyalty-ledger/money"
)

// PurchaseEngine orchestrates purchase recording.
type PurchaseEngine struct {
	Store Store

	now func() time.Time
}

// NewPurchaseEngine creates a purchase engine over the given store.
func NewPurchaseEngine(store Store) *PurchaseEngine {
	return &PurchaseEngine{Store: store, now: time.Now}
}

// RecordPurchase validates the input, computes the monetary quadruple and
// atomically appends the transaction while updating the client's totals.
// Returns the created transaction.
func (e *PurchaseEngine) RecordPurchase(ctx context.Context, clientID string, purchaseAmount, bonusUsed decimal.Decimal, accrueBonus bool) (*Transaction, error) {
	if !purchaseAmount.IsPositive() {
		return nil, &ValidationError{Field: "purchase_amount", Reason: "must be positive"}
	}
	if bonusUsed.IsNegative() {
		return nil, &ValidationError{Field: "bonus_used", Reason: "must not be negative"}
	}
	if bonusUsed.GreaterThan(purchaseAmount) {
		return nil, &ValidationError{Field: "bonus_used", Reason: "cannot exceed purchase amount"}
	}

	purchaseAmount = money.Round(purchaseAmount)
	bonusUsed = money.Round(bonusUsed)
	finalPaid := money.Round(purchaseAmount.Sub(bonusUsed))

	bonusEarned := decimal.Zero
	if accrueBonus {
		bonusEarned = bonus.ComputeEarn(finalPaid)
	}

	tx := &Transaction{
		ID:             uuid.NewString(),
		ClientID:       clientID,
		PurchaseAmount: purchaseAmount,
		BonusUsed:      bonusUsed,
		BonusEarned:    bonusEarned,
		FinalPaid:      finalPaid,
		CreatedAt:      e.now().UTC(),
		IsRefund:       false,
	}

	err := e.Store.WithTx(ctx, func(s Store) error {
		client, err := s.GetClient(ctx, clientID)
		if err != nil {
			return err
		}

		if err := s.AppendTransaction(ctx, tx); err != nil {
			return err
		}

		return s.SaveClientTotals(ctx, client.ID,
			money.Round(client.BonusBalance.Add(bonusEarned).Sub(bonusUsed)),
			money.Round(client.TotalPurchasesSum.Add(purchaseAmount)),
			client.TotalOrdersCount+1,
		)
	})
	if err != nil {
		return nil, storageErr("record purchase", err)
	}

	return tx, nil
}
