/*
refund.go - Refund engine

PURPOSE:
  Reverses a prior purchase by appending a refund transaction whose every
  monetary field is the exact negation of the original, then adjusting the
  client's cached totals. The original row is never touched - reversal is
  additive, preserving full history.

RULES:
  - The target must exist (ErrTransactionNotFound)
  - A refund cannot itself be refunded (ErrRefundOfRefund)
  - At most one refund per purchase (ErrAlreadyRefunded)

ACCOUNT EFFECT:
  bonusChange = bonus_used - bonus_earned: restore what was redeemed,
  revoke what was earned. Purchases sum drops by the original amount and
  the net order count drops by one.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/loyalty-ledger/money"
)

// RefundEngine orchestrates purchase reversal.
type RefundEngine struct {
	Store Store

	now func() time.Time
}

// NewRefundEngine creates a refund engine over the given store.
func NewRefundEngine(store Store) *RefundEngine {
	return &RefundEngine{Store: store, now: time.Now}
}

// Refund reverses the purchase with the given id and returns the created
// refund transaction. Insert and account update are one atomic unit.
func (e *RefundEngine) Refund(ctx context.Context, transactionID string) (*Transaction, error) {
	var refund *Transaction

	err := e.Store.WithTx(ctx, func(s Store) error {
		target, err := s.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if target.IsRefund {
			return ErrRefundOfRefund
		}

		existing, err := s.RefundOf(ctx, target.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyRefunded
		}

		client, err := s.GetClient(ctx, target.ClientID)
		if err != nil {
			return err
		}

		refund = &Transaction{
			ID:             uuid.NewString(),
			ClientID:       target.ClientID,
			PurchaseAmount: target.PurchaseAmount.Neg(),
			BonusUsed:      target.BonusUsed.Neg(),
			BonusEarned:    target.BonusEarned.Neg(),
			FinalPaid:      target.FinalPaid.Neg(),
			CreatedAt:      e.now().UTC(),
			IsRefund:       true,
			RefundFor:      target.ID,
		}

		if err := s.AppendTransaction(ctx, refund); err != nil {
			return err
		}

		bonusChange := target.BonusUsed.Sub(target.BonusEarned)

		return s.SaveClientTotals(ctx, client.ID,
			money.Round(client.BonusBalance.Add(bonusChange)),
			money.Round(client.TotalPurchasesSum.Sub(target.PurchaseAmount)),
			client.TotalOrdersCount-1,
		)
	})
	if err != nil {
		return nil, storageErr("refund", err)
	}

	return refund, nil
}
