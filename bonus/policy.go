/*
Package bonus implements the loyalty bonus policy as pure functions.

PURPOSE:
  All earn/redeem arithmetic lives here, side-effect free. The purchase and
  refund engines call into this package; nothing here touches storage, so
  every rule is testable with plain values.

POLICY CONSTANTS:
  EarnRate          3% of the amount actually paid (after redemption)
  MaxRedeemFraction at most 20% of a purchase may be paid with bonus
  HoldWindow        bonus earned in the last 10 hours cannot be redeemed yet

BALANCE vs AVAILABLE BALANCE:
  The account caches a running bonus balance that includes everything.
  The AVAILABLE balance is a derived, point-in-time read that excludes
  entries younger than the hold window and is clamped at zero. It is never
  stored - storing it would create a second source of truth that drifts
  from the log.

EARN BASIS:
  Earn is computed on final_paid (post-redemption), not on the gross
  purchase amount. Redeeming bonus therefore reduces the bonus earned.

SEE ALSO:
  - money/money.go: Rounding applied to every result
  - ledger/purchase.go: Caller of ComputeEarn
*/
package bonus

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-ledger/money"
)

// =============================================================================
// POLICY CONSTANTS
// =============================================================================

var (
	// EarnRate is the fraction of final_paid credited as new bonus.
	EarnRate = decimal.NewFromFloat(0.03)

	// MaxRedeemFraction caps redemption at this fraction of the purchase amount.
	MaxRedeemFraction = decimal.NewFromFloat(0.20)
)

// HoldWindow is the maturation delay before earned bonus becomes redeemable.
const HoldWindow = 10 * time.Hour

// =============================================================================
// EARN / REDEEM COMPUTATIONS
// =============================================================================

// ComputeEarn returns the bonus credited for a purchase with the given
// post-redemption paid amount.
func ComputeEarn(finalPaid decimal.Decimal) decimal.Decimal {
	return money.Round(finalPaid.Mul(EarnRate))
}

// MaxRedeemable returns the largest bonus amount that may be applied to a
// purchase. Three constraints apply simultaneously; the smallest binds:
//   - the client's available balance (cannot redeem more than you have)
//   - MaxRedeemFraction of the purchase amount
//   - the purchase amount itself (cannot pay less than zero)
func MaxRedeemable(purchaseAmount, available decimal.Decimal) decimal.Decimal {
	byFraction := money.Round(purchaseAmount.Mul(MaxRedeemFraction))
	return decimal.Min(available, byFraction, purchaseAmount)
}

// =============================================================================
// AVAILABLE BALANCE - time-windowed aggregation over ledger entries
// =============================================================================

// Entry is the slice of a ledger transaction the hold computation needs.
// Refund rows participate with their negated earned/used values, which is
// exactly what makes a refunded purchase stop contributing.
type Entry struct {
	Earned    decimal.Decimal
	Used      decimal.Decimal
	CreatedAt time.Time
}

// AvailableBalance sums earned-minus-used over entries created at or before
// asOf minus the hold window, clamped to zero. Entries inside the window are
// still part of the cached account balance - just not redeemable yet.
func AvailableBalance(entries []Entry, asOf time.Time) decimal.Decimal {
	threshold := asOf.Add(-HoldWindow)

	total := decimal.Zero
	for _, e := range entries {
		if e.CreatedAt.After(threshold) {
			continue
		}
		total = total.Add(e.Earned).Sub(e.Used)
	}

	if total.IsNegative() {
		return decimal.Zero
	}
	return money.Round(total)
}
