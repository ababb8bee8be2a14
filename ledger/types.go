/*
Package ledger is the loyalty-bonus ledger and transaction engine.

PURPOSE:
  Tracks per-client purchases, bonus accrual, bonus redemption and refunds.
  The transactions table is an append-only log and the single source of
  truth; the totals cached on the client row are a denormalized view over
  it and must always be reproducible by replaying the log from zero.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client: account aggregate with cached running totals
  - Transaction: immutable ledger entry (purchase or refund)
  - VIN: vehicle identifier attached to a client
  - DailySummary / PurchaseSummary: read-model rows

DESIGN PRINCIPLES:
  1. Immutability: transactions are inserted once, never updated or deleted
  2. Reversal over deletion: a refund is a new row negating the original
  3. Precision: decimal.Decimal for every monetary field
  4. Cache, not truth: client totals are recomputable from the log

SEE ALSO:
  - purchase.go, refund.go: The only writers of client totals
  - sales.go: Read-only rollups
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CLIENT - account aggregate with cached totals
// =============================================================================

// Role distinguishes regular clients from workshop masters.
type Role string

const (
	RoleClient Role = "client"
	RoleMaster Role = "master"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	return r == RoleClient || r == RoleMaster
}

// Client is the account aggregate. BonusBalance, TotalPurchasesSum and
// TotalOrdersCount are a cache over the transaction log: replaying every
// non-voided transaction for the client from zero must reproduce them
// exactly. They are mutated only by the purchase and refund engines,
// atomically with the transaction they accompany.
type Client struct {
	ID        string
	Name      string
	Phone     string
	Role      Role
	CreatedAt time.Time

	// Cached running totals. BonusBalance includes bonus still inside the
	// hold window; the redeemable subset is a derived read (bonus package).
	BonusBalance      decimal.Decimal
	TotalPurchasesSum decimal.Decimal
	TotalOrdersCount  int
}

// ClientUpdate carries optional field updates; nil means unchanged.
type ClientUpdate struct {
	Name  *string
	Phone *string
	Role  *Role
}

// =============================================================================
// TRANSACTION - immutable ledger entry
// =============================================================================

// Transaction is one append-only ledger row. For a purchase all monetary
// fields are as computed at sale time; a refund stores the exact negation
// of the original's quadruple and points back at it via RefundFor.
//
// Invariant for every row, purchase or refund:
//
//	FinalPaid = PurchaseAmount - BonusUsed
type Transaction struct {
	ID       string
	ClientID string

	PurchaseAmount decimal.Decimal
	BonusUsed      decimal.Decimal
	BonusEarned    decimal.Decimal
	FinalPaid      decimal.Decimal

	CreatedAt time.Time
	IsRefund  bool
	RefundFor string // original transaction id when IsRefund, else empty
}

// BalanceDelta is this row's contribution to the cached bonus balance.
func (t Transaction) BalanceDelta() decimal.Decimal {
	return t.BonusEarned.Sub(t.BonusUsed)
}

// =============================================================================
// VIN - vehicle identifier owned by a client
// =============================================================================

// VIN is a vehicle identification number registered to a client, with an
// optional human label ("the red excavator"). Unique per client.
type VIN struct {
	ID           string
	ClientID     string
	VIN          string
	MachineLabel string
	CreatedAt    time.Time
}

// =============================================================================
// READ MODELS
// =============================================================================

// PurchaseSummary is one row of a client's purchase history.
type PurchaseSummary struct {
	ID             string
	CreatedAt      time.Time
	PurchaseAmount decimal.Decimal
}

// DailySummary aggregates one UTC calendar day of sales. Refund rows are
// excluded entirely - they are not sales events.
type DailySummary struct {
	Date                string // YYYY-MM-DD
	OrdersCount         int
	TotalPurchaseAmount decimal.Decimal
	TotalFinalPaid      decimal.Decimal
	TotalBonusUsed      decimal.Decimal
	TotalBonusEarned    decimal.Decimal
}

// AnnotatedTransaction is a purchase row with the derived refunded flag.
// The flag is computed at read time by checking for a referencing refund;
// it is never stored on the purchase itself.
type AnnotatedTransaction struct {
	Transaction
	IsRefunded bool
}
