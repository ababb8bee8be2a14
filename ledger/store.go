/*
store.go - Persistence interface for the bonus ledger

PURPOSE:
  Defines what the engines need from a storage backend. The sqlite package
  implements this; tests run against it with an in-memory database.

APPEND-ONLY ENFORCEMENT:
  AppendTransaction is the only write on the transaction log. There is no
  update or delete - refunds are new rows, and the only deletion path is
  the cascade when a client account is removed.

ATOMIC UNIT:
  WithTx executes a function against a transactional view of the store.
  Everything inside either commits together or rolls back together. The
  purchase and refund engines rely on this for their single most important
  guarantee: a ledger row and its account update are never visible apart.
  Implementations must also serialize concurrent WithTx units touching the
  same client row so that two concurrent updates cannot lose an increment.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - purchase.go, refund.go: The WithTx callers
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the engines and read models use.
type Store interface {
	ClientStore
	TransactionStore
	VINStore

	// WithTx runs fn against a transactional store. All writes inside fn
	// become visible atomically on commit; any error rolls everything back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// ClientStore persists client accounts and their cached totals.
type ClientStore interface {
	// CreateClient inserts a new account. Returns ErrDuplicatePhone when a
	// client with the same non-empty phone exists.
	CreateClient(ctx context.Context, c *Client) error

	// GetClient returns the account or ErrClientNotFound.
	GetClient(ctx context.Context, id string) (*Client, error)

	// ListClients returns all accounts, most recently created first.
	ListClients(ctx context.Context) ([]Client, error)

	// UpdateClient applies the given field updates and returns the result.
	UpdateClient(ctx context.Context, id string, upd ClientUpdate) (*Client, error)

	// SaveClientTotals writes the cached aggregate fields. Only the purchase
	// and refund engines call this, inside a WithTx unit.
	SaveClientTotals(ctx context.Context, id string, bonusBalance, totalPurchases decimal.Decimal, ordersCount int) error

	// DeleteClient removes the account, cascading its transactions and VINs.
	DeleteClient(ctx context.Context, id string) error
}

// TransactionStore persists and queries the append-only transaction log.
type TransactionStore interface {
	// AppendTransaction inserts one immutable ledger row.
	AppendTransaction(ctx context.Context, t *Transaction) error

	// GetTransaction returns the row or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// RefundOf returns the refund row referencing the given purchase, or
	// nil when none exists.
	RefundOf(ctx context.Context, purchaseID string) (*Transaction, error)

	// TransactionsForClient returns every row for a client in insertion order.
	TransactionsForClient(ctx context.Context, clientID string) ([]Transaction, error)

	// PurchasesForClient returns the client's non-refund rows, newest first.
	PurchasesForClient(ctx context.Context, clientID string) ([]PurchaseSummary, error)

	// BonusEntriesThrough returns (earned, used, created_at) triples per
	// client for rows created at or before the cutoff. Feeds the available
	// balance computation; a batched read to keep list views to one query.
	BonusEntriesThrough(ctx context.Context, clientIDs []string, cutoff time.Time) (map[string][]BonusEntry, error)

	// NonRefundTransactions returns all non-refund rows, newest first.
	NonRefundTransactions(ctx context.Context) ([]Transaction, error)

	// NonRefundTransactionsInRange returns non-refund rows with CreatedAt in
	// [from, to), in chronological order.
	NonRefundTransactionsInRange(ctx context.Context, from, to time.Time) ([]Transaction, error)

	// RefundedIDs returns, among the given purchase ids, the set that have a
	// refund row referencing them.
	RefundedIDs(ctx context.Context, purchaseIDs []string) (map[string]bool, error)
}

// VINStore persists a client's vehicle identifiers.
type VINStore interface {
	// AddVIN inserts a VIN. Returns ErrDuplicateVIN when the client already
	// has it, ErrClientNotFound when the client is missing.
	AddVIN(ctx context.Context, v *VIN) error

	// VINsForClient returns the client's VINs, oldest first.
	VINsForClient(ctx context.Context, clientID string) ([]VIN, error)

	// VINsForClients resolves VINs for a batch of clients in one query,
	// keyed by client id. Clients without VINs are absent from the map.
	VINsForClients(ctx context.Context, clientIDs []string) (map[string][]VIN, error)

	// UpdateVINLabel replaces the machine label. Returns ErrVINNotFound.
	UpdateVINLabel(ctx context.Context, id, machineLabel string) (*VIN, error)

	// DeleteVIN removes a VIN record.
	DeleteVIN(ctx context.Context, id string) error
}

// BonusEntry is one log row's contribution to the available-balance read.
type BonusEntry struct {
	Earned    decimal.Decimal
	Used      decimal.Decimal
	CreatedAt time.Time
}
