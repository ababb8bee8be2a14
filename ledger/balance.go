/*
balance.go - Derived available-balance reads

PURPOSE:
  Answers "how much bonus can this client redeem right now?". A pure
  time-windowed aggregation over the log with no persisted state of its
  own - the hold window lives in the bonus package, the query here.

BATCHING:
  List views need the figure for every visible client. AvailableBalances
  resolves a whole batch with a single store query.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-ledger/bonus"
)

// BalanceReader computes redeemable bonus balances.
type BalanceReader struct {
	Store Store

	now func() time.Time
}

// NewBalanceReader creates a balance reader over the given store.
func NewBalanceReader(store Store) *BalanceReader {
	return &BalanceReader{Store: store, now: time.Now}
}

// AvailableBalance returns the client's redeemable bonus as of now:
// earned minus used over matured entries, clamped at zero.
func (r *BalanceReader) AvailableBalance(ctx context.Context, clientID string) (decimal.Decimal, error) {
	balances, err := r.AvailableBalances(ctx, []string{clientID})
	if err != nil {
		return decimal.Zero, err
	}
	return balances[clientID], nil
}

// AvailableBalances resolves redeemable balances for a batch of clients in
// one query. Clients with no matured entries map to zero.
func (r *BalanceReader) AvailableBalances(ctx context.Context, clientIDs []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(clientIDs))
	for _, id := range clientIDs {
		result[id] = decimal.Zero
	}
	if len(clientIDs) == 0 {
		return result, nil
	}

	asOf := r.now().UTC()
	entries, err := r.Store.BonusEntriesThrough(ctx, clientIDs, asOf.Add(-bonus.HoldWindow))
	if err != nil {
		return nil, storageErr("available balances", err)
	}

	for id, rows := range entries {
		converted := make([]bonus.Entry, len(rows))
		for i, row := range rows {
			converted[i] = bonus.Entry{Earned: row.Earned, Used: row.Used, CreatedAt: row.CreatedAt}
		}
		result[id] = bonus.AvailableBalance(converted, asOf)
	}
	return result, nil
}
