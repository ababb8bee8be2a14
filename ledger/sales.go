/*
sales.go - Read-only sales rollups

PURPOSE:
  Daily summaries and per-day transaction listings for the sales views.
  Pure reads over the transaction log; refund rows are excluded from the
  sums because they are not sales events. A purchase that has been
  refunded still appears, flagged with the derived is_refunded boolean.

CONSISTENCY:
  These reads do not need to be linearizable with concurrent writes.
  Whatever committed state they observe is internally consistent because
  every write was an atomic insert+update unit.
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/warp/loyalty-ledger/money"
)

// SalesAggregator produces read-only rollups over the transaction log.
type SalesAggregator struct {
	Store Store
}

// NewSalesAggregator creates an aggregator over the given store.
func NewSalesAggregator(store Store) *SalesAggregator {
	return &SalesAggregator{Store: store}
}

// DailySummaries groups all non-refund transactions by UTC calendar day.
// Each sum is rounded; days are ordered most recent first. Returns an
// empty slice when no purchases exist.
func (a *SalesAggregator) DailySummaries(ctx context.Context) ([]DailySummary, error) {
	txs, err := a.Store.NonRefundTransactions(ctx)
	if err != nil {
		return nil, storageErr("daily summaries", err)
	}

	byDate := make(map[string]*DailySummary)
	for _, tx := range txs {
		date := tx.CreatedAt.UTC().Format("2006-01-02")

		s, ok := byDate[date]
		if !ok {
			s = &DailySummary{Date: date}
			byDate[date] = s
		}

		s.OrdersCount++
		s.TotalPurchaseAmount = money.Round(s.TotalPurchaseAmount.Add(tx.PurchaseAmount))
		s.TotalFinalPaid = money.Round(s.TotalFinalPaid.Add(tx.FinalPaid))
		s.TotalBonusUsed = money.Round(s.TotalBonusUsed.Add(tx.BonusUsed))
		s.TotalBonusEarned = money.Round(s.TotalBonusEarned.Add(tx.BonusEarned))
	}

	summaries := make([]DailySummary, 0, len(byDate))
	for _, s := range byDate {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Date > summaries[j].Date
	})

	return summaries, nil
}

// TransactionsForDate returns all non-refund transactions within the given
// UTC calendar day in chronological order, each annotated with whether a
// refund references it.
func (a *SalesAggregator) TransactionsForDate(ctx context.Context, date time.Time) ([]AnnotatedTransaction, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	txs, err := a.Store.NonRefundTransactionsInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, storageErr("transactions for date", err)
	}
	if len(txs) == 0 {
		return []AnnotatedTransaction{}, nil
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}

	refunded, err := a.Store.RefundedIDs(ctx, ids)
	if err != nil {
		return nil, storageErr("transactions for date", err)
	}

	annotated := make([]AnnotatedTransaction, len(txs))
	for i, tx := range txs {
		annotated[i] = AnnotatedTransaction{
			Transaction: tx,
			IsRefunded:  refunded[tx.ID],
		}
	}
	return annotated, nil
}
