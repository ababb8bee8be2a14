/*
Package money provides fixed-precision rounding for monetary values.

PURPOSE:
  Every monetary figure this system stores or returns is a decimal rounded
  to 2 places. Rounding is applied after each arithmetic chain, not once at
  the end, so drift can never accumulate across a growing transaction log.

WHY decimal.Decimal?
  float64 cannot represent most cent values exactly (0.1 + 0.2 != 0.3).
  A ledger that replays thousands of transactions would slowly diverge from
  its cached totals. decimal.Decimal keeps replay exact.

ROUNDING MODE:
  Round half away from zero at the cent boundary. For the positive amounts
  purchases produce this is plain round-half-up; refunds store the exact
  negation of values that were already rounded, so the symmetric mode keeps
  the negated quadruple consistent with the original.

SEE ALSO:
  - bonus/policy.go: Earn/redeem computations built on Round
  - ledger/purchase.go, ledger/refund.go: Where rounded values are stored
*/
package money

import "github.com/shopspring/decimal"

// Round normalizes a monetary value to 2 decimal places.
// Apply after every addition/subtraction/multiplication chain whose result
// is stored or returned.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FromFloat converts a float (e.g. parsed JSON) into a 2-place decimal.
func FromFloat(f float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(f))
}

// MustParse parses a decimal string, returning zero on failure.
// Intended for values we wrote ourselves (database columns, constants).
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Sum rounds the running total of the given values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return Round(total)
}
