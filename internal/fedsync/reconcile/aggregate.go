// Package reconcile aggregates county line items and merges them with
// declarations and financial summaries into one record per county and
// disaster.
package reconcile

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/sells-group/disaster-recon/internal/model"
)

// LineItemSummary is the sum of one county's line items for one disaster.
// Sums stay nil when no contributing item carried the amount.
type LineItemSummary struct {
	DisasterNumber model.DisasterNumber
	StateFIPS      string
	CountyFIPS     string
	Requested      *decimal.Decimal
	Obligated      *decimal.Decimal
	LineItems      int
}

// FIPS returns the 5-digit county FIPS code.
func (s LineItemSummary) FIPS() string {
	return s.StateFIPS + s.CountyFIPS
}

type groupKey struct {
	disaster model.DisasterNumber
	fips     string
}

// Aggregate groups line items by county and disaster and sums their amounts
// exactly. Output is ordered by county FIPS, then disaster number.
func Aggregate(items []model.CountyLineItem) []LineItemSummary {
	groups := make(map[groupKey]*LineItemSummary)
	for _, item := range items {
		k := groupKey{disaster: item.DisasterNumber, fips: item.FIPS()}
		g, ok := groups[k]
		if !ok {
			g = &LineItemSummary{
				DisasterNumber: item.DisasterNumber,
				StateFIPS:      item.StateFIPS,
				CountyFIPS:     item.CountyFIPS,
			}
			groups[k] = g
		}
		g.Requested = addOptional(g.Requested, item.RequestedAmount)
		g.Obligated = addOptional(g.Obligated, item.ObligationAmount)
		g.LineItems++
	}

	out := make([]LineItemSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	slices.SortFunc(out, func(a, b LineItemSummary) int {
		return cmp.Or(
			cmp.Compare(a.FIPS(), b.FIPS()),
			cmp.Compare(a.DisasterNumber, b.DisasterNumber),
		)
	})
	return out
}

// addOptional adds two optional amounts. The result is nil only when both are.
func addOptional(sum, v *decimal.Decimal) *decimal.Decimal {
	switch {
	case v == nil:
		return sum
	case sum == nil:
		d := *v
		return &d
	default:
		d := sum.Add(*v)
		return &d
	}
}

// SumPresent adds the non-nil amounts; absent addends count as zero.
func SumPresent(vals ...*decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range vals {
		if v != nil {
			total = total.Add(*v)
		}
	}
	return total
}
