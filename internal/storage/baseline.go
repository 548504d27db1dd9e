package storage

import (
	"sort"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Median returns the median of prices: the middle element for odd counts,
// the mean of the two middle elements for even counts. The input slice is
// not mutated and insertion order does not affect the result. Returns zero
// for an empty slice.
func Median(prices []decimal.Decimal) decimal.Decimal {
	n := len(prices)
	if n == 0 {
		return decimal.Zero
	}

	sorted := make([]decimal.Decimal, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(two)
}
