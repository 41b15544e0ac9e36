package processor

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"bookflow/models"
)

var ErrInvalidGroupSize = errors.New("group size must be positive")

// Group re-buckets ascending levels onto a grid of width groupSize. Each
// level lands in floor(price/groupSize)*groupSize and consecutive levels
// sharing a bucket are summed. Input order is trusted and not re-sorted.
//
// Bucket arithmetic is done in decimal so that grids such as 0.05 do not
// misplace prices through binary rounding.
func Group(levels []models.Level, groupSize float64) ([]models.Level, error) {
	if !(groupSize > 0) || math.IsInf(groupSize, 0) {
		return nil, ErrInvalidGroupSize
	}
	grouped := make([]models.Level, 0, len(levels))
	if len(levels) == 0 {
		return grouped, nil
	}

	g := decimal.NewFromFloat(groupSize)
	bucketOf := func(price float64) decimal.Decimal {
		return decimal.NewFromFloat(price).Div(g).Floor().Mul(g)
	}

	current := bucketOf(levels[0].Price)
	sum := decimal.Zero
	for _, l := range levels {
		b := bucketOf(l.Price)
		if !b.Equal(current) {
			grouped = append(grouped, models.Level{Price: current.InexactFloat64(), Size: sum.InexactFloat64()})
			current = b
			sum = decimal.Zero
		}
		sum = sum.Add(decimal.NewFromFloat(l.Size))
	}
	grouped = append(grouped, models.Level{Price: current.InexactFloat64(), Size: sum.InexactFloat64()})
	return grouped, nil
}
