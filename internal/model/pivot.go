package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PivotType distinguishes swing highs from swing lows.
type PivotType string

const (
	PivotHigh PivotType = "HIGH"
	PivotLow  PivotType = "LOW"
)

// Pivot is a confirmed swing high or low (§3, §4.3).
type Pivot struct {
	Index     int             // index within the bar window snapshot
	Price     decimal.Decimal // the pivot's high or low price
	Type      PivotType
	Strength  int // number of bars on each side it dominates (>= lookback)
	Timestamp time.Time
}

// PriceCluster groups pivots whose prices lie within tolerance_pct of
// the cluster's running mean (§4.4).
type PriceCluster struct {
	Type       PivotType
	Pivots     []Pivot
	Average    decimal.Decimal
	Min        decimal.Decimal
	Max        decimal.Decimal
	Std        decimal.Decimal
	TouchCount int
}

// Append adds a pivot to the cluster and recomputes the running
// statistics (mean, min, max, population stddev).
func (c *PriceCluster) Append(p Pivot) {
	c.Pivots = append(c.Pivots, p)
	c.TouchCount = len(c.Pivots)
	c.recompute()
}

func (c *PriceCluster) recompute() {
	sum := decimal.Zero
	min := c.Pivots[0].Price
	max := c.Pivots[0].Price
	for _, p := range c.Pivots {
		sum = sum.Add(p.Price)
		if p.Price.LessThan(min) {
			min = p.Price
		}
		if p.Price.GreaterThan(max) {
			max = p.Price
		}
	}
	n := decimal.NewFromInt(int64(len(c.Pivots)))
	mean := sum.Div(n)

	varSum := decimal.Zero
	for _, p := range c.Pivots {
		d := p.Price.Sub(mean)
		varSum = varSum.Add(d.Mul(d))
	}
	variance := varSum.Div(n)
	std, _ := variance.Float64()
	c.Average = mean
	c.Min = min
	c.Max = max
	c.Std = decimal.NewFromFloat(math.Sqrt(std))
}
