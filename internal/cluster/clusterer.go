// Package cluster groups pivots into price clusters and pairs them
// into candidate trading ranges (§4.4).
package cluster

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// DefaultTolerancePct is the default cluster tolerance (2%).
const DefaultTolerancePct = 2.0

// DefaultMinRangeWidthPct is the minimum width (3%) for a candidate
// range.
const DefaultMinRangeWidthPct = 3.0

// DefaultMinSpanBars is the minimum bar span (10) for a candidate
// range.
const DefaultMinSpanBars = 10

// Clusterer groups pivots and pairs clusters into candidate ranges.
type Clusterer struct {
	tolerancePct  decimal.Decimal
	minWidthPct   decimal.Decimal
	minSpanBars   int
}

// NewClusterer creates a Clusterer with the given tolerance percentage
// (e.g. 2.0 for 2%), minimum range width percentage, and minimum bar
// span. Pass zero values to use the package defaults.
func NewClusterer(tolerancePct, minWidthPct float64, minSpanBars int) *Clusterer {
	if tolerancePct <= 0 {
		tolerancePct = DefaultTolerancePct
	}
	if minWidthPct <= 0 {
		minWidthPct = DefaultMinRangeWidthPct
	}
	if minSpanBars <= 0 {
		minSpanBars = DefaultMinSpanBars
	}
	return &Clusterer{
		tolerancePct: decimal.NewFromFloat(tolerancePct),
		minWidthPct:  decimal.NewFromFloat(minWidthPct),
		minSpanBars:  minSpanBars,
	}
}

// ClusterPivots groups pivots of one type: a pivot joins the first
// cluster, in creation order, whose running mean is within
// tolerance_pct, else it starts a new cluster.
func (c *Clusterer) ClusterPivots(pivots []model.Pivot, pType model.PivotType) []model.PriceCluster {
	var clusters []model.PriceCluster
	for _, p := range pivots {
		if p.Type != pType {
			continue
		}
		joined := false
		for i := range clusters {
			tolerance := clusters[i].Average.Mul(c.tolerancePct).Div(decimal.NewFromInt(100))
			diff := p.Price.Sub(clusters[i].Average).Abs()
			if diff.LessThanOrEqual(tolerance) {
				clusters[i].Append(p)
				joined = true
				break
			}
		}
		if !joined {
			nc := model.PriceCluster{Type: pType}
			nc.Append(p)
			clusters = append(clusters, nc)
		}
	}
	return clusters
}

// CandidateRange pairs a low cluster with a strictly-higher-average
// high cluster into a scaffold TradingRange (no levels/zones yet).
// Rejects pairs whose range_width_pct < 3% or whose pivot span is
// fewer than 10 bars.
func (c *Clusterer) CandidateRange(symbol string, timeframe model.Timeframe, lowCluster, highCluster model.PriceCluster) (*model.TradingRange, bool) {
	if !highCluster.Average.GreaterThan(lowCluster.Average) {
		return nil, false
	}

	startIdx, endIdx := spanOf(lowCluster, highCluster)
	if endIdx-startIdx+1 < c.minSpanBars {
		return nil, false
	}

	rng := &model.TradingRange{
		Symbol:            symbol,
		Timeframe:         timeframe,
		SupportCluster:    lowCluster,
		ResistanceCluster: highCluster,
		Support:           lowCluster.Average,
		Resistance:        highCluster.Average,
		StartIndex:        startIdx,
		EndIndex:          endIdx,
		Status:            model.RangeFORMING,
	}
	rng.Recompute()

	if rng.RangeWidthPct.LessThan(c.minWidthPct) {
		return nil, false
	}
	rng.ID = fmt.Sprintf("%s-%s-%d-%d", symbol, timeframe, startIdx, endIdx)
	return rng, true
}

func spanOf(a, b model.PriceCluster) (int, int) {
	min, max := -1, -1
	for _, p := range append(append([]model.Pivot{}, a.Pivots...), b.Pivots...) {
		if min == -1 || p.Index < min {
			min = p.Index
		}
		if max == -1 || p.Index > max {
			max = p.Index
		}
	}
	return min, max
}

// CandidateRanges pairs every low cluster with every strictly-higher
// high cluster, returning every surviving candidate.
func (c *Clusterer) CandidateRanges(symbol string, timeframe model.Timeframe, lowClusters, highClusters []model.PriceCluster) []*model.TradingRange {
	var out []*model.TradingRange
	for _, lc := range lowClusters {
		for _, hc := range highClusters {
			if rng, ok := c.CandidateRange(symbol, timeframe, lc, hc); ok {
				out = append(out, rng)
			}
		}
	}
	return out
}
