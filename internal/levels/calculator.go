// Package levels computes Creek (support), Ice (resistance) and Jump
// (measured target) levels for a candidate trading range (§4.5).
package levels

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// Calculator derives Creek/Ice/Jump from a range's pivot clusters and
// the bars spanning it.
type Calculator struct{}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator { return &Calculator{} }

// Compute derives Creek, Ice and Jump for rng given the bars spanning
// [rng.StartIndex, rng.EndIndex] (inclusive) used to score wick
// rejection and volume-trend across touches.
func (c *Calculator) Compute(rng *model.TradingRange, bars []model.Bar) {
	creek := c.levelFromCluster(rng.SupportCluster, bars, true)
	ice := c.levelFromCluster(rng.ResistanceCluster, bars, false)
	rng.Creek = &creek
	rng.Ice = &ice

	jumpPrice := ice.Price.Add(ice.Price.Sub(creek.Price))
	rng.Jump = &model.Level{
		Price:         jumpPrice,
		StrengthScore: decimal.NewFromInt(0),
		Strength:      model.StrengthModerate,
	}
}

// levelFromCluster scores a cluster's strength by combining touch
// count, rejection-wick height and declining-volume-across-touches,
// mirroring the support/resistance strength heuristics observed across
// the example corpus's S/R strategies.
func (c *Calculator) levelFromCluster(pc model.PriceCluster, bars []model.Bar, isSupport bool) model.Level {
	lvl := model.Level{
		Price:      pc.Average,
		TouchCount: pc.TouchCount,
	}
	if len(pc.Pivots) == 0 {
		return lvl
	}
	lvl.FirstTestAt = pc.Pivots[0].Timestamp
	lvl.LastTestAt = pc.Pivots[len(pc.Pivots)-1].Timestamp

	touchScore := decimal.NewFromInt(int64(pc.TouchCount)).Mul(decimal.NewFromInt(12))
	if touchScore.GreaterThan(decimal.NewFromInt(48)) {
		touchScore = decimal.NewFromInt(48)
	}

	wickScore := c.rejectionWickScore(pc, bars, isSupport)

	volTrend, volScore := c.volumeTrendAcrossTouches(pc, bars)
	lvl.VolumeTrend = volTrend

	total := touchScore.Add(wickScore).Add(volScore)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	lvl.StrengthScore = total.Round(2)
	lvl.Strength = rate(lvl.StrengthScore)

	holdStart := pc.Pivots[0].Index
	holdEnd := pc.Pivots[len(pc.Pivots)-1].Index
	lvl.HoldDuration = holdEnd - holdStart
	return lvl
}

func rate(score decimal.Decimal) model.StrengthRating {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return model.StrengthStrong
	case score.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return model.StrengthModerate
	default:
		return model.StrengthWeak
	}
}

// rejectionWickScore rewards pivots whose wick (the distance from the
// pivot extreme back to the bar's open/close body) is large relative
// to the bar's spread — a sign of decisive rejection at the level.
func (c *Calculator) rejectionWickScore(pc model.PriceCluster, bars []model.Bar, isSupport bool) decimal.Decimal {
	sum := decimal.Zero
	count := 0
	for _, p := range pc.Pivots {
		if p.Index < 0 || p.Index >= len(bars) {
			continue
		}
		b := bars[p.Index]
		spread := b.Spread()
		if spread.IsZero() {
			continue
		}
		var wick decimal.Decimal
		if isSupport {
			body := decimal.Min(b.Open, b.Close)
			wick = body.Sub(b.Low)
		} else {
			body := decimal.Max(b.Open, b.Close)
			wick = b.High.Sub(body)
		}
		ratio := wick.Div(spread)
		sum = sum.Add(ratio)
		count++
	}
	if count == 0 {
		return decimal.Zero
	}
	avgRatio := sum.Div(decimal.NewFromInt(int64(count)))
	score := avgRatio.Mul(decimal.NewFromInt(26))
	if score.GreaterThan(decimal.NewFromInt(26)) {
		score = decimal.NewFromInt(26)
	}
	return score
}

// volumeTrendAcrossTouches reports whether volume declined across
// successive touches of the level (a bullish/bearish confirmation
// sign for Creek/Ice respectively) and its contribution to strength.
func (c *Calculator) volumeTrendAcrossTouches(pc model.PriceCluster, bars []model.Bar) (model.VolumeTrend, decimal.Decimal) {
	if len(pc.Pivots) < 2 {
		return model.VolumeTrendFlat, decimal.Zero
	}
	var vols []decimal.Decimal
	for _, p := range pc.Pivots {
		if p.Index < 0 || p.Index >= len(bars) {
			continue
		}
		vols = append(vols, bars[p.Index].Volume)
	}
	if len(vols) < 2 {
		return model.VolumeTrendFlat, decimal.Zero
	}
	first, last := vols[0], vols[len(vols)-1]
	if first.IsZero() {
		return model.VolumeTrendFlat, decimal.Zero
	}
	changePct := last.Sub(first).Div(first)
	switch {
	case changePct.LessThan(decimal.NewFromFloat(-0.1)):
		return model.VolumeTrendDecreasing, decimal.NewFromInt(26)
	case changePct.GreaterThan(decimal.NewFromFloat(0.1)):
		return model.VolumeTrendIncreasing, decimal.NewFromInt(8)
	default:
		return model.VolumeTrendFlat, decimal.NewFromInt(16)
	}
}
