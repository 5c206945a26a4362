// Package zones scans bars inside a trading range for supply/demand
// zones and tracks their touches and invalidation (§4.6).
package zones

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// DefaultVolumeRatioThreshold and DefaultSpreadRatioThreshold are the
// default zone-formation thresholds.
var (
	DefaultVolumeRatioThreshold = decimal.NewFromFloat(1.3)
	DefaultSpreadRatioThreshold = decimal.NewFromFloat(0.8)
	InvalidationVolumeRatio     = decimal.NewFromFloat(1.5)
)

// Mapper discovers and tracks supply/demand zones.
type Mapper struct {
	volThreshold    decimal.Decimal
	spreadThreshold decimal.Decimal
}

// NewMapper creates a Mapper with the given thresholds (zero values
// fall back to the package defaults).
func NewMapper(volThreshold, spreadThreshold decimal.Decimal) *Mapper {
	if volThreshold.IsZero() {
		volThreshold = DefaultVolumeRatioThreshold
	}
	if spreadThreshold.IsZero() {
		spreadThreshold = DefaultSpreadRatioThreshold
	}
	return &Mapper{volThreshold: volThreshold, spreadThreshold: spreadThreshold}
}

// MapZones scans bars[rng.StartIndex:rng.EndIndex+1] for high-volume,
// narrow-spread bars and classifies each as a demand zone (close in
// upper half) or supply zone (close in lower half), then evaluates
// later bars for touches and invalidation.
func (m *Mapper) MapZones(rng *model.TradingRange, bars []model.Bar, va []model.VolumeAnalysis) {
	var supply, demand []model.Zone
	half := decimal.NewFromFloat(0.5)

	start, end := rng.StartIndex, rng.EndIndex
	if end >= len(bars) {
		end = len(bars) - 1
	}
	for i := start; i <= end; i++ {
		if i < 0 || i >= len(va) {
			continue
		}
		a := va[i]
		if !a.Ready() {
			continue
		}
		if a.VolumeRatio.LessThan(m.volThreshold) || a.SpreadRatio.GreaterThan(m.spreadThreshold) {
			continue
		}
		b := bars[i]
		z := model.Zone{
			PriceLow:             b.Low,
			PriceHigh:            b.High,
			Strength:             model.ZoneFresh,
			FormationVolumeRatio: *a.VolumeRatio,
			FormationSpreadRatio: *a.SpreadRatio,
			FormationClosePos:    a.ClosePosition,
			FormedAtIndex:        i,
		}
		if a.ClosePosition.GreaterThanOrEqual(half) {
			z.Type = model.ZoneDemand
			demand = append(demand, z)
		} else {
			z.Type = model.ZoneSupply
			supply = append(supply, z)
		}
	}

	for i := range demand {
		m.evaluateTouches(&demand[i], bars, va, end)
	}
	for i := range supply {
		m.evaluateTouches(&supply[i], bars, va, end)
	}

	rng.DemandZones = demand
	rng.SupplyZones = supply
}

// evaluateTouches walks bars after a zone's formation and counts any
// later bar whose [low,high] intersects the zone, demoting strength by
// touch count and flagging invalidation per §4.6.
func (m *Mapper) evaluateTouches(z *model.Zone, bars []model.Bar, va []model.VolumeAnalysis, end int) {
	for i := z.FormedAtIndex + 1; i <= end && i < len(bars); i++ {
		b := bars[i]
		if !z.Intersects(b.Low, b.High) {
			continue
		}
		z.TouchCount++

		if i < len(va) && va[i].Ready() && va[i].VolumeRatio.GreaterThanOrEqual(InvalidationVolumeRatio) {
			closedBeyond := (z.Type == model.ZoneDemand && b.Close.LessThan(z.PriceLow)) ||
				(z.Type == model.ZoneSupply && b.Close.GreaterThan(z.PriceHigh))
			if closedBeyond {
				z.Strength = model.ZoneExhausted
				return
			}
		}
	}
	z.Strength = strengthFor(z.TouchCount)
	z.SignificanceScore = significance(*z)
}

func strengthFor(touches int) model.ZoneStrength {
	switch {
	case touches == 0:
		return model.ZoneFresh
	case touches <= 2:
		return model.ZoneTested
	default:
		return model.ZoneExhausted
	}
}

func significance(z model.Zone) decimal.Decimal {
	base := decimal.NewFromInt(100)
	penalty := decimal.NewFromInt(int64(z.TouchCount)).Mul(decimal.NewFromInt(20))
	score := base.Sub(penalty)
	if score.LessThan(decimal.Zero) {
		score = decimal.Zero
	}
	return score
}

// ActiveZones filters out EXHAUSTED zones (filtered out of signals
// per §3).
func ActiveZones(zs []model.Zone) []model.Zone {
	var out []model.Zone
	for _, z := range zs {
		if z.Strength != model.ZoneExhausted {
			out = append(out, z)
		}
	}
	return out
}
