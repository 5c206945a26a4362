package wyckoffevents

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// DetectSpring scans bars after the range's last ST (or AR, if no ST
// exists yet) for a shallow penetration of Creek on low relative
// volume followed by a close-back-above recovery within
// SpringMaxRecovery bars. Among the qualifying candidates the one with
// the highest confidence is kept rather than the first chronological
// match; confidence favours shallow penetration, low volume and a quick
// recovery.
func DetectSpring(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, priorEvents []model.Event, th Thresholds) (*model.Event, error) {
	if rng.Creek == nil {
		return nil, nil
	}
	anchor := findLatest(priorEvents, model.EventSecondaryTest)
	if anchor == nil {
		anchor = findLatest(priorEvents, model.EventAutomaticRally)
	}
	if anchor == nil {
		return nil, nil
	}

	creek := rng.Creek.Price
	var best *model.Event
	var bestConfidence decimal.Decimal

	for i := anchor.BarIndex + 1; i <= rng.EndIndex && i < len(bars); i++ {
		if !bars[i].Low.LessThan(creek) {
			continue
		}
		penetrationPct := pct(creek.Sub(bars[i].Low), creek)
		if penetrationPct.GreaterThan(th.SpringMaxPenetPct) {
			continue
		}
		if i >= len(va) || !va[i].Ready() || va[i].VolumeRatio.GreaterThanOrEqual(th.SpringMaxVolRatio) {
			continue
		}

		recoveryIdx := -1
		for j := i + 1; j <= i+th.SpringMaxRecovery && j < len(bars) && j <= rng.EndIndex; j++ {
			if bars[j].Close.GreaterThanOrEqual(creek) {
				recoveryIdx = j
				break
			}
		}
		if recoveryIdx == -1 {
			continue
		}

		confidence := springConfidence(penetrationPct, *va[i].VolumeRatio, recoveryIdx-i, th)
		if best == nil || confidence.GreaterThan(bestConfidence) {
			ev := &model.Event{
				ID:             newEventID(rng.ID, model.EventSpring, i),
				Type:           model.EventSpring,
				RangeID:        rng.ID,
				BarIndex:       i,
				Timestamp:      bars[i].Timestamp,
				Confidence:     confidence,
				QualityTier:    springQualityTier(penetrationPct, *va[i].VolumeRatio),
				PredecessorIDs: []string{anchor.ID},
				Fingerprint: map[string]decimal.Decimal{
					"penetration_pct": penetrationPct,
					"volume_ratio":    *va[i].VolumeRatio,
					"recovery_bars":   decimal.NewFromInt(int64(recoveryIdx - i)),
				},
			}
			best = ev
			bestConfidence = confidence
		}
	}
	return best, nil
}

// springQualityTier buckets a qualifying Spring into IDEAL/GOOD/ACCEPTABLE
// from its penetration depth and volume dry-up: IDEAL is the shallow,
// low-volume case the source spec calls out explicitly (<=1% penetration
// and <0.30x volume); GOOD and ACCEPTABLE proportionally widen both bounds
// toward the hard qualifying gate (<=5% penetration, <0.70x volume).
func springQualityTier(penetrationPct, volRatio decimal.Decimal) string {
	switch {
	case penetrationPct.LessThanOrEqual(decimal.NewFromInt(1)) && volRatio.LessThan(decimal.NewFromFloat(0.30)):
		return "IDEAL"
	case penetrationPct.LessThanOrEqual(decimal.NewFromInt(3)) && volRatio.LessThan(decimal.NewFromFloat(0.50)):
		return "GOOD"
	default:
		return "ACCEPTABLE"
	}
}

func springConfidence(penetrationPct, volRatio decimal.Decimal, recoveryBars int, th Thresholds) decimal.Decimal {
	shallowComponent := decimal.NewFromInt(40)
	if penetrationPct.GreaterThan(decimal.Zero) {
		shallowComponent = decimal.NewFromInt(40).Sub(penetrationPct.Div(th.SpringMaxPenetPct).Mul(decimal.NewFromInt(15)))
	}
	volComponent := decimal.NewFromInt(40).Sub(volRatio.Div(th.SpringMaxVolRatio).Mul(decimal.NewFromInt(15)))
	recoveryComponent := decimal.NewFromInt(20).Sub(decimal.NewFromInt(int64(recoveryBars)).Mul(decimal.NewFromInt(3)))
	if recoveryComponent.LessThan(decimal.Zero) {
		recoveryComponent = decimal.Zero
	}
	total := shallowComponent.Add(volComponent).Add(recoveryComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	if total.LessThan(decimal.Zero) {
		total = decimal.Zero
	}
	return total.Round(2)
}
