package wyckoffevents

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// sosVolumeRatioFor returns the asset-class-sensitive SOS volume-ratio
// threshold (forex requires a higher bar since forex volume proxies
// are noisier tick-volume counts, not true traded volume).
func sosVolumeRatioFor(class model.AssetClass, th Thresholds) decimal.Decimal {
	if class == model.AssetClassForex {
		return th.SOSVolumeRatioForex
	}
	return th.SOSVolumeRatioStock
}

// DetectSignOfStrength requires a prior Spring (accumulation path) and
// scans for the first bar to close above Ice on volume exceeding the
// asset-class threshold, with a close in the upper half of its range.
func DetectSignOfStrength(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, priorEvents []model.Event, th Thresholds) (*model.Event, error) {
	if rng.Ice == nil {
		return nil, nil
	}
	spring := findLatest(priorEvents, model.EventSpring)
	if spring == nil {
		return nil, nil
	}
	already := findLatest(priorEvents, model.EventSignOfStrength)
	startIdx := spring.BarIndex + 1
	if already != nil {
		startIdx = already.BarIndex + 1
	}

	half := decimal.NewFromFloat(0.5)
	volThreshold := sosVolumeRatioFor(rng.AssetClass, th)
	ice := rng.Ice.Price

	for i := startIdx; i <= rng.EndIndex && i < len(bars); i++ {
		if bars[i].Close.LessThanOrEqual(ice) {
			continue
		}
		if i >= len(va) || !va[i].Ready() || va[i].VolumeRatio.LessThan(volThreshold) {
			continue
		}
		if va[i].ClosePosition.LessThan(half) {
			continue
		}
		breakoutPct := pct(bars[i].Close.Sub(ice), ice)
		confidence := sosConfidence(*va[i].VolumeRatio, volThreshold, breakoutPct)
		return &model.Event{
			ID:             newEventID(rng.ID, model.EventSignOfStrength, i),
			Type:           model.EventSignOfStrength,
			RangeID:        rng.ID,
			BarIndex:       i,
			Timestamp:      bars[i].Timestamp,
			Confidence:     confidence,
			PredecessorIDs: []string{spring.ID},
			Fingerprint: map[string]decimal.Decimal{
				"volume_ratio": *va[i].VolumeRatio,
				"breakout_pct": breakoutPct,
			},
		}, nil
	}
	return nil, nil
}

func sosConfidence(volRatio, volThreshold, breakoutPct decimal.Decimal) decimal.Decimal {
	volComponent := volRatio.Div(volThreshold).Mul(decimal.NewFromInt(60))
	if volComponent.GreaterThan(decimal.NewFromInt(60)) {
		volComponent = decimal.NewFromInt(60)
	}
	breakoutComponent := breakoutPct.Div(decimal.NewFromInt(3)).Mul(decimal.NewFromInt(40))
	if breakoutComponent.GreaterThan(decimal.NewFromInt(40)) {
		breakoutComponent = decimal.NewFromInt(40)
	}
	total := volComponent.Add(breakoutComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}
