package wyckoffevents

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

func utadVolumeRatioFor(class model.AssetClass, th Thresholds) decimal.Decimal {
	if class == model.AssetClassForex {
		return th.UTADVolRatioForex
	}
	return th.UTADVolRatioStock
}

// DetectUTAD is the distribution-side mirror of Spring: a break above
// Ice that fails to hold, closing back below Ice within the recovery
// window on volume exceeding the asset-class threshold. It scans bars
// after the latest ST, or after the AR when no ST exists, and rejects
// when neither is present.
func DetectUTAD(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, priorEvents []model.Event, th Thresholds) (*model.Event, error) {
	if rng.Ice == nil {
		return nil, nil
	}
	anchor := findLatest(priorEvents, model.EventSecondaryTest)
	if anchor == nil {
		anchor = findLatest(priorEvents, model.EventAutomaticRally)
	}
	if anchor == nil {
		return nil, nil
	}

	ice := rng.Ice.Price
	volThreshold := utadVolumeRatioFor(rng.AssetClass, th)

	for i := anchor.BarIndex + 1; i <= rng.EndIndex && i < len(bars); i++ {
		if !bars[i].High.GreaterThan(ice) {
			continue
		}
		penetrationPct := pct(bars[i].High.Sub(ice), ice)
		if penetrationPct.GreaterThan(th.UTADMaxPenetPct) {
			continue
		}
		if i >= len(va) || !va[i].Ready() || va[i].VolumeRatio.LessThan(volThreshold) {
			continue
		}

		failureIdx := -1
		for j := i; j <= i+th.SpringMaxRecovery && j < len(bars) && j <= rng.EndIndex; j++ {
			if bars[j].Close.LessThan(ice) {
				failureIdx = j
				break
			}
		}
		if failureIdx == -1 {
			continue
		}

		confidence := utadConfidence(penetrationPct, *va[i].VolumeRatio, volThreshold, failureIdx-i)
		return &model.Event{
			ID:             newEventID(rng.ID, model.EventUTAD, i),
			Type:           model.EventUTAD,
			RangeID:        rng.ID,
			BarIndex:       i,
			Timestamp:      bars[i].Timestamp,
			Confidence:     confidence,
			PredecessorIDs: []string{anchor.ID},
			Fingerprint: map[string]decimal.Decimal{
				"penetration_pct": penetrationPct,
				"volume_ratio":    *va[i].VolumeRatio,
				"failure_bars":    decimal.NewFromInt(int64(failureIdx - i)),
			},
		}, nil
	}
	return nil, nil
}

func utadConfidence(penetrationPct, volRatio, volThreshold decimal.Decimal, failureBars int) decimal.Decimal {
	volComponent := volRatio.Div(volThreshold).Mul(decimal.NewFromInt(50))
	if volComponent.GreaterThan(decimal.NewFromInt(50)) {
		volComponent = decimal.NewFromInt(50)
	}
	penComponent := penetrationPct.Div(decimal.NewFromInt(5)).Mul(decimal.NewFromInt(30))
	if penComponent.GreaterThan(decimal.NewFromInt(30)) {
		penComponent = decimal.NewFromInt(30)
	}
	failComponent := decimal.NewFromInt(20).Sub(decimal.NewFromInt(int64(failureBars)).Mul(decimal.NewFromInt(3)))
	if failComponent.LessThan(decimal.Zero) {
		failComponent = decimal.Zero
	}
	total := volComponent.Add(penComponent).Add(failComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}
