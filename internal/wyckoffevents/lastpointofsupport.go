package wyckoffevents

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// DetectLastPointOfSupport requires a prior SOS and scans forward for
// a pullback whose low holds at or above both Creek and the SOS bar's
// low, closing below the SOS close on contracting volume — the
// backup-to-the-edge-of-the-shelf that precedes markup.
// ResolveEntryPreference prefers an LPS over a direct SOS entry (see
// entrypreference.go).
func DetectLastPointOfSupport(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, priorEvents []model.Event, th Thresholds) (*model.Event, error) {
	if rng.Creek == nil {
		return nil, nil
	}
	sos := findLatest(priorEvents, model.EventSignOfStrength)
	if sos == nil {
		return nil, nil
	}

	creek := rng.Creek.Price
	sosLow := bars[sos.BarIndex].Low
	floor := decimal.Max(creek, sosLow)

	for i := sos.BarIndex + 1; i <= rng.EndIndex && i < len(bars); i++ {
		if bars[i].Low.LessThan(floor) {
			continue
		}
		if !bars[i].Close.LessThan(bars[sos.BarIndex].Close) {
			continue
		}
		if i >= len(va) || sos.BarIndex >= len(va) || !va[i].Ready() || !va[sos.BarIndex].Ready() {
			continue
		}
		contracting := va[i].VolumeRatio.LessThan(*va[sos.BarIndex].VolumeRatio)
		if !contracting {
			continue
		}
		distancePct := pct(bars[i].Low.Sub(floor), floor)
		confidence := lpsConfidence(distancePct, *va[i].VolumeRatio)
		return &model.Event{
			ID:             newEventID(rng.ID, model.EventLastPointOfSupport, i),
			Type:           model.EventLastPointOfSupport,
			RangeID:        rng.ID,
			BarIndex:       i,
			Timestamp:      bars[i].Timestamp,
			Confidence:     confidence,
			PredecessorIDs: []string{sos.ID},
			Fingerprint: map[string]decimal.Decimal{
				"distance_above_floor_pct": distancePct,
				"volume_ratio":             *va[i].VolumeRatio,
			},
		}, nil
	}
	return nil, nil
}

func lpsConfidence(distanceAboveFloorPct, volRatio decimal.Decimal) decimal.Decimal {
	proximityComponent := decimal.NewFromInt(60).Sub(distanceAboveFloorPct.Mul(decimal.NewFromInt(10)))
	if proximityComponent.LessThan(decimal.Zero) {
		proximityComponent = decimal.Zero
	}
	if proximityComponent.GreaterThan(decimal.NewFromInt(60)) {
		proximityComponent = decimal.NewFromInt(60)
	}
	volComponent := decimal.NewFromInt(40).Sub(volRatio.Mul(decimal.NewFromInt(15)))
	if volComponent.LessThan(decimal.Zero) {
		volComponent = decimal.Zero
	}
	total := proximityComponent.Add(volComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}
