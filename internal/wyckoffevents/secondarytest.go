package wyckoffevents

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// DetectSecondaryTest requires a prior SC and scans forward for a
// retest of the SC low on materially reduced volume, within
// STMaxDistancePct of the low and without penetrating it by more than
// STMaxPenetrationPct. Multiple STs may occur; each successive test
// carries a TestNumber and ST quality typically rises as distance
// from the low shrinks toward the ideal.
func DetectSecondaryTest(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, priorEvents []model.Event, th Thresholds) (*model.Event, error) {
	sc := findLatest(priorEvents, model.EventSellingClimax)
	if sc == nil {
		return nil, nil
	}
	ar := findLatest(priorEvents, model.EventAutomaticRally)
	if ar == nil {
		return nil, nil
	}
	existingSTs := findAll(priorEvents, model.EventSecondaryTest)
	testNumber := len(existingSTs) + 1

	scLow := bars[sc.BarIndex].Low
	for i := ar.BarIndex + 1; i <= rng.EndIndex && i < len(bars); i++ {
		already := false
		for _, st := range existingSTs {
			if st.BarIndex == i {
				already = true
				break
			}
		}
		if already {
			continue
		}

		distancePct := pct(bars[i].Low.Sub(scLow).Abs(), scLow)
		if distancePct.GreaterThan(th.STMaxDistancePct) {
			continue
		}
		penetrationPct := decimal.Zero
		if bars[i].Low.LessThan(scLow) {
			penetrationPct = pct(scLow.Sub(bars[i].Low), scLow)
			if penetrationPct.GreaterThan(th.STMaxPenetrationPct) {
				continue
			}
		}
		if i >= len(va) || sc.BarIndex >= len(va) || !va[i].Ready() || !va[sc.BarIndex].Ready() {
			continue
		}
		reductionPct := pct(va[sc.BarIndex].VolumeRatio.Sub(*va[i].VolumeRatio), *va[sc.BarIndex].VolumeRatio)
		if reductionPct.LessThan(th.STMinVolReductPct) {
			continue
		}

		confidence := stConfidence(distancePct, reductionPct, th)
		return &model.Event{
			ID:             newEventID(rng.ID, model.EventSecondaryTest, i),
			Type:           model.EventSecondaryTest,
			RangeID:        rng.ID,
			BarIndex:       i,
			Timestamp:      bars[i].Timestamp,
			Confidence:     confidence,
			PredecessorIDs: []string{sc.ID, ar.ID},
			TestNumber:     testNumber,
			Fingerprint: map[string]decimal.Decimal{
				"distance_pct":  distancePct,
				"reduction_pct": reductionPct,
				"penetration":   penetrationPct,
			},
		}, nil
	}
	return nil, nil
}

func stConfidence(distancePct, reductionPct decimal.Decimal, th Thresholds) decimal.Decimal {
	distanceComponent := decimal.NewFromInt(50)
	if distancePct.GreaterThan(th.STIdealDistancePct) {
		excess := distancePct.Sub(th.STIdealDistancePct)
		distanceComponent = decimal.NewFromInt(50).Sub(excess.Mul(decimal.NewFromInt(8)))
		if distanceComponent.LessThan(decimal.Zero) {
			distanceComponent = decimal.Zero
		}
	}
	volumeComponent := reductionPct.Div(decimal.NewFromInt(50)).Mul(decimal.NewFromInt(50))
	if volumeComponent.GreaterThan(decimal.NewFromInt(50)) {
		volumeComponent = decimal.NewFromInt(50)
	}
	total := distanceComponent.Add(volumeComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}
