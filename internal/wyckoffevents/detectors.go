// Package wyckoffevents implements the seven canonical Wyckoff event
// detectors (§4.8). Each detector is a pure function over immutable
// snapshots: (bars, volume analyses, range, prior events, thresholds)
// -> optional event; DetectSellingClimax takes no prior events, and no
// detector takes the current phase. Detectors that consume prior events
// reject (return nil, nil) when the predecessor is absent, rather than
// raising — detector failures never propagate into the pipeline
// (§7 propagation policy).
package wyckoffevents

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// Thresholds holds the asset-class-sensitive magnitude thresholds used
// across the detectors (§4.8).
type Thresholds struct {
	SCVolumeRatioMin    decimal.Decimal
	SCSpreadRatioMin    decimal.Decimal
	ARMinRallyPct       decimal.Decimal
	STMaxDistancePct    decimal.Decimal
	STIdealDistancePct  decimal.Decimal
	STMinVolReductPct   decimal.Decimal
	STMaxPenetrationPct decimal.Decimal
	SpringMaxPenetPct   decimal.Decimal
	SpringMaxVolRatio   decimal.Decimal
	SpringMaxRecovery   int
	SOSVolumeRatioStock decimal.Decimal
	SOSVolumeRatioForex decimal.Decimal
	LPSStopDistancePct  decimal.Decimal
	SOSStopDistancePct  decimal.Decimal
	UTADMaxPenetPct     decimal.Decimal
	UTADVolRatioStock   decimal.Decimal
	UTADVolRatioForex   decimal.Decimal
}

// DefaultThresholds returns the spec's §4.8 constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SCVolumeRatioMin:    decimal.NewFromFloat(2.0),
		SCSpreadRatioMin:    decimal.NewFromFloat(1.5),
		ARMinRallyPct:       decimal.NewFromFloat(3.0),
		STMaxDistancePct:    decimal.NewFromFloat(5.0),
		STIdealDistancePct:  decimal.NewFromFloat(0.3),
		STMinVolReductPct:   decimal.NewFromFloat(20.0),
		STMaxPenetrationPct: decimal.NewFromFloat(2.0),
		SpringMaxPenetPct:   decimal.NewFromFloat(5.0),
		SpringMaxVolRatio:   decimal.NewFromFloat(0.70),
		SpringMaxRecovery:   5,
		SOSVolumeRatioStock: decimal.NewFromFloat(1.5),
		SOSVolumeRatioForex: decimal.NewFromFloat(1.8),
		LPSStopDistancePct:  decimal.NewFromFloat(3.0),
		SOSStopDistancePct:  decimal.NewFromFloat(5.0),
		UTADMaxPenetPct:     decimal.NewFromFloat(5.0),
		UTADVolRatioStock:   decimal.NewFromFloat(2.0),
		UTADVolRatioForex:   decimal.NewFromFloat(2.5),
	}
}

func pct(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b).Mul(decimal.NewFromInt(100))
}

func findLatest(events []model.Event, t model.EventType) *model.Event {
	var latest *model.Event
	for i := range events {
		if events[i].Type == t && !events[i].Invalidated {
			if latest == nil || events[i].BarIndex > latest.BarIndex {
				latest = &events[i]
			}
		}
	}
	return latest
}

func findAll(events []model.Event, t model.EventType) []model.Event {
	var out []model.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// priorDowntrend reports whether the close at idx is below the simple
// mean close of the preceding `lookback` bars, a lightweight downtrend
// precondition for Selling Climax.
func priorDowntrend(bars []model.Bar, idx, lookback int) bool {
	if idx < lookback {
		return false
	}
	sum := decimal.Zero
	for i := idx - lookback; i < idx; i++ {
		sum = sum.Add(bars[i].Close)
	}
	mean := sum.Div(decimal.NewFromInt(int64(lookback)))
	return bars[idx].Close.LessThan(mean)
}

func newEventID(rangeID string, t model.EventType, idx int) string {
	return fmt.Sprintf("%s-%s-%d", rangeID, t, idx)
}

// DetectSellingClimax scans bars for the first qualifying Selling
// Climax: ultra-high volume, wide spread, close in upper half,
// following a downtrend.
func DetectSellingClimax(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, th Thresholds) (*model.Event, error) {
	half := decimal.NewFromFloat(0.5)
	for i := rng.StartIndex; i <= rng.EndIndex && i < len(bars); i++ {
		if i >= len(va) || !va[i].Ready() {
			continue
		}
		a := va[i]
		if a.VolumeRatio.LessThan(th.SCVolumeRatioMin) {
			continue
		}
		if a.SpreadRatio.LessThan(th.SCSpreadRatioMin) {
			continue
		}
		if a.ClosePosition.LessThanOrEqual(half) {
			continue
		}
		if !priorDowntrend(bars, i, 10) {
			continue
		}
		confidence := scConfidence(*a.VolumeRatio, *a.SpreadRatio)
		return &model.Event{
			ID:          newEventID(rng.ID, model.EventSellingClimax, i),
			Type:        model.EventSellingClimax,
			RangeID:     rng.ID,
			BarIndex:    i,
			Timestamp:   bars[i].Timestamp,
			Confidence:  confidence,
			Fingerprint: map[string]decimal.Decimal{"volume_ratio": *a.VolumeRatio, "spread_ratio": *a.SpreadRatio},
		}, nil
	}
	return nil, nil
}

func scConfidence(volRatio, spreadRatio decimal.Decimal) decimal.Decimal {
	volComponent := volRatio.Div(decimal.NewFromFloat(3.0)).Mul(decimal.NewFromInt(50))
	spreadComponent := spreadRatio.Div(decimal.NewFromFloat(2.5)).Mul(decimal.NewFromInt(50))
	total := volComponent.Add(spreadComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}

// DetectAutomaticRally requires an SC to already exist. It scans bars
// after SC for a rally of >= 3% on declining volume.
func DetectAutomaticRally(bars []model.Bar, va []model.VolumeAnalysis, rng *model.TradingRange, priorEvents []model.Event, th Thresholds) (*model.Event, error) {
	sc := findLatest(priorEvents, model.EventSellingClimax)
	if sc == nil {
		return nil, nil
	}
	scLow := bars[sc.BarIndex].Low
	maxBarsAfter := 10
	for offset := 1; offset <= maxBarsAfter; offset++ {
		i := sc.BarIndex + offset
		if i >= len(bars) || i > rng.EndIndex {
			break
		}
		rallyPct := pct(bars[i].High.Sub(scLow), scLow)
		if rallyPct.LessThan(th.ARMinRallyPct) {
			continue
		}
		volumeDeclining := true
		if i < len(va) && sc.BarIndex < len(va) && va[i].Ready() && va[sc.BarIndex].Ready() {
			volumeDeclining = va[i].VolumeRatio.LessThan(*va[sc.BarIndex].VolumeRatio)
		}
		if !volumeDeclining {
			continue
		}
		quality := arQuality(rallyPct, offset)
		return &model.Event{
			ID:             newEventID(rng.ID, model.EventAutomaticRally, i),
			Type:           model.EventAutomaticRally,
			RangeID:        rng.ID,
			BarIndex:       i,
			Timestamp:      bars[i].Timestamp,
			Confidence:     quality,
			PredecessorIDs: []string{sc.ID},
			Fingerprint:    map[string]decimal.Decimal{"rally_pct": rallyPct, "bars_after_sc": decimal.NewFromInt(int64(offset))},
		}, nil
	}
	return nil, nil
}

// arQuality rises with rally_pct and with earlier bars_after_sc;
// maximal at rally_pct>=8% and bars_after_sc in [1,3] (§4.8).
func arQuality(rallyPct decimal.Decimal, barsAfterSC int) decimal.Decimal {
	rallyComponent := rallyPct.Div(decimal.NewFromInt(8)).Mul(decimal.NewFromInt(60))
	if rallyComponent.GreaterThan(decimal.NewFromInt(60)) {
		rallyComponent = decimal.NewFromInt(60)
	}
	timingComponent := decimal.NewFromInt(40)
	if barsAfterSC < 1 || barsAfterSC > 3 {
		timingComponent = decimal.NewFromInt(40).Sub(decimal.NewFromInt(int64(barsAfterSC - 3)).Mul(decimal.NewFromInt(4)))
		if timingComponent.LessThan(decimal.Zero) {
			timingComponent = decimal.Zero
		}
	}
	total := rallyComponent.Add(timingComponent)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}
