// Package pivot detects confirmed swing highs and lows via lookback
// confirmation (§4.3).
package pivot

import "github.com/wyckoff-labs/signal-engine/internal/model"

// DefaultLookback is the number of bars examined on each side of a
// candidate pivot.
const DefaultLookback = 5

// Detector finds pivot highs/lows over a bar snapshot.
type Detector struct {
	lookback int
}

// NewDetector creates a Detector with the given lookback (use
// DefaultLookback if unsure).
func NewDetector(lookback int) *Detector {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Detector{lookback: lookback}
}

// Detect scans bars and returns every confirmed pivot. A bar at index
// i is a pivot high iff its high is strictly greater than the highs of
// bars i-lookback..i-1 and i+1..i+lookback (mirror for pivot low).
// Because confirmation requires `lookback` subsequent bars, pivots
// near the end of the snapshot are not yet published.
func (d *Detector) Detect(bars []model.Bar) []model.Pivot {
	var pivots []model.Pivot
	n := len(bars)
	for i := d.lookback; i < n-d.lookback; i++ {
		if d.isPivotHigh(bars, i) {
			pivots = append(pivots, model.Pivot{
				Index:     i,
				Price:     bars[i].High,
				Type:      model.PivotHigh,
				Strength:  d.lookback,
				Timestamp: bars[i].Timestamp,
			})
		}
		if d.isPivotLow(bars, i) {
			pivots = append(pivots, model.Pivot{
				Index:     i,
				Price:     bars[i].Low,
				Type:      model.PivotLow,
				Strength:  d.lookback,
				Timestamp: bars[i].Timestamp,
			})
		}
	}
	return pivots
}

func (d *Detector) isPivotHigh(bars []model.Bar, i int) bool {
	h := bars[i].High
	for j := i - d.lookback; j <= i+d.lookback; j++ {
		if j == i {
			continue
		}
		if !h.GreaterThan(bars[j].High) {
			return false
		}
	}
	return true
}

func (d *Detector) isPivotLow(bars []model.Bar, i int) bool {
	l := bars[i].Low
	for j := i - d.lookback; j <= i+d.lookback; j++ {
		if j == i {
			continue
		}
		if !l.LessThan(bars[j].Low) {
			return false
		}
	}
	return true
}
