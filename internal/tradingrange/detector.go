// Package tradingrange orchestrates pivots -> clusters -> candidate
// ranges -> quality scoring -> levels -> zones -> overlap arbitration
// -> status assignment (§4.7).
package tradingrange

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/cluster"
	"github.com/wyckoff-labs/signal-engine/internal/levels"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/pivot"
	"github.com/wyckoff-labs/signal-engine/internal/zones"
	"go.uber.org/zap"
)

const (
	// MinQualityScore is the score a candidate range must clear to
	// survive the quality filter (§4.7).
	MinQualityScore = 70
	// MinStrengthForLevels is the Creek/Ice strength gate for levels
	// admission (§4.7, §3).
	MinStrengthForLevels = 60
	// ActiveDuration is the minimum duration (bars) for ACTIVE status.
	ActiveDuration = 15
	// FormingMinDuration is not read by assignStatus: a range below
	// ActiveDuration stays FORMING whatever its duration.
	FormingMinDuration = 10
)

// Detector is the trading-range orchestrator.
type Detector struct {
	logger     *zap.Logger
	pivotDet   *pivot.Detector
	clusterer  *cluster.Clusterer
	levelCalc  *levels.Calculator
	zoneMapper *zones.Mapper

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	key    string
	ranges []*model.TradingRange
}

// NewDetector assembles a Detector from its component detectors.
func NewDetector(logger *zap.Logger, pivotDet *pivot.Detector, clusterer *cluster.Clusterer, levelCalc *levels.Calculator, zoneMapper *zones.Mapper) *Detector {
	return &Detector{
		logger:     logger.Named("trading-range-detector"),
		pivotDet:   pivotDet,
		clusterer:  clusterer,
		levelCalc:  levelCalc,
		zoneMapper: zoneMapper,
		cache:      make(map[string]cacheEntry),
	}
}

func cacheKey(symbol string, timeframe model.Timeframe, bars []model.Bar) string {
	if len(bars) == 0 {
		return fmt.Sprintf("%s-%s-empty", symbol, timeframe)
	}
	return fmt.Sprintf("%s-%s-%s-%s-%d", symbol, timeframe, bars[0].Timestamp, bars[len(bars)-1].Timestamp, len(bars))
}

// Detect runs the full pipeline over a bar snapshot and its volume
// analyses, returning the surviving, scored, leveled and zoned ranges.
// Results are cached by (symbol, timeframe, first+last timestamp,
// bar_count).
func (d *Detector) Detect(symbol string, timeframe model.Timeframe, bars []model.Bar, va []model.VolumeAnalysis) []*model.TradingRange {
	ck := cacheKey(symbol, timeframe, bars)
	d.mu.Lock()
	if entry, ok := d.cache[ck]; ok {
		d.mu.Unlock()
		return entry.ranges
	}
	d.mu.Unlock()

	pivots := d.pivotDet.Detect(bars)
	lowClusters := d.clusterer.ClusterPivots(pivots, model.PivotLow)
	highClusters := d.clusterer.ClusterPivots(pivots, model.PivotHigh)
	candidates := d.clusterer.CandidateRanges(symbol, timeframe, lowClusters, highClusters)

	var survivors []*model.TradingRange
	for _, rng := range candidates {
		rng.QualityScore = d.scoreQuality(rng, bars)
		if rng.QualityScore.LessThan(decimal.NewFromInt(MinQualityScore)) {
			continue
		}

		d.levelCalc.Compute(rng, bars)
		if !rng.LevelsAdmitted() {
			d.logger.Debug("range rejected: levels below strength threshold",
				zap.String("symbol", symbol), zap.String("range_id", rng.ID))
			continue
		}

		d.zoneMapper.MapZones(rng, bars, va)
		survivors = append(survivors, rng)
	}

	survivors = arbitrateOverlaps(survivors)

	for _, rng := range survivors {
		d.assignStatus(rng)
		if rng.StartTimestamp.IsZero() && rng.StartIndex < len(bars) {
			rng.StartTimestamp = bars[rng.StartIndex].Timestamp
		}
		if rng.EndIndex < len(bars) {
			rng.EndTimestamp = bars[rng.EndIndex].Timestamp
		}
	}

	d.mu.Lock()
	d.cache[ck] = cacheEntry{key: ck, ranges: survivors}
	d.mu.Unlock()
	return survivors
}

// scoreQuality blends cluster touch strength and normalized width
// into a 0-100 score used to filter candidates before the (more
// expensive) level/zone computation.
func (d *Detector) scoreQuality(rng *model.TradingRange, bars []model.Bar) decimal.Decimal {
	touchScore := decimal.NewFromInt(int64(rng.SupportCluster.TouchCount + rng.ResistanceCluster.TouchCount)).
		Mul(decimal.NewFromInt(8))
	if touchScore.GreaterThan(decimal.NewFromInt(48)) {
		touchScore = decimal.NewFromInt(48)
	}

	widthScore := rng.RangeWidthPct
	if widthScore.GreaterThan(decimal.NewFromInt(20)) {
		widthScore = decimal.NewFromInt(20)
	}
	widthScore = widthScore.Mul(decimal.NewFromFloat(1.2))

	durationScore := decimal.NewFromInt(int64(rng.Duration))
	if durationScore.GreaterThan(decimal.NewFromInt(32)) {
		durationScore = decimal.NewFromInt(32)
	}

	total := touchScore.Add(widthScore).Add(durationScore)
	if total.GreaterThan(decimal.NewFromInt(100)) {
		total = decimal.NewFromInt(100)
	}
	return total.Round(2)
}

// assignStatus sets FORMING vs ACTIVE per §3: ACTIVE iff
// quality_score >= 70 and duration >= 15; otherwise FORMING once
// duration >= 10, else still FORMING (never regresses an already
// BREAKOUT/ARCHIVED range).
func (d *Detector) assignStatus(rng *model.TradingRange) {
	if rng.Status == model.RangeBREAKOUT || rng.Status == model.RangeARCHIVED {
		return
	}
	if rng.QualityScore.GreaterThanOrEqual(decimal.NewFromInt(MinQualityScore)) && rng.Duration >= ActiveDuration {
		rng.Status = model.RangeACTIVE
		return
	}
	rng.Status = model.RangeFORMING
}

// arbitrateOverlaps resolves overlapping ranges on the same symbol:
// the range with the newer end_index wins, the loser becomes ARCHIVED
// and is dropped from the result set.
func arbitrateOverlaps(ranges []*model.TradingRange) []*model.TradingRange {
	keep := make([]bool, len(ranges))
	for i := range ranges {
		keep[i] = true
	}
	for i := 0; i < len(ranges); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(ranges); j++ {
			if !keep[j] {
				continue
			}
			if overlaps(ranges[i], ranges[j]) {
				if ranges[i].EndIndex >= ranges[j].EndIndex {
					ranges[j].Status = model.RangeARCHIVED
					keep[j] = false
				} else {
					ranges[i].Status = model.RangeARCHIVED
					keep[i] = false
				}
			}
		}
	}
	var out []*model.TradingRange
	for i, k := range keep {
		if k {
			out = append(out, ranges[i])
		}
	}
	return out
}

func overlaps(a, b *model.TradingRange) bool {
	return a.StartIndex <= b.EndIndex && b.StartIndex <= a.EndIndex
}
