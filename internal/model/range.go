package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RangeStatus is the trading range's lifecycle state (§3).
type RangeStatus string

const (
	RangeFORMING  RangeStatus = "FORMING"
	RangeACTIVE   RangeStatus = "ACTIVE"
	RangeBREAKOUT RangeStatus = "BREAKOUT"
	RangeARCHIVED RangeStatus = "ARCHIVED"
)

// VolumeTrend characterizes how volume has trended across a level's
// tests (§3).
type VolumeTrend string

const (
	VolumeTrendDecreasing VolumeTrend = "DECREASING"
	VolumeTrendFlat       VolumeTrend = "FLAT"
	VolumeTrendIncreasing VolumeTrend = "INCREASING"
)

// StrengthRating buckets a level's strength_score into a label.
type StrengthRating string

const (
	StrengthWeak     StrengthRating = "WEAK"
	StrengthModerate StrengthRating = "MODERATE"
	StrengthStrong   StrengthRating = "STRONG"
)

// Level is a Creek (support), Ice (resistance) or Jump (target) price
// level (§3, §4.5).
type Level struct {
	Price          decimal.Decimal
	TouchCount     int
	StrengthScore  decimal.Decimal // 0-100
	Strength       StrengthRating
	FirstTestAt    time.Time
	LastTestAt     time.Time
	HoldDuration   int // bars between the level's first and last pivot
	VolumeTrend    VolumeTrend
}

// ZoneType distinguishes supply (resistance-side) from demand
// (support-side) order-flow zones (§4.6).
type ZoneType string

const (
	ZoneSupply ZoneType = "SUPPLY"
	ZoneDemand ZoneType = "DEMAND"
)

// ZoneStrength tracks how exhausted a zone's liquidity is through
// repeated touches.
type ZoneStrength string

const (
	ZoneFresh     ZoneStrength = "FRESH"     // 0 touches
	ZoneTested    ZoneStrength = "TESTED"    // 1-2 touches
	ZoneExhausted ZoneStrength = "EXHAUSTED" // 3+ touches, filtered from signals
)

// Zone is a supply or demand zone discovered inside a trading range.
type Zone struct {
	Type                ZoneType
	PriceLow            decimal.Decimal
	PriceHigh           decimal.Decimal
	Strength            ZoneStrength
	TouchCount           int
	FormationVolumeRatio decimal.Decimal
	FormationSpreadRatio decimal.Decimal
	FormationClosePos    decimal.Decimal
	ProximityLabel       string
	SignificanceScore    decimal.Decimal // 0-100
	FormedAtIndex        int
}

// Intersects reports whether a bar's [low,high] intersects the zone's
// price range — the definition of a "touch" (§4.6).
func (z Zone) Intersects(low, high decimal.Decimal) bool {
	return !(high.LessThan(z.PriceLow) || low.GreaterThan(z.PriceHigh))
}

// TradingRange is the core accumulation/distribution range entity
// (§3, §4.4-§4.7).
type TradingRange struct {
	ID               string
	Symbol           string
	Timeframe        Timeframe
	AssetClass       AssetClass
	SupportCluster   PriceCluster
	ResistanceCluster PriceCluster
	Support          decimal.Decimal
	Resistance       decimal.Decimal
	Midpoint         decimal.Decimal
	RangeWidth       decimal.Decimal
	RangeWidthPct    decimal.Decimal
	StartIndex       int
	EndIndex         int
	Duration         int // bars
	QualityScore     decimal.Decimal // 0-100
	Status           RangeStatus
	Creek            *Level
	Ice              *Level
	Jump             *Level
	SupplyZones      []Zone
	DemandZones      []Zone
	StartTimestamp   time.Time
	EndTimestamp     time.Time
}

// LevelsAdmitted reports whether both Creek and Ice meet the
// strength>=60 gate and Creek<Ice<Jump ordering required to admit the
// range for pattern use (§3).
func (r *TradingRange) LevelsAdmitted() bool {
	if r.Creek == nil || r.Ice == nil || r.Jump == nil {
		return false
	}
	sixty := decimal.NewFromInt(60)
	if r.Creek.StrengthScore.LessThan(sixty) || r.Ice.StrengthScore.LessThan(sixty) {
		return false
	}
	return r.Creek.Price.LessThan(r.Ice.Price) && r.Ice.Price.LessThan(r.Jump.Price)
}

// Recompute derives Midpoint/RangeWidth/RangeWidthPct/Duration from
// Support/Resistance/StartIndex/EndIndex. Callers must set Support,
// Resistance, StartIndex and EndIndex first.
func (r *TradingRange) Recompute() {
	r.Midpoint = r.Support.Add(r.Resistance).Div(decimal.NewFromInt(2))
	r.RangeWidth = r.Resistance.Sub(r.Support)
	if !r.Support.IsZero() {
		r.RangeWidthPct = r.RangeWidth.Div(r.Support).Mul(decimal.NewFromInt(100))
	}
	r.Duration = r.EndIndex - r.StartIndex + 1
}
