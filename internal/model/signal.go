package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the trade direction, derived from pattern type: UTAD
// implies SHORT, every other pattern implies LONG (§3).
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// PatternType is the triggering Wyckoff pattern for a signal.
type PatternType string

const (
	PatternSpring PatternType = "SPRING"
	PatternSOS    PatternType = "SOS"
	PatternLPS    PatternType = "LPS"
	PatternUTAD   PatternType = "UTAD"
)

// DirectionFor derives a pattern's trade direction.
func DirectionFor(p PatternType) Direction {
	if p == PatternUTAD {
		return DirectionShort
	}
	return DirectionLong
}

// PositionUnit is the sizing unit for a signal's position_size.
type PositionUnit string

const (
	UnitShares    PositionUnit = "SHARES"
	UnitLots      PositionUnit = "LOTS"
	UnitContracts PositionUnit = "CONTRACTS"
)

// SignalStatus is the lifecycle status of a TradeSignal (§3).
type SignalStatus string

const (
	SignalPending    SignalStatus = "PENDING"
	SignalApproved   SignalStatus = "APPROVED"
	SignalRejected   SignalStatus = "REJECTED"
	SignalFilled     SignalStatus = "FILLED"
	SignalStopped    SignalStatus = "STOPPED"
	SignalTargetHit  SignalStatus = "TARGET_HIT"
	SignalExpired    SignalStatus = "EXPIRED"
)

// TargetLevel is one of a signal's primary/secondary profit targets.
type TargetLevel struct {
	Price decimal.Decimal
	Label string // "T1", "T2", "T3", "PRIMARY"
}

// ConfidenceComponents breaks the weighted confidence_score into its
// three inputs (pattern 0.5, phase 0.3, volume 0.2 per §3).
type ConfidenceComponents struct {
	Pattern decimal.Decimal
	Phase   decimal.Decimal
	Volume  decimal.Decimal
}

// Weighted computes the 0.5/0.3/0.2 weighted average, clamped to
// [70,95] per the data model's confidence_score range.
func (c ConfidenceComponents) Weighted() decimal.Decimal {
	score := c.Pattern.Mul(decimal.NewFromFloat(0.5)).
		Add(c.Phase.Mul(decimal.NewFromFloat(0.3))).
		Add(c.Volume.Mul(decimal.NewFromFloat(0.2)))
	if score.LessThan(decimal.NewFromInt(70)) {
		return decimal.NewFromInt(70)
	}
	if score.GreaterThan(decimal.NewFromInt(95)) {
		return decimal.NewFromInt(95)
	}
	return score
}

// StageName identifies one of the five fixed validation-chain stages
// (§4.11).
type StageName string

const (
	StageVolume   StageName = "Volume"
	StagePhase    StageName = "Phase"
	StageLevels   StageName = "Levels"
	StageRisk     StageName = "Risk"
	StageStrategy StageName = "Strategy"
)

// StageStatus is a validation stage's outcome.
type StageStatus string

const (
	StagePass StageStatus = "PASS"
	StageWarn StageStatus = "WARN"
	StageFail StageStatus = "FAIL"
)

// StageValidationResult is one entry in a signal's ValidationChain.
type StageValidationResult struct {
	Stage    StageName
	Status   StageStatus
	Reason   string
	Metadata map[string]any
}

// ValidationChain is the ordered concatenation of stage results
// carried on a signal for audit (§4.11).
type ValidationChain []StageValidationResult

// Status returns PASS iff no stage failed; WARN stages stay recorded
// in the chain but do not change the overall status.
func (vc ValidationChain) Status() StageStatus {
	for _, r := range vc {
		if r.Status == StageFail {
			return StageFail
		}
	}
	return StagePass
}

// TradeSignal is the immutable, fully-derived trading signal emitted
// by the Pattern-to-Signal Builder and carried through validation,
// approval and position lifecycle (§3).
type TradeSignal struct {
	ID                 string
	AssetClass         AssetClass
	Symbol             string
	PatternType        PatternType
	Phase              Phase
	Timeframe          Timeframe
	Direction          Direction
	EntryPrice         decimal.Decimal
	StopLoss           decimal.Decimal
	PrimaryTarget      decimal.Decimal
	SecondaryTargets   []TargetLevel
	TrailingActivation decimal.Decimal
	TrailingOffset     decimal.Decimal
	PositionSize       decimal.Decimal
	PositionUnit       PositionUnit
	Leverage           decimal.Decimal
	Margin             decimal.Decimal
	NotionalValue      decimal.Decimal
	RiskAmount         decimal.Decimal
	RMultiple          decimal.Decimal
	ConfidenceScore    decimal.Decimal
	ConfidenceParts    ConfidenceComponents
	CampaignID         string
	Status             SignalStatus
	RejectionReasons   []string
	ValidationChain    ValidationChain
	SchemaVersion      string
	CreatedAt          time.Time
}

// ValidateInvariants checks the universal signal invariants from §8:
// stop/target sidedness and the R-multiple tolerance.
func (s TradeSignal) ValidateInvariants() error {
	tol := decimal.NewFromFloat(0.1)
	riskDist := s.EntryPrice.Sub(s.StopLoss).Abs()
	rewardDist := s.PrimaryTarget.Sub(s.EntryPrice).Abs()
	if riskDist.IsZero() {
		return NewDomainError(ErrKindValidationFail, "entry equals stop, zero risk distance", nil)
	}
	impliedR := rewardDist.Div(riskDist)
	if impliedR.Sub(s.RMultiple).Abs().GreaterThan(tol) {
		return NewDomainError(ErrKindValidationFail, "r_multiple does not match target/entry/stop within tolerance", map[string]any{
			"implied": impliedR, "declared": s.RMultiple,
		})
	}
	switch s.Direction {
	case DirectionLong:
		if !(s.StopLoss.LessThan(s.EntryPrice) && s.EntryPrice.LessThan(s.PrimaryTarget)) {
			return NewDomainError(ErrKindValidationFail, "LONG signal must satisfy stop < entry < target", nil)
		}
	case DirectionShort:
		if !(s.PrimaryTarget.LessThan(s.EntryPrice) && s.EntryPrice.LessThan(s.StopLoss)) {
			return NewDomainError(ErrKindValidationFail, "SHORT signal must satisfy target < entry < stop", nil)
		}
	}
	return nil
}
