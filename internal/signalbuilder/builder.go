// Package signalbuilder derives a TradeSignal's entry, stop, targets
// and R-multiple from the triggering Wyckoff pattern and its range
// (§4.10).
package signalbuilder

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// MinRMultiple is the per-pattern minimum reward:risk the builder
// requires before a signal is emitted at all — below this, the
// pattern is not worth trading and the builder returns an error
// rather than a sub-minimum signal (§6 risk constants).
var MinRMultiple = map[model.PatternType]decimal.Decimal{
	model.PatternSpring: decimal.NewFromFloat(3.0),
	model.PatternSOS:    decimal.NewFromFloat(2.0),
	model.PatternLPS:    decimal.NewFromFloat(2.5),
	model.PatternUTAD:   decimal.NewFromFloat(3.0),
}

// stopBufferPct cushions the stop beyond the structural level so
// ordinary noise doesn't trigger it immediately.
var stopBufferPct = decimal.NewFromFloat(0.5)

// Builder constructs TradeSignals from a triggering event and its
// range.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder { return &Builder{} }

// Build derives entry/stop/targets/r_multiple for the given pattern
// and returns the partially-populated TradeSignal (confidence,
// position sizing, campaign linkage and validation chain are filled
// in by later stages). Returns a ErrKindValidationFail DomainError if
// the pattern's minimum R-multiple is not met.
func (b *Builder) Build(pattern model.PatternType, ev model.Event, rng *model.TradingRange, triggerBar model.Bar, phaseVal model.Phase) (*model.TradeSignal, error) {
	if rng.Creek == nil || rng.Ice == nil || rng.Jump == nil {
		return nil, model.NewDomainError(model.ErrKindValidationFail, "range missing Creek/Ice/Jump levels", map[string]any{"range_id": rng.ID})
	}

	direction := model.DirectionFor(pattern)
	var entry, stop, primaryTarget decimal.Decimal
	var secondary []model.TargetLevel

	switch pattern {
	case model.PatternSpring:
		entry = triggerBar.Close
		stop = belowByPct(rng.Creek.Price, stopBufferPct)
		if fp, ok := ev.Fingerprint["penetration_pct"]; ok {
			springLow := rng.Creek.Price.Sub(rng.Creek.Price.Mul(fp).Div(decimal.NewFromInt(100)))
			if springLow.LessThan(stop) {
				stop = belowByPct(springLow, stopBufferPct)
			}
		}
		primaryTarget = rng.Jump.Price
		secondary = []model.TargetLevel{
			{Price: rng.Ice.Price, Label: "T1"},
			{Price: rng.Resistance.Add(rng.RangeWidth), Label: "T2"},
			{Price: rng.Jump.Price, Label: "T3"},
		}

	case model.PatternSOS:
		entry = triggerBar.Close
		stop = belowByPct(rng.Ice.Price, decimal.NewFromFloat(5.0))
		primaryTarget = rng.Jump.Price
		secondary = []model.TargetLevel{
			{Price: rng.Jump.Price, Label: "T1"},
		}

	case model.PatternLPS:
		entry = triggerBar.Close
		stop = belowByPct(rng.Ice.Price, decimal.NewFromFloat(3.0))
		primaryTarget = rng.Jump.Price
		secondary = []model.TargetLevel{
			{Price: rng.Ice.Price, Label: "T1"},
			{Price: rng.Jump.Price, Label: "T2"},
		}

	case model.PatternUTAD:
		entry = triggerBar.Close
		stop = aboveByPct(rng.Ice.Price, stopBufferPct)
		if fp, ok := ev.Fingerprint["penetration_pct"]; ok {
			utadHigh := rng.Ice.Price.Add(rng.Ice.Price.Mul(fp).Div(decimal.NewFromInt(100)))
			if utadHigh.GreaterThan(stop) {
				stop = aboveByPct(utadHigh, decimal.NewFromFloat(0.5))
			}
		}
		primaryTarget = rng.Creek.Price
		secondary = []model.TargetLevel{
			{Price: rng.Creek.Price, Label: "T1"},
			{Price: rng.Support.Sub(rng.RangeWidth), Label: "T2"},
		}

	default:
		return nil, model.NewDomainError(model.ErrKindValidationFail, fmt.Sprintf("unknown pattern type %s", pattern), nil)
	}

	riskDist := entry.Sub(stop).Abs()
	if riskDist.IsZero() {
		return nil, model.NewDomainError(model.ErrKindValidationFail, "zero risk distance", map[string]any{"pattern": pattern})
	}
	rewardDist := primaryTarget.Sub(entry).Abs()
	rMultiple := rewardDist.Div(riskDist).Round(2)

	if rMultiple.LessThan(MinRMultiple[pattern]) {
		return nil, model.NewDomainError(model.ErrKindValidationFail, "pattern does not meet minimum r-multiple", map[string]any{
			"pattern": pattern, "r_multiple": rMultiple, "minimum": MinRMultiple[pattern],
		})
	}

	signal := &model.TradeSignal{
		ID:               fmt.Sprintf("%s-%s-%d", rng.Symbol, pattern, ev.BarIndex),
		AssetClass:       rng.AssetClass,
		Symbol:           rng.Symbol,
		PatternType:      pattern,
		Phase:            phaseVal,
		Timeframe:        rng.Timeframe,
		Direction:        direction,
		EntryPrice:       entry,
		StopLoss:         stop,
		PrimaryTarget:    primaryTarget,
		SecondaryTargets: secondary,
		RMultiple:        rMultiple,
		Status:           model.SignalPending,
		SchemaVersion:    "1",
	}
	if err := signal.ValidateInvariants(); err != nil {
		return nil, err
	}
	return signal, nil
}

func belowByPct(price, pct decimal.Decimal) decimal.Decimal {
	return price.Sub(price.Mul(pct).Div(decimal.NewFromInt(100)))
}

func aboveByPct(price, pct decimal.Decimal) decimal.Decimal {
	return price.Add(price.Mul(pct).Div(decimal.NewFromInt(100)))
}
