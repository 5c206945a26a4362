package signalbuilder_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/signalbuilder"
)

func rangeWithLevels() *model.TradingRange {
	rng := &model.TradingRange{
		ID: "R1", Symbol: "TEST", Timeframe: model.Timeframe1h, AssetClass: model.AssetClassStock,
		Support: decimal.NewFromInt(100), Resistance: decimal.NewFromInt(110),
		RangeWidth: decimal.NewFromInt(10),
	}
	rng.Creek = &model.Level{Price: decimal.NewFromInt(100), StrengthScore: decimal.NewFromInt(75)}
	rng.Ice = &model.Level{Price: decimal.NewFromInt(110), StrengthScore: decimal.NewFromInt(75)}
	rng.Jump = &model.Level{Price: decimal.NewFromInt(120)}
	return rng
}

func TestBuildSpringSignal(t *testing.T) {
	b := signalbuilder.NewBuilder()
	rng := rangeWithLevels()
	ev := model.Event{Type: model.EventSpring, BarIndex: 10,
		Fingerprint: map[string]decimal.Decimal{"penetration_pct": decimal.NewFromFloat(1.0)}}
	triggerBar := model.Bar{Close: decimal.NewFromFloat(101.5)}

	signal, err := b.Build(model.PatternSpring, ev, rng, triggerBar, model.PhaseC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Direction != model.DirectionLong {
		t.Errorf("expected LONG direction, got %s", signal.Direction)
	}
	if signal.RMultiple.LessThan(signalbuilder.MinRMultiple[model.PatternSpring]) {
		t.Errorf("expected r_multiple >= %s, got %s", signalbuilder.MinRMultiple[model.PatternSpring], signal.RMultiple)
	}
	if err := signal.ValidateInvariants(); err != nil {
		t.Errorf("signal fails its own invariants: %v", err)
	}
}

func TestBuildUTADSignalIsShort(t *testing.T) {
	b := signalbuilder.NewBuilder()
	rng := rangeWithLevels()
	ev := model.Event{Type: model.EventUTAD, BarIndex: 10,
		Fingerprint: map[string]decimal.Decimal{"penetration_pct": decimal.NewFromFloat(1.0)}}
	triggerBar := model.Bar{Close: decimal.NewFromFloat(109.0)}

	signal, err := b.Build(model.PatternUTAD, ev, rng, triggerBar, model.PhaseC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Direction != model.DirectionShort {
		t.Errorf("expected SHORT direction, got %s", signal.Direction)
	}
	if !signal.PrimaryTarget.LessThan(signal.EntryPrice) {
		t.Error("SHORT signal target must be below entry")
	}
}

func TestBuildRejectsSubMinimumRMultiple(t *testing.T) {
	b := signalbuilder.NewBuilder()
	rng := rangeWithLevels()
	// Jump too close to entry to clear SOS's 2.0 minimum.
	rng.Jump.Price = decimal.NewFromInt(111)
	ev := model.Event{Type: model.EventSignOfStrength, BarIndex: 10}
	triggerBar := model.Bar{Close: decimal.NewFromFloat(110.5)}

	_, err := b.Build(model.PatternSOS, ev, rng, triggerBar, model.PhaseD)
	if err == nil {
		t.Fatal("expected a sub-minimum r-multiple error")
	}
	if kind, _ := model.KindOf(err); kind != model.ErrKindValidationFail {
		t.Errorf("expected ErrKindValidationFail, got %s", kind)
	}
}
