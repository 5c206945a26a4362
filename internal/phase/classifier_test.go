package phase_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/phase"
)

func testRange() *model.TradingRange {
	return &model.TradingRange{
		ID: "R1", Symbol: "TEST", Timeframe: model.Timeframe1h,
		StartIndex: 0, EndIndex: 40, Duration: 41,
	}
}

func TestClassify_NoEventsIsPhaseNone(t *testing.T) {
	c := phase.NewClassifier()
	result := c.Classify(testRange(), nil, nil)
	if result.Phase != model.PhaseNone {
		t.Errorf("expected PhaseNone, got %s", result.Phase)
	}
	if result.TradingAllowed {
		t.Error("no events should never allow trading")
	}
}

// TestClassify_PhaseBDurationGate exercises FR14: an SC+AR+ST cluster
// is always Phase B, whether or not the duration gate (measured from
// the first ST) has cleared — only duration and trading_allowed
// depend on the gate.
func TestClassify_PhaseBDurationGate(t *testing.T) {
	c := phase.NewClassifier()
	rng := testRange()
	events := []model.Event{
		{Type: model.EventSellingClimax, BarIndex: 100, Confidence: decimal.NewFromInt(80), Timestamp: time.Now()},
		{Type: model.EventAutomaticRally, BarIndex: 105, Confidence: decimal.NewFromInt(70)},
		{Type: model.EventSecondaryTest, BarIndex: 110, Confidence: decimal.NewFromInt(65)},
	}

	atGate := 120
	result := c.Classify(rng, events, &atGate)
	if result.Phase != model.PhaseB {
		t.Errorf("expected PhaseB at the FR14 boundary, got %s", result.Phase)
	}
	if result.DurationBars != 10 {
		t.Errorf("expected duration 10 (120 - first_ST 110), got %d", result.DurationBars)
	}
	if result.TradingAllowed {
		t.Error("duration exactly at the gate (10) should not yet allow trading")
	}

	pastGate := 121
	result = c.Classify(rng, events, &pastGate)
	if result.Phase != model.PhaseB {
		t.Errorf("expected PhaseB past the FR14 boundary, got %s", result.Phase)
	}
	if result.DurationBars != 11 {
		t.Errorf("expected duration 11, got %d", result.DurationBars)
	}
	if !result.TradingAllowed {
		t.Error("duration past the gate (11) should allow trading")
	}
}

func TestClassify_PhaseDAllowsTrading(t *testing.T) {
	c := phase.NewClassifier()
	rng := testRange()
	rng.Jump = &model.Level{Price: decimal.NewFromInt(110)}
	events := []model.Event{
		{Type: model.EventSellingClimax, BarIndex: 0, Confidence: decimal.NewFromInt(80)},
		{Type: model.EventAutomaticRally, BarIndex: 3, Confidence: decimal.NewFromInt(70)},
		{Type: model.EventSecondaryTest, BarIndex: 5, Confidence: decimal.NewFromInt(65)},
		{Type: model.EventSpring, BarIndex: 15, Confidence: decimal.NewFromInt(75)},
		{Type: model.EventSignOfStrength, BarIndex: 20, Confidence: decimal.NewFromInt(85)},
	}
	result := c.Classify(rng, events, nil)
	if result.Phase != model.PhaseD {
		t.Errorf("expected PhaseD, got %s", result.Phase)
	}
	if !result.TradingAllowed {
		t.Error("phase D should allow trading")
	}
}

func TestClassify_PhaseEOnceBrokenOut(t *testing.T) {
	c := phase.NewClassifier()
	rng := testRange()
	rng.Jump = &model.Level{Price: decimal.NewFromInt(110)}
	rng.Status = model.RangeBREAKOUT
	events := []model.Event{
		{Type: model.EventSignOfStrength, BarIndex: 20, Confidence: decimal.NewFromInt(85)},
	}
	result := c.Classify(rng, events, nil)
	if result.Phase != model.PhaseE {
		t.Errorf("expected PhaseE, got %s", result.Phase)
	}
	if result.TradingAllowed {
		t.Error("phase E should not allow new entries")
	}
}
