package wyckoffevents_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/volume"
	"github.com/wyckoff-labs/signal-engine/internal/wyckoffevents"
)

func bar(i int, o, h, l, c, v float64) model.Bar {
	return model.Bar{
		Symbol:    "TEST",
		Timeframe: model.Timeframe1h,
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Open:      decimal.NewFromFloat(o),
		High:      decimal.NewFromFloat(h),
		Low:       decimal.NewFromFloat(l),
		Close:     decimal.NewFromFloat(c),
		Volume:    decimal.NewFromFloat(v),
	}
}

// buildDowntrendWithSC constructs a 25-bar downtrend ending in a
// climactic bar at index 20 (3x volume, wide spread, close upper
// half), suitable for exercising DetectSellingClimax and
// DetectAutomaticRally together.
func buildDowntrendWithSC() []model.Bar {
	var bars []model.Bar
	price := 100.0
	for i := 0; i < 20; i++ {
		price -= 1.0
		bars = append(bars, bar(i, price+1, price+1.2, price-0.2, price, 1000))
	}
	// Selling climax: wide spread, huge volume, closes near the high.
	bars = append(bars, bar(20, 80, 81, 70, 80.5, 3500))
	// Automatic rally over the next few bars on declining volume.
	bars = append(bars, bar(21, 80.5, 85, 80.2, 84, 1500))
	bars = append(bars, bar(22, 84, 87, 83.5, 86.5, 1200))
	bars = append(bars, bar(23, 86.5, 86.8, 85, 85.5, 900))
	bars = append(bars, bar(24, 85.5, 86, 84.8, 85, 800))
	return bars
}

func rangeFor(bars []model.Bar) *model.TradingRange {
	return &model.TradingRange{
		ID:         "TEST-1h-0-24",
		Symbol:     "TEST",
		Timeframe:  model.Timeframe1h,
		AssetClass: model.AssetClassStock,
		StartIndex: 0,
		EndIndex:   len(bars) - 1,
	}
}

func TestDetectSellingClimax(t *testing.T) {
	bars := buildDowntrendWithSC()
	va := volume.NewAnalyzer(10).Analyze(bars)
	rng := rangeFor(bars)
	th := wyckoffevents.DefaultThresholds()

	ev, err := wyckoffevents.DetectSellingClimax(bars, va, rng, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil {
		t.Fatal("expected a selling climax event, got nil")
	}
	if ev.BarIndex != 20 {
		t.Errorf("expected SC at bar 20, got %d", ev.BarIndex)
	}
	if ev.Confidence.LessThan(decimal.NewFromInt(50)) {
		t.Errorf("expected reasonable SC confidence, got %s", ev.Confidence)
	}
}

func TestDetectAutomaticRallyRequiresSC(t *testing.T) {
	bars := buildDowntrendWithSC()
	va := volume.NewAnalyzer(10).Analyze(bars)
	rng := rangeFor(bars)
	th := wyckoffevents.DefaultThresholds()

	ev, err := wyckoffevents.DetectAutomaticRally(bars, va, rng, nil, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Fatal("expected no AR without a prior SC")
	}

	sc, _ := wyckoffevents.DetectSellingClimax(bars, va, rng, th)
	if sc == nil {
		t.Fatal("setup failed: no SC detected")
	}
	ar, err := wyckoffevents.DetectAutomaticRally(bars, va, rng, []model.Event{*sc}, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ar == nil {
		t.Fatal("expected an automatic rally following SC")
	}
	if ar.BarIndex <= sc.BarIndex {
		t.Errorf("AR bar %d must follow SC bar %d", ar.BarIndex, sc.BarIndex)
	}
}

// TestDetectSpring_Shallow exercises the shallow-spring scenario: a
// brief, low-volume penetration of Creek that recovers within the
// recovery window — the canonical accumulation spring.
func TestDetectSpring_Shallow(t *testing.T) {
	var bars []model.Bar
	price := 100.0
	for i := 0; i < 15; i++ {
		bars = append(bars, bar(i, price, price+0.5, price-0.5, price, 1000))
	}
	// AR marker bar at index 14 so the spring scan has an anchor.
	rng := rangeFor(nil)
	rng.StartIndex = 0

	// Shallow spring at index 15: penetrates Creek (100) by 1%, low volume.
	bars = append(bars, bar(15, 100, 100.2, 99.0, 99.5, 500))
	// Recovers above Creek within 2 bars.
	bars = append(bars, bar(16, 99.5, 101.5, 99.3, 101.2, 900))
	rng.EndIndex = len(bars) - 1
	rng.Creek = &model.Level{Price: decimal.NewFromInt(100), StrengthScore: decimal.NewFromInt(70)}

	va := volume.NewAnalyzer(10).Analyze(bars)
	th := wyckoffevents.DefaultThresholds()

	anchor := model.Event{Type: model.EventAutomaticRally, ID: "anchor", BarIndex: 14}
	ev, err := wyckoffevents.DetectSpring(bars, va, rng, []model.Event{anchor}, th)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil {
		t.Fatal("expected a shallow spring to be detected")
	}
	if ev.BarIndex != 15 {
		t.Errorf("expected spring at bar 15, got %d", ev.BarIndex)
	}
	if ev.QualityTier == "" {
		t.Error("expected a non-empty quality tier on a qualifying spring")
	}
}

func TestResolveEntryPreference_LPSWinsOverSOS(t *testing.T) {
	sos := model.Event{Type: model.EventSignOfStrength, BarIndex: 30, Confidence: decimal.NewFromInt(85),
		Fingerprint: map[string]decimal.Decimal{"volume_ratio": decimal.NewFromFloat(2.2)}}
	lps := model.Event{Type: model.EventLastPointOfSupport, BarIndex: 34}

	decision, ok := wyckoffevents.ResolveEntryPreference(sos, &lps, 34)
	if !ok {
		t.Fatal("expected a decision")
	}
	if decision.Pattern != model.EventLastPointOfSupport {
		t.Errorf("expected LPS to win over SOS, got %s", decision.Pattern)
	}
}

func TestResolveEntryPreference_WaitsForLPSWindow(t *testing.T) {
	sos := model.Event{Type: model.EventSignOfStrength, BarIndex: 30, Confidence: decimal.NewFromInt(90),
		Fingerprint: map[string]decimal.Decimal{"volume_ratio": decimal.NewFromFloat(3.0)}}

	// Still inside the 10-bar wait window: defer.
	_, ok := wyckoffevents.ResolveEntryPreference(sos, nil, 35)
	if ok {
		t.Fatal("expected deferral inside the wait window")
	}
}

func TestResolveEntryPreference_DirectSOSAfterWindowIfStrong(t *testing.T) {
	sos := model.Event{Type: model.EventSignOfStrength, BarIndex: 30, Confidence: decimal.NewFromInt(85),
		Fingerprint: map[string]decimal.Decimal{"volume_ratio": decimal.NewFromFloat(2.5)}}

	decision, ok := wyckoffevents.ResolveEntryPreference(sos, nil, 41)
	if !ok {
		t.Fatal("expected a decision once the wait window elapses")
	}
	if decision == nil || decision.Pattern != model.EventSignOfStrength {
		t.Fatal("expected a direct SOS entry for a strong SOS with no LPS")
	}
}

func TestResolveEntryPreference_WeakSOSDroppedAfterWindow(t *testing.T) {
	sos := model.Event{Type: model.EventSignOfStrength, BarIndex: 30, Confidence: decimal.NewFromInt(72),
		Fingerprint: map[string]decimal.Decimal{"volume_ratio": decimal.NewFromFloat(1.4)}}

	decision, ok := wyckoffevents.ResolveEntryPreference(sos, nil, 41)
	if !ok {
		t.Fatal("decision should be resolved (not deferred) once window elapses")
	}
	if decision != nil {
		t.Error("expected the weak SOS to be dropped with no signal")
	}
}
