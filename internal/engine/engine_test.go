package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/engine"
	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/queue"
	"github.com/wyckoff-labs/signal-engine/internal/repo"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"github.com/wyckoff-labs/signal-engine/internal/strategy"
	"go.uber.org/zap"
)

func testEngine(t *testing.T) (*engine.Engine, *eventbus.Bus, repo.Campaigns) {
	t.Helper()
	logger := zap.NewNop()
	bus := eventbus.New(logger, eventbus.DefaultConfig())
	t.Cleanup(bus.Close)

	campaigns := repo.NewInMemoryCampaigns()
	signals := repo.NewInMemorySignals()

	e := engine.New(engine.Config{
		Logger:    logger,
		Bus:       bus,
		Metrics:   nil,
		Campaigns: campaigns,
		Signals:   signals,
		Risk:      risk.NewAllocator(logger),
		Strategy:  strategy.NewChecker(logger),
		Queue:     queue.NewQueue(logger, 50, 48*time.Hour),
		MaxBars:   500,
	})
	return e, bus, campaigns
}

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

func TestProcessBar_AppendsAndPublishesBarIngested(t *testing.T) {
	e, bus, _ := testEngine(t)
	ctx := context.Background()
	now := time.Now()

	b := bar(0, 100, 101, 99, 100.5, 1000)
	if err := e.ProcessBar(ctx, b, "user-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	evs := bus.MessagesSince(0)
	if len(evs) == 0 {
		t.Fatal("expected at least one published event")
	}
	if evs[0].Type != eventbus.EventBarIngested {
		t.Errorf("expected first event to be bar_ingested, got %s", evs[0].Type)
	}
	if evs[0].Symbol != "TEST" {
		t.Errorf("expected event symbol TEST, got %s", evs[0].Symbol)
	}
}

func TestProcessBar_RejectsOutOfOrderBar(t *testing.T) {
	e, _, _ := testEngine(t)
	ctx := context.Background()
	now := time.Now()

	if err := e.ProcessBar(ctx, bar(5, 100, 101, 99, 100.5, 1000), "user-1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := e.ProcessBar(ctx, bar(0, 100, 101, 99, 100.5, 1000), "user-1", now)
	if err == nil {
		t.Fatal("expected an error for an out-of-order bar")
	}
}

func TestProcessBar_NoRangeYieldsNoPatternEvents(t *testing.T) {
	e, bus, _ := testEngine(t)
	ctx := context.Background()
	now := time.Now()

	// A handful of bars is nowhere near enough history to form a
	// trading range, so no pattern_detected events should appear.
	for i := 0; i < 5; i++ {
		price := 100.0 + float64(i)
		if err := e.ProcessBar(ctx, bar(i, price, price+1, price-1, price, 1000), "user-1", now); err != nil {
			t.Fatalf("unexpected error on bar %d: %v", i, err)
		}
	}

	for _, ev := range bus.MessagesSince(0) {
		if ev.Type == eventbus.EventPatternDetected {
			t.Fatalf("did not expect a pattern_detected event this early, got %+v", ev)
		}
	}
}
