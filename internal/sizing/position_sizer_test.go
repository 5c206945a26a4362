package sizing_test

import (
	"testing"

	"github.com/wyckoff-labs/signal-engine/internal/sizing"
	"go.uber.org/zap"
)

func TestGetTradeStatistics_EmptyHistory(t *testing.T) {
	ps := sizing.NewPositionSizer(zap.NewNop(), nil)
	stats := ps.GetTradeStatistics()
	if stats.TotalTrades != 0 {
		t.Fatalf("expected 0 trades, got %d", stats.TotalTrades)
	}
}

func TestGetTradeStatistics_PositiveEdgeRecommendsKelly(t *testing.T) {
	ps := sizing.NewPositionSizer(zap.NewNop(), sizing.DefaultSizingConfig())
	for i := 0; i < 6; i++ {
		ps.AddTradeResult(&sizing.TradeResult{ReturnPct: 3.0, IsWin: true})
	}
	for i := 0; i < 4; i++ {
		ps.AddTradeResult(&sizing.TradeResult{ReturnPct: -1.0, IsWin: false})
	}

	stats := ps.GetTradeStatistics()
	if stats.TotalTrades != 10 || stats.Wins != 6 || stats.Losses != 4 {
		t.Fatalf("unexpected trade counts: %+v", stats)
	}
	if stats.KellyOptimal.IsZero() {
		t.Fatal("expected a positive Kelly recommendation for a positive-edge history")
	}
	if stats.KellyRecommended.GreaterThan(stats.KellyOptimal) {
		t.Fatalf("quarter-Kelly recommendation %s should not exceed full Kelly %s", stats.KellyRecommended, stats.KellyOptimal)
	}
}

func TestGetTradeStatistics_NegativeEdgeRecommendsNoPosition(t *testing.T) {
	ps := sizing.NewPositionSizer(zap.NewNop(), sizing.DefaultSizingConfig())
	for i := 0; i < 8; i++ {
		ps.AddTradeResult(&sizing.TradeResult{ReturnPct: -2.0, IsWin: false})
	}
	for i := 0; i < 2; i++ {
		ps.AddTradeResult(&sizing.TradeResult{ReturnPct: 1.0, IsWin: true})
	}

	stats := ps.GetTradeStatistics()
	if !stats.KellyOptimal.IsZero() {
		t.Fatalf("expected zero Kelly recommendation for a negative-edge history, got %s", stats.KellyOptimal)
	}
}

func TestAddTradeResult_TrimsToLookback(t *testing.T) {
	ps := sizing.NewPositionSizer(zap.NewNop(), &sizing.SizingConfig{KellyFraction: 0.25, LookbackTrades: 5})
	for i := 0; i < 20; i++ {
		ps.AddTradeResult(&sizing.TradeResult{ReturnPct: 1.0, IsWin: true})
	}
	stats := ps.GetTradeStatistics()
	if stats.TotalTrades != 5 {
		t.Fatalf("expected history trimmed to 5 trades, got %d", stats.TotalTrades)
	}
}
