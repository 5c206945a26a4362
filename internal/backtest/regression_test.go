package backtest_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/backtest"
)

func sampleOutcomes() []backtest.TradeOutcome {
	return []backtest.TradeOutcome{
		{PnL: decimal.NewFromInt(100), ReturnPct: 2.0},
		{PnL: decimal.NewFromInt(-40), ReturnPct: -1.0},
		{PnL: decimal.NewFromInt(60), ReturnPct: 1.5},
	}
}

func TestComputeMetrics(t *testing.T) {
	m := backtest.ComputeMetrics([]string{"AAPL"}, sampleOutcomes(), time.Now())
	if m.TotalTrades != 3 {
		t.Errorf("expected 3 trades, got %d", m.TotalTrades)
	}
	wantWinRate := decimal.NewFromInt(2).Div(decimal.NewFromInt(3)).Mul(decimal.NewFromInt(100))
	if !m.WinRate.Equal(wantWinRate) {
		t.Errorf("expected win rate %s, got %s", wantWinRate, m.WinRate)
	}
	if m.ProfitFactor.LessThanOrEqual(decimal.Zero) {
		t.Errorf("expected a positive profit factor, got %s", m.ProfitFactor)
	}
}

func TestComputeMetrics_EmptyOutcomes(t *testing.T) {
	m := backtest.ComputeMetrics([]string{"AAPL"}, nil, time.Now())
	if m.TotalTrades != 0 {
		t.Errorf("expected 0 trades, got %d", m.TotalTrades)
	}
}

func TestCompare_NilBaselineReturnsBaselineNotSet(t *testing.T) {
	current := backtest.ComputeMetrics([]string{"AAPL"}, sampleOutcomes(), time.Now())
	result := backtest.Compare(current, nil, backtest.DefaultThresholds())
	if result.Verdict != backtest.VerdictBaselineNotSet {
		t.Errorf("expected BASELINE_NOT_SET, got %s", result.Verdict)
	}
}

func TestCompare_FailsOnSharpeRegression(t *testing.T) {
	baseline := backtest.Metrics{SharpeRatio: decimal.NewFromFloat(1.0), MaxDrawdown: decimal.NewFromFloat(5), ProfitFactor: decimal.NewFromFloat(2), WinRate: decimal.NewFromFloat(60)}
	current := backtest.Metrics{SharpeRatio: decimal.NewFromFloat(0.5), MaxDrawdown: decimal.NewFromFloat(5), ProfitFactor: decimal.NewFromFloat(2), WinRate: decimal.NewFromFloat(60)}

	result := backtest.Compare(current, &baseline, backtest.DefaultThresholds())
	if result.Verdict != backtest.VerdictFail {
		t.Fatalf("expected FAIL, got %s", result.Verdict)
	}
	if len(result.Failures) != 1 {
		t.Errorf("expected exactly 1 failure reason, got %d: %v", len(result.Failures), result.Failures)
	}
}

func TestCompare_PassesWithinTolerance(t *testing.T) {
	baseline := backtest.Metrics{SharpeRatio: decimal.NewFromFloat(1.0), MaxDrawdown: decimal.NewFromFloat(5), ProfitFactor: decimal.NewFromFloat(2), WinRate: decimal.NewFromFloat(60)}
	current := backtest.Metrics{SharpeRatio: decimal.NewFromFloat(0.95), MaxDrawdown: decimal.NewFromFloat(5.5), ProfitFactor: decimal.NewFromFloat(1.9), WinRate: decimal.NewFromFloat(58)}

	result := backtest.Compare(current, &baseline, backtest.DefaultThresholds())
	if result.Verdict != backtest.VerdictPass {
		t.Errorf("expected PASS within tolerance, got %s: %v", result.Verdict, result.Failures)
	}
}

func TestSaveAndLoadBaseline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "baseline.json")

	original := backtest.Metrics{SharpeRatio: decimal.NewFromFloat(1.2), TotalTrades: 42}
	if err := backtest.SaveBaseline(path, original); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := backtest.LoadBaseline(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil || loaded.TotalTrades != 42 {
		t.Fatalf("expected to load back the saved baseline, got %+v", loaded)
	}
}

func TestLoadBaseline_MissingFileReturnsNilWithoutError(t *testing.T) {
	loaded, err := backtest.LoadBaseline(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Error("expected a nil baseline for a missing file")
	}
}
