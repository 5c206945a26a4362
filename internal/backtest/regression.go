// Package backtest provides a thin regression-test harness: it runs
// the signal engine over a historical bar series, computes a metrics
// snapshot (grounded on the teacher's backtester/viability.go scoring
// inputs: Sharpe, max drawdown, profit factor, win rate), and compares
// it against a saved baseline for cmd/regression (§6, §10).
package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// Metrics is a single regression run's performance snapshot.
type Metrics struct {
	SharpeRatio   decimal.Decimal `json:"sharpe_ratio"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	ProfitFactor  decimal.Decimal `json:"profit_factor"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TotalTrades   int             `json:"total_trades"`
	NetReturnPct  decimal.Decimal `json:"net_return_pct"`
	GeneratedAt   time.Time       `json:"generated_at"`
	SymbolsTested []string        `json:"symbols_tested"`
}

// TradeOutcome is one closed position's result, the raw input to
// ComputeMetrics.
type TradeOutcome struct {
	PnL       decimal.Decimal
	ReturnPct float64
}

// ComputeMetrics derives a Metrics snapshot from a run's closed-trade
// outcomes. Sharpe uses the simple per-trade return series (not
// annualized) since the regression harness compares one run against
// another rather than against a risk-free benchmark.
func ComputeMetrics(symbols []string, outcomes []TradeOutcome, now time.Time) Metrics {
	m := Metrics{GeneratedAt: now, SymbolsTested: symbols, TotalTrades: len(outcomes)}
	if len(outcomes) == 0 {
		return m
	}

	var grossProfit, grossLoss, netPnL decimal.Decimal
	wins := 0
	returns := make([]float64, len(outcomes))
	for i, o := range outcomes {
		netPnL = netPnL.Add(o.PnL)
		if o.PnL.IsPositive() {
			grossProfit = grossProfit.Add(o.PnL)
			wins++
		} else {
			grossLoss = grossLoss.Add(o.PnL.Abs())
		}
		returns[i] = o.ReturnPct
	}

	m.NetReturnPct = decimal.NewFromFloat(sum(returns))
	m.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(outcomes)))).Mul(decimal.NewFromInt(100))
	if !grossLoss.IsZero() {
		m.ProfitFactor = grossProfit.Div(grossLoss)
	}
	m.SharpeRatio = decimal.NewFromFloat(sharpe(returns))
	m.MaxDrawdown = decimal.NewFromFloat(maxDrawdownPct(returns))
	return m
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := sum(returns) / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return mean / stddev
}

func maxDrawdownPct(returns []float64) float64 {
	equity := 100.0
	peak := equity
	maxDD := 0.0
	for _, r := range returns {
		equity *= 1 + r/100
		if equity > peak {
			peak = equity
		}
		dd := (peak - equity) / peak * 100
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Verdict is the outcome of comparing a run against a baseline.
type Verdict string

const (
	VerdictPass           Verdict = "PASS"
	VerdictFail           Verdict = "FAIL"
	VerdictBaselineNotSet Verdict = "BASELINE_NOT_SET"
)

// Thresholds bounds how far a metric may regress from baseline before
// the run fails (expressed as an allowed absolute drop, mirroring the
// teacher's ViabilityThresholds style of one named tolerance per
// metric rather than a single global percentage).
type Thresholds struct {
	MaxSharpeDrop       decimal.Decimal
	MaxDrawdownRise     decimal.Decimal
	MaxProfitFactorDrop decimal.Decimal
	MaxWinRateDropPct   decimal.Decimal
}

// DefaultThresholds are conservative regression tolerances.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxSharpeDrop:       decimal.NewFromFloat(0.15),
		MaxDrawdownRise:     decimal.NewFromFloat(3.0),
		MaxProfitFactorDrop: decimal.NewFromFloat(0.2),
		MaxWinRateDropPct:   decimal.NewFromFloat(5.0),
	}
}

// Comparison is one baseline-vs-current regression result.
type Comparison struct {
	Verdict  Verdict
	Failures []string
	Current  Metrics
	Baseline *Metrics
}

// Compare evaluates current against baseline under th. A nil baseline
// yields VerdictBaselineNotSet so the CLI can distinguish "never
// established" from "regressed" (exit codes 2 vs 1, §10).
func Compare(current Metrics, baseline *Metrics, th Thresholds) Comparison {
	if baseline == nil {
		return Comparison{Verdict: VerdictBaselineNotSet, Current: current}
	}

	var failures []string
	if baseline.SharpeRatio.Sub(current.SharpeRatio).GreaterThan(th.MaxSharpeDrop) {
		failures = append(failures, fmt.Sprintf("sharpe_ratio dropped from %s to %s (max allowed drop %s)",
			baseline.SharpeRatio, current.SharpeRatio, th.MaxSharpeDrop))
	}
	if current.MaxDrawdown.Sub(baseline.MaxDrawdown).GreaterThan(th.MaxDrawdownRise) {
		failures = append(failures, fmt.Sprintf("max_drawdown rose from %s to %s (max allowed rise %s)",
			baseline.MaxDrawdown, current.MaxDrawdown, th.MaxDrawdownRise))
	}
	if baseline.ProfitFactor.Sub(current.ProfitFactor).GreaterThan(th.MaxProfitFactorDrop) {
		failures = append(failures, fmt.Sprintf("profit_factor dropped from %s to %s (max allowed drop %s)",
			baseline.ProfitFactor, current.ProfitFactor, th.MaxProfitFactorDrop))
	}
	if baseline.WinRate.Sub(current.WinRate).GreaterThan(th.MaxWinRateDropPct) {
		failures = append(failures, fmt.Sprintf("win_rate dropped from %s%% to %s%% (max allowed drop %s points)",
			baseline.WinRate, current.WinRate, th.MaxWinRateDropPct))
	}

	verdict := VerdictPass
	if len(failures) > 0 {
		verdict = VerdictFail
	}
	return Comparison{Verdict: verdict, Failures: failures, Current: current, Baseline: baseline}
}

// LoadBaseline reads a previously saved baseline from path. A missing
// file is not an error: it returns (nil, nil) so callers can surface
// BASELINE_NOT_SET.
func LoadBaseline(path string) (*Metrics, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading baseline %s: %w", path, err)
	}
	var m Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding baseline %s: %w", path, err)
	}
	return &m, nil
}

// SaveBaseline persists metrics as the new regression baseline.
func SaveBaseline(path string, m Metrics) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing baseline %s: %w", path, err)
	}
	return nil
}
