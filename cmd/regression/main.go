// Package main provides the regression-test CLI: it replays historical
// bars through the signal engine, walks each generated signal forward
// to a simulated stop/target exit, and compares the resulting
// performance metrics against a saved baseline (§6, §10).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/backtest"
	"github.com/wyckoff-labs/signal-engine/internal/data"
	"github.com/wyckoff-labs/signal-engine/internal/engine"
	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/montecarlo"
	"github.com/wyckoff-labs/signal-engine/internal/queue"
	"github.com/wyckoff-labs/signal-engine/internal/repo"
	"github.com/wyckoff-labs/signal-engine/internal/risk"
	"github.com/wyckoff-labs/signal-engine/internal/sizing"
	"github.com/wyckoff-labs/signal-engine/internal/strategy"
	"github.com/wyckoff-labs/signal-engine/internal/workers"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated list of symbols to replay")
	startFlag := flag.String("start-date", "", "replay window start (YYYY-MM-DD)")
	endFlag := flag.String("end-date", "", "replay window end (YYYY-MM-DD)")
	establishBaseline := flag.Bool("establish-baseline", false, "save this run's metrics as the new baseline instead of comparing")
	alert := flag.Bool("alert", false, "print a loud banner when the run fails regression")
	output := flag.String("output", "", "optional path to write the JSON comparison report")
	noColor := flag.Bool("no-color", false, "disable ANSI color in terminal output")
	dataDir := flag.String("data-dir", "./data/historical", "directory of per-symbol historical bar JSON files")
	timeframeFlag := flag.String("timeframe", string(model.Timeframe1h), "bar timeframe to replay")
	baselinePath := flag.String("baseline", "./regression_baseline.json", "path to the saved baseline metrics file")
	monteCarlo := flag.Bool("monte-carlo", false, "bootstrap-resample trade outcomes and report a robustness score")
	flag.Parse()

	if *symbolsFlag == "" {
		fmt.Fprintln(os.Stderr, "error: --symbols is required")
		os.Exit(3)
	}
	start, end, err := parseWindow(*startFlag, *endFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(3)
	}
	symbols := splitSymbols(*symbolsFlag)
	timeframe := model.Timeframe(*timeframeFlag)

	outcomes, err := runReplay(symbols, timeframe, *dataDir, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(3)
	}

	metrics := backtest.ComputeMetrics(symbols, outcomes, end)
	colors := !*noColor

	printKellyRecommendation(outcomes)
	if *monteCarlo {
		printRobustness(outcomes)
	}

	if *establishBaseline {
		if err := backtest.SaveBaseline(*baselinePath, metrics); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(3)
		}
		printMetrics(metrics)
		fmt.Println(colorize("baseline established", "36", colors))
		os.Exit(0)
	}

	baseline, err := backtest.LoadBaseline(*baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(3)
	}
	comparison := backtest.Compare(metrics, baseline, backtest.DefaultThresholds())

	if *output != "" {
		if err := writeReport(*output, comparison); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(3)
		}
	}

	printComparison(comparison, colors)
	if comparison.Verdict == backtest.VerdictFail && *alert {
		fmt.Println(colorize("*** REGRESSION ALERT: performance dropped below tolerance ***", "41;97", colors))
	}
	os.Exit(exitCodeFor(comparison.Verdict))
}

func exitCodeFor(v backtest.Verdict) int {
	switch v {
	case backtest.VerdictPass:
		return 0
	case backtest.VerdictFail:
		return 1
	case backtest.VerdictBaselineNotSet:
		return 2
	default:
		return 3
	}
}

func parseWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("--start-date and --end-date are required")
	}
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing --start-date: %w", err)
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing --end-date: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end-date must be after --start-date")
	}
	return start, end, nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runReplay feeds each symbol's historical bars through its own fresh
// engine instance and walks every generated signal forward to its
// simulated exit. Symbols share no state, so replays run concurrently
// on a bounded worker pool rather than one at a time.
func runReplay(symbols []string, timeframe model.Timeframe, dataDir string, start, end time.Time) ([]backtest.TradeOutcome, error) {
	store, err := data.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening historical data store: %w", err)
	}

	logger := zap.NewNop()
	pool := workers.NewPool(logger, workers.DefaultPoolConfig("regression-replay"))
	pool.Start()
	defer pool.Stop()

	var (
		mu       sync.Mutex
		outcomes []backtest.TradeOutcome
		firstErr error
		wg       sync.WaitGroup
	)

	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(1)
		submitErr := pool.SubmitFunc(func() error {
			defer wg.Done()
			symbolOutcomes, err := replaySymbol(store, logger, symbol, timeframe, start, end)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return err
			}
			outcomes = append(outcomes, symbolOutcomes...)
			return nil
		})
		if submitErr != nil {
			wg.Done()
			return nil, fmt.Errorf("scheduling replay for %s: %w", symbol, submitErr)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return outcomes, nil
}

// replaySymbol replays one symbol's historical bars through a fresh
// engine instance and simulates an exit for every generated signal.
func replaySymbol(store *data.Store, logger *zap.Logger, symbol string, timeframe model.Timeframe, start, end time.Time) ([]backtest.TradeOutcome, error) {
	bars, err := store.LoadBars(symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("loading bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, nil
	}

	// collectSignals reads the generated signals back from the replay
	// ring, so the ring keeps every event of the run.
	busCfg := eventbus.DefaultConfig()
	busCfg.ReplayCap = math.MaxInt
	busCfg.ReplayTTL = 24 * time.Hour
	bus := eventbus.New(logger, busCfg)
	defer bus.Close()

	eng := engine.New(engine.Config{
		Logger:    logger,
		Bus:       bus,
		Metrics:   nil,
		Campaigns: repo.NewInMemoryCampaigns(),
		Signals:   repo.NewInMemorySignals(),
		Risk:      risk.NewAllocator(logger),
		Strategy:  strategy.NewChecker(logger),
		Queue:     queue.NewQueue(logger, 50, 48*time.Hour),
		MaxBars:   len(bars) + 1,
	})

	ctx := context.Background()
	for _, b := range bars {
		_ = eng.ProcessBar(ctx, b, "regression", b.Timestamp)
	}

	var outcomes []backtest.TradeOutcome
	for _, signal := range collectSignals(bus, symbol) {
		if outcome, ok := simulateOutcome(signal, bars); ok {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, nil
}

func collectSignals(bus *eventbus.Bus, symbol string) []*model.TradeSignal {
	var out []*model.TradeSignal
	for _, ev := range bus.MessagesSince(0) {
		if ev.Type != eventbus.EventSignalGenerated || ev.Symbol != symbol {
			continue
		}
		if signal, ok := ev.Payload.(*model.TradeSignal); ok {
			out = append(out, signal)
		}
	}
	return out
}

// simulateOutcome walks bars forward from the bar matching the
// signal's creation timestamp, exiting at the first stop-loss or
// primary-target touch (stop takes priority on a bar that crosses
// both), or at the series' last close if neither is hit.
func simulateOutcome(signal *model.TradeSignal, bars []model.Bar) (backtest.TradeOutcome, bool) {
	entryIdx := -1
	for i, b := range bars {
		if b.Timestamp.Equal(signal.CreatedAt) {
			entryIdx = i
			break
		}
	}
	if entryIdx < 0 || entryIdx >= len(bars)-1 {
		return backtest.TradeOutcome{}, false
	}

	sign := decimal.NewFromInt(1)
	if signal.Direction == model.DirectionShort {
		sign = decimal.NewFromInt(-1)
	}

	exitPrice := bars[len(bars)-1].Close
	for _, b := range bars[entryIdx+1:] {
		stopHit := (signal.Direction == model.DirectionLong && b.Low.LessThanOrEqual(signal.StopLoss)) ||
			(signal.Direction == model.DirectionShort && b.High.GreaterThanOrEqual(signal.StopLoss))
		targetHit := (signal.Direction == model.DirectionLong && b.High.GreaterThanOrEqual(signal.PrimaryTarget)) ||
			(signal.Direction == model.DirectionShort && b.Low.LessThanOrEqual(signal.PrimaryTarget))

		if stopHit {
			exitPrice = signal.StopLoss
			break
		}
		if targetHit {
			exitPrice = signal.PrimaryTarget
			break
		}
	}

	pnl := exitPrice.Sub(signal.EntryPrice).Mul(sign)
	returnPct := 0.0
	if !signal.EntryPrice.IsZero() {
		returnPct, _ = pnl.Div(signal.EntryPrice).Mul(decimal.NewFromInt(100)).Float64()
	}
	return backtest.TradeOutcome{PnL: pnl, ReturnPct: returnPct}, true
}

func writeReport(path string, comparison backtest.Comparison) error {
	payload, err := json.MarshalIndent(comparison, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}

// printKellyRecommendation feeds every outcome into a PositionSizer
// and reports the quarter-Kelly size it recommends for the next run's
// signals, as a sizing diagnostic alongside the regression verdict.
func printKellyRecommendation(outcomes []backtest.TradeOutcome) {
	if len(outcomes) == 0 {
		return
	}
	sizer := sizing.NewPositionSizer(zap.NewNop(), sizing.DefaultSizingConfig())
	for _, o := range outcomes {
		sizer.AddTradeResult(&sizing.TradeResult{ReturnPct: o.ReturnPct, IsWin: o.PnL.IsPositive()})
	}
	stats := sizer.GetTradeStatistics()
	fmt.Printf("kelly_optimal:  %s%%\n", stats.KellyOptimal)
	fmt.Printf("kelly_recommended (quarter-Kelly): %s%%\n", stats.KellyRecommended)
}

// printRobustness bootstrap-resamples the run's trade returns and
// reports the resulting robustness score and drawdown dispersion.
func printRobustness(outcomes []backtest.TradeOutcome) {
	if len(outcomes) == 0 {
		return
	}
	returns := make([]float64, len(outcomes))
	for i, o := range outcomes {
		returns[i] = o.ReturnPct
	}
	sim := montecarlo.NewSimulator(zap.NewNop(), montecarlo.DefaultSimulatorConfig())
	result := sim.RunSimulation(&montecarlo.TradeSequence{Returns: returns}, decimal.NewFromInt(100000))
	fmt.Println()
	fmt.Printf("monte_carlo robustness_score: %.3f\n", result.RobustnessScore)
	fmt.Printf("monte_carlo probability_of_ruin: %.3f\n", result.ProbabilityOfRuin)
	if result.MaxDrawdown != nil {
		fmt.Printf("monte_carlo max_drawdown median=%.3f p95=%.3f\n", result.MaxDrawdown.Median, result.MaxDrawdown.P95)
	}
}

func printMetrics(m backtest.Metrics) {
	fmt.Printf("symbols:        %s\n", strings.Join(m.SymbolsTested, ", "))
	fmt.Printf("total_trades:   %d\n", m.TotalTrades)
	fmt.Printf("sharpe_ratio:   %s\n", m.SharpeRatio)
	fmt.Printf("max_drawdown:   %s%%\n", m.MaxDrawdown)
	fmt.Printf("profit_factor:  %s\n", m.ProfitFactor)
	fmt.Printf("win_rate:       %s%%\n", m.WinRate)
	fmt.Printf("net_return:     %s%%\n", m.NetReturnPct)
}

func printComparison(c backtest.Comparison, colors bool) {
	printMetrics(c.Current)
	fmt.Println()

	switch c.Verdict {
	case backtest.VerdictPass:
		fmt.Println(colorize("PASS", "32", colors))
	case backtest.VerdictFail:
		fmt.Println(colorize("FAIL", "31", colors))
		for _, f := range c.Failures {
			fmt.Printf("  - %s\n", f)
		}
	case backtest.VerdictBaselineNotSet:
		fmt.Println(colorize("BASELINE_NOT_SET", "33", colors))
		fmt.Println("  run again with --establish-baseline to create one")
	}
}

func colorize(s, code string, enabled bool) string {
	if !enabled {
		return s
	}
	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, s)
}
