// Package sizing computes a Kelly-criterion-derived position size
// recommendation from a run's closed-trade statistics. It is a
// reporting aid for cmd/regression (§10): it never overrides the
// Allocator's fixed per-trade/portfolio-heat caps (§4.12), which
// remain the only caps a live signal is actually sized and validated
// against.
package sizing

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionSizer accumulates trade results and derives Kelly-based
// sizing statistics from them.
type PositionSizer struct {
	logger *zap.Logger
	config *SizingConfig

	mu           sync.RWMutex
	tradeHistory []*TradeResult
}

// SizingConfig configures position sizing.
type SizingConfig struct {
	KellyFraction  float64 // Fraction of full Kelly to recommend (default 0.25)
	LookbackTrades int     // Trades retained for statistics
}

// DefaultSizingConfig returns a conservative quarter-Kelly config.
func DefaultSizingConfig() *SizingConfig {
	return &SizingConfig{
		KellyFraction:  0.25,
		LookbackTrades: 200,
	}
}

// TradeResult is one historical trade outcome.
type TradeResult struct {
	Symbol    string
	ReturnPct float64
	IsWin     bool
}

// NewPositionSizer creates a PositionSizer.
func NewPositionSizer(logger *zap.Logger, config *SizingConfig) *PositionSizer {
	if config == nil {
		config = DefaultSizingConfig()
	}
	return &PositionSizer{
		logger:       logger,
		config:       config,
		tradeHistory: make([]*TradeResult, 0, config.LookbackTrades),
	}
}

// AddTradeResult records a trade outcome for the running statistics.
func (ps *PositionSizer) AddTradeResult(result *TradeResult) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.tradeHistory = append(ps.tradeHistory, result)
	if len(ps.tradeHistory) > ps.config.LookbackTrades {
		ps.tradeHistory = ps.tradeHistory[len(ps.tradeHistory)-ps.config.LookbackTrades:]
	}
}

// TradeStatistics summarizes the recorded trade history.
type TradeStatistics struct {
	TotalTrades      int             `json:"total_trades"`
	Wins             int             `json:"wins"`
	Losses           int             `json:"losses"`
	WinRate          decimal.Decimal `json:"win_rate"`
	AvgWin           decimal.Decimal `json:"avg_win"`
	AvgLoss          decimal.Decimal `json:"avg_loss"`
	KellyOptimal     decimal.Decimal `json:"kelly_optimal"`
	KellyRecommended decimal.Decimal `json:"kelly_recommended"`
}

// GetTradeStatistics derives win rate, average win/loss and the Kelly
// recommendation from the recorded trade history.
func (ps *PositionSizer) GetTradeStatistics() TradeStatistics {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var stats TradeStatistics
	stats.TotalTrades = len(ps.tradeHistory)
	if stats.TotalTrades == 0 {
		return stats
	}

	var sumWins, sumLosses float64
	for _, trade := range ps.tradeHistory {
		if trade.IsWin {
			stats.Wins++
			sumWins += trade.ReturnPct
		} else {
			stats.Losses++
			sumLosses += math.Abs(trade.ReturnPct)
		}
	}

	winRate := float64(stats.Wins) / float64(stats.TotalTrades)
	stats.WinRate = decimal.NewFromFloat(winRate * 100).Round(2)

	avgWin := 0.0
	if stats.Wins > 0 {
		avgWin = sumWins / float64(stats.Wins)
	}
	avgLoss := 0.0
	if stats.Losses > 0 {
		avgLoss = sumLosses / float64(stats.Losses)
	}
	stats.AvgWin = decimal.NewFromFloat(avgWin).Round(3)
	stats.AvgLoss = decimal.NewFromFloat(avgLoss).Round(3)

	kelly := ps.calculateKelly(winRate, avgWin, avgLoss)
	stats.KellyOptimal = decimal.NewFromFloat(kelly * 100).Round(2)
	stats.KellyRecommended = decimal.NewFromFloat(kelly * ps.config.KellyFraction * 100).Round(2)

	return stats
}

// calculateKelly implements the Kelly criterion: f* = p - q/b, where p
// is win probability, q = 1-p, and b is the win/loss payoff ratio.
func (ps *PositionSizer) calculateKelly(winRate, avgWin, avgLoss float64) float64 {
	if winRate <= 0 || winRate >= 1 || avgLoss == 0 {
		return 0
	}

	p := winRate
	q := 1 - p
	b := avgWin / avgLoss
	if b <= 0 {
		return 0
	}

	kelly := p - q/b
	if kelly < 0 {
		return 0
	}
	if kelly > 1 {
		kelly = 1
	}
	return kelly
}
