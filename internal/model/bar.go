// Package model defines the shared domain entities of the Wyckoff signal
// engine: bars, pivots, clusters, ranges, levels, zones, events, phase
// classifications, signals, campaigns, positions, exit rules, and queue
// entries.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetClass distinguishes instrument families for asset-specific
// detector thresholds (forex volume multipliers differ from stocks).
type AssetClass string

const (
	AssetClassStock  AssetClass = "STOCK"
	AssetClassForex  AssetClass = "FOREX"
	AssetClassCrypto AssetClass = "CRYPTO"
)

// Timeframe mirrors the teacher's pkg/types.Timeframe enum.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Bar is an OHLCV candle. Immutable once admitted to a BarWindow.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Spread returns high - low.
func (b Bar) Spread() decimal.Decimal {
	return b.High.Sub(b.Low)
}

// ClosePosition returns (close-low)/(high-low), clamped to [0,1]. Returns
// 0.5 for a zero-range bar (high == low) to avoid division by zero.
func (b Bar) ClosePosition() decimal.Decimal {
	rng := b.High.Sub(b.Low)
	if rng.IsZero() {
		return decimal.NewFromFloat(0.5)
	}
	cp := b.Close.Sub(b.Low).Div(rng)
	if cp.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if cp.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return cp
}

// Validate checks the OHLCV invariants from the data model: low <=
// min(open,close) <= max(open,close) <= high, volume >= 0.
func (b Bar) Validate() error {
	minOC := decimal.Min(b.Open, b.Close)
	maxOC := decimal.Max(b.Open, b.Close)
	if b.Low.GreaterThan(minOC) || minOC.GreaterThan(maxOC) || maxOC.GreaterThan(b.High) {
		return NewDomainError(ErrKindInvalidBar, "bar fails low<=min(o,c)<=max(o,c)<=high invariant", map[string]any{
			"symbol": b.Symbol, "low": b.Low, "high": b.High, "open": b.Open, "close": b.Close,
		})
	}
	if b.Volume.LessThan(decimal.Zero) {
		return NewDomainError(ErrKindInvalidBar, "bar has negative volume", map[string]any{
			"symbol": b.Symbol, "volume": b.Volume,
		})
	}
	return nil
}

// VolumeAnalysis carries the per-bar derived ratios. Ratios are nil
// until N prior bars are available (§4.2); downstream detectors must
// treat a nil analysis as non-triggering.
type VolumeAnalysis struct {
	BarIndex      int
	VolumeRatio   *decimal.Decimal `json:"volumeRatio,omitempty"`
	SpreadRatio   *decimal.Decimal `json:"spreadRatio,omitempty"`
	ClosePosition decimal.Decimal  `json:"closePosition"`
}

// Ready reports whether this analysis has the rolling-mean ratios
// populated (i.e. >=N prior bars were available).
func (v VolumeAnalysis) Ready() bool {
	return v.VolumeRatio != nil && v.SpreadRatio != nil
}
