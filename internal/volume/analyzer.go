// Package volume computes per-bar volume_ratio, spread_ratio and
// close_position against a rolling N-bar mean (§4.2).
package volume

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// DefaultWindow is the rolling lookback (N=20) for the volume/spread
// means.
const DefaultWindow = 20

// Analyzer computes VolumeAnalysis for a bar sequence.
type Analyzer struct {
	window int
}

// NewAnalyzer creates an Analyzer with the given rolling window (use
// DefaultWindow if unsure).
func NewAnalyzer(window int) *Analyzer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Analyzer{window: window}
}

// Analyze computes one VolumeAnalysis per bar. The first `window` bars
// have nil VolumeRatio/SpreadRatio (§4.2: "until N bars are available,
// ratios are null"); ratios for bar i are measured against the mean of
// bars [i-window, i-1].
func (a *Analyzer) Analyze(bars []model.Bar) []model.VolumeAnalysis {
	out := make([]model.VolumeAnalysis, len(bars))
	for i, bar := range bars {
		out[i] = model.VolumeAnalysis{
			BarIndex:      i,
			ClosePosition: bar.ClosePosition(),
		}
		if i < a.window {
			continue
		}
		volMean := meanVolume(bars[i-a.window : i])
		spreadMean := meanSpread(bars[i-a.window : i])
		if volMean.IsZero() || spreadMean.IsZero() {
			continue
		}
		vr := bar.Volume.Div(volMean).Round(4)
		sr := bar.Spread().Div(spreadMean).Round(4)
		out[i].VolumeRatio = &vr
		out[i].SpreadRatio = &sr
	}
	return out
}

// AnalyzeOne computes the VolumeAnalysis for the last bar in history,
// given the preceding `window` bars as context. Used for real-time,
// per-bar ingestion.
func (a *Analyzer) AnalyzeOne(history []model.Bar) model.VolumeAnalysis {
	if len(history) == 0 {
		return model.VolumeAnalysis{}
	}
	last := history[len(history)-1]
	res := model.VolumeAnalysis{
		BarIndex:      len(history) - 1,
		ClosePosition: last.ClosePosition(),
	}
	if len(history)-1 < a.window {
		return res
	}
	prior := history[len(history)-1-a.window : len(history)-1]
	volMean := meanVolume(prior)
	spreadMean := meanSpread(prior)
	if volMean.IsZero() || spreadMean.IsZero() {
		return res
	}
	vr := last.Volume.Div(volMean).Round(4)
	sr := last.Spread().Div(spreadMean).Round(4)
	res.VolumeRatio = &vr
	res.SpreadRatio = &sr
	return res
}

func meanVolume(bars []model.Bar) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}

func meanSpread(bars []model.Bar) decimal.Decimal {
	sum := decimal.Zero
	for _, b := range bars {
		sum = sum.Add(b.Spread())
	}
	return sum.Div(decimal.NewFromInt(int64(len(bars))))
}
