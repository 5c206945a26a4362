// Package phase classifies a trading range's Wyckoff phase (A-E) from
// its detected events (§4.9). The classifier probes in reverse order
// (E before A) since later phases are more specific and should win
// over an earlier, weaker match.
package phase

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// PhaseBMinDurationBars is the FR14 cause-building gate: a Phase B
// range, measured from its first Secondary Test, allows trading only
// once its duration exceeds this many bars. A shorter Phase B is still
// classified Phase B, with trading not allowed.
const PhaseBMinDurationBars = 10

// Classifier derives a PhaseClassification from a range's events.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier { return &Classifier{} }

// Classify probes E, D, C, B, A in that order and returns the first
// phase whose preconditions hold. currentBarIndex, when non-nil, is
// the live bar index used to enforce the Phase B duration gate for
// real-time (not fully-closed-range) classification; pass nil for a
// fully historical range where rng.Duration already reflects the
// closed range.
func (c *Classifier) Classify(rng *model.TradingRange, events []model.Event, currentBarIndex *int) model.PhaseClassification {
	sc := latestOf(events, model.EventSellingClimax)
	ar := latestOf(events, model.EventAutomaticRally)
	st := allOf(events, model.EventSecondaryTest)
	spring := latestOf(events, model.EventSpring)
	sos := latestOf(events, model.EventSignOfStrength)
	lps := latestOf(events, model.EventLastPointOfSupport)
	utad := latestOf(events, model.EventUTAD)

	if result, ok := c.probeE(rng, events, sos, lps, utad); ok {
		return result
	}
	if result, ok := c.probeD(rng, events, sos, lps); ok {
		return result
	}
	if result, ok := c.probeC(rng, events, spring, utad); ok {
		return result
	}
	if result, ok := c.probeB(rng, events, sc, ar, st, currentBarIndex); ok {
		return result
	}
	if result, ok := c.probeA(rng, events, sc, ar); ok {
		return result
	}
	return model.PhaseClassification{
		RangeID:         rng.ID,
		Phase:           model.PhaseNone,
		Confidence:      decimal.Zero,
		TradingAllowed:  false,
		RejectionReason: "no qualifying events detected yet",
	}
}

// probeE: the range has a Jump level, its status is BREAKOUT, and an
// SOS or LPS (or, on the short side, a UTAD) has been detected. No
// price is checked here: a move beyond Jump or Creek is not looked at,
// and closes above Ice without a BREAKOUT status do not give Phase E.
// Trading
// is no longer allowed once the range has broken away — entries
// belong to the pattern-to-signal builder at the SOS/LPS stage, not
// here.
func (c *Classifier) probeE(rng *model.TradingRange, events []model.Event, sos, lps, utad *model.Event) (model.PhaseClassification, bool) {
	if rng.Jump == nil {
		return model.PhaseClassification{}, false
	}
	anchor := lps
	if anchor == nil {
		anchor = sos
	}
	if anchor != nil && rng.Status == model.RangeBREAKOUT {
		return model.PhaseClassification{
			RangeID: rng.ID, Phase: model.PhaseE, Confidence: decimal.NewFromInt(85),
			Events: events, TradingAllowed: false,
			RejectionReason: "range already broken out; phase E entries are not re-enterable",
			PhaseStartIndex: anchor.BarIndex, PhaseStartTime: anchor.Timestamp,
		}, true
	}
	if utad != nil && rng.Status == model.RangeBREAKOUT {
		return model.PhaseClassification{
			RangeID: rng.ID, Phase: model.PhaseE, Confidence: decimal.NewFromInt(85),
			Events: events, TradingAllowed: false,
			RejectionReason: "range already broken down after UTAD distribution",
			PhaseStartIndex: utad.BarIndex, PhaseStartTime: utad.Timestamp,
		}, true
	}
	return model.PhaseClassification{}, false
}

// probeD: SOS or LPS present, range not yet confirmed broken-out.
// Phase D is where the markup/markdown begins within the range and is
// the phase the signal builder actually trades from.
func (c *Classifier) probeD(rng *model.TradingRange, events []model.Event, sos, lps *model.Event) (model.PhaseClassification, bool) {
	anchor := lps
	if anchor == nil {
		anchor = sos
	}
	if anchor == nil {
		return model.PhaseClassification{}, false
	}
	confidence := anchor.Confidence
	if lps != nil {
		confidence = decimal.Max(confidence, decimal.NewFromInt(80))
	}
	return model.PhaseClassification{
		RangeID: rng.ID, Phase: model.PhaseD, Confidence: confidence,
		Events: events, TradingAllowed: true,
		PhaseStartIndex: anchor.BarIndex, PhaseStartTime: anchor.Timestamp,
	}, true
}

// probeC: Spring (accumulation) or UTAD (distribution) present — the
// decisive test of the range's extreme.
func (c *Classifier) probeC(rng *model.TradingRange, events []model.Event, spring, utad *model.Event) (model.PhaseClassification, bool) {
	anchor := spring
	if anchor == nil {
		anchor = utad
	}
	if anchor == nil {
		return model.PhaseClassification{}, false
	}
	return model.PhaseClassification{
		RangeID: rng.ID, Phase: model.PhaseC, Confidence: anchor.Confidence,
		Events: events, TradingAllowed: false,
		RejectionReason: "phase C test must be followed by a confirming SOS/LPS before entry",
		PhaseStartIndex:  anchor.BarIndex, PhaseStartTime: anchor.Timestamp,
	}, true
}

// probeB: SC, AR and at least one ST present. The range is always
// classified Phase B once these exist — only duration and
// trading_allowed depend on the FR14 gate, measured from the first ST
// (not SC): duration = current_bar - first_ST, and trading is allowed
// once that duration exceeds PhaseBMinDurationBars.
func (c *Classifier) probeB(rng *model.TradingRange, events []model.Event, sc, ar *model.Event, st []model.Event, currentBarIndex *int) (model.PhaseClassification, bool) {
	if sc == nil || ar == nil || len(st) == 0 {
		return model.PhaseClassification{}, false
	}
	firstST := earliestOf(st)

	durationBars := rng.Duration
	if currentBarIndex != nil {
		durationBars = *currentBarIndex - firstST.BarIndex
	}
	tradingAllowed := durationBars > PhaseBMinDurationBars

	reason := "phase B builds the cause; no entries until phase C/D"
	if !tradingAllowed {
		reason = "cause still building; phase B duration gate not yet cleared"
	}

	lastST := st[len(st)-1]
	confidence := decimal.Min(decimal.NewFromInt(100), sc.Confidence.Add(lastST.Confidence).Div(decimal.NewFromInt(2)))
	return model.PhaseClassification{
		RangeID: rng.ID, Phase: model.PhaseB, Confidence: confidence,
		Events: events, TradingAllowed: tradingAllowed,
		RejectionReason: reason,
		DurationBars:    durationBars,
		PhaseStartIndex: sc.BarIndex, PhaseStartTime: sc.Timestamp,
	}, true
}

// probeA: only SC (and, optionally, AR) present — the prior trend has
// just been arrested.
func (c *Classifier) probeA(rng *model.TradingRange, events []model.Event, sc, ar *model.Event) (model.PhaseClassification, bool) {
	if sc == nil {
		return model.PhaseClassification{}, false
	}
	confidence := sc.Confidence
	if ar != nil {
		confidence = decimal.Max(confidence, ar.Confidence)
	}
	return model.PhaseClassification{
		RangeID: rng.ID, Phase: model.PhaseA, Confidence: confidence,
		Events: events, TradingAllowed: false,
		RejectionReason: "phase A only arrests the prior trend; no cause built yet",
		PhaseStartIndex: sc.BarIndex, PhaseStartTime: sc.Timestamp,
	}, true
}

func latestOf(events []model.Event, t model.EventType) *model.Event {
	var latest *model.Event
	for i := range events {
		if events[i].Type == t && !events[i].Invalidated {
			if latest == nil || events[i].BarIndex > latest.BarIndex {
				latest = &events[i]
			}
		}
	}
	return latest
}

func earliestOf(events []model.Event) model.Event {
	earliest := events[0]
	for _, e := range events[1:] {
		if e.BarIndex < earliest.BarIndex {
			earliest = e
		}
	}
	return earliest
}

func allOf(events []model.Event, t model.EventType) []model.Event {
	var out []model.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
