package wyckoffevents

import (
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// EntryDecision names the event the signal builder should enter on
// once both SOS and (possibly) LPS are on the table.
type EntryDecision struct {
	Pattern model.EventType
	Event   model.Event
	Reason  string
}

// sosWaitForLPSBars and sosDirectEntryMinConfidence/VolumeRatio
// implement the §4.8 entry-preference hierarchy: a trader normally
// waits for the LPS backup-to-the-shelf after SOS, since it offers a
// tighter stop; but a sufficiently strong SOS taken alone is allowed
// once the wait window elapses without an LPS.
const sosWaitForLPSBars = 10

var (
	sosDirectEntryMinConfidence = decimal.NewFromInt(80)
	sosDirectEntryMinVolRatio   = decimal.NewFromFloat(2.0)
)

// ResolveEntryPreference decides, given a SOS event, its materialized
// LPS successor (if any) and the current bar index, whether the
// pattern-to-signal builder should build off the LPS or the SOS, or
// defer (not yet decidable).
//
// Rules (§4.8):
//  1. If an LPS following this SOS exists, it always wins — tighter
//     stop, better R-multiple.
//  2. If no LPS exists yet and fewer than sosWaitForLPSBars have
//     elapsed since SOS, defer (return nil) — still waiting.
//  3. If no LPS exists and the wait window has elapsed, allow direct
//     SOS entry only when SOS confidence>=80 and its volume_ratio>=2.0;
//     otherwise the pattern is dropped (no signal).
func ResolveEntryPreference(sos model.Event, lps *model.Event, currentBarIndex int) (*EntryDecision, bool) {
	if lps != nil {
		return &EntryDecision{Pattern: model.EventLastPointOfSupport, Event: *lps, Reason: "lps follows sos"}, true
	}

	elapsed := currentBarIndex - sos.BarIndex
	if elapsed < sosWaitForLPSBars {
		return nil, false
	}

	volRatio, ok := sos.Fingerprint["volume_ratio"]
	if !ok {
		return nil, true
	}
	if sos.Confidence.GreaterThanOrEqual(sosDirectEntryMinConfidence) && volRatio.GreaterThanOrEqual(sosDirectEntryMinVolRatio) {
		return &EntryDecision{Pattern: model.EventSignOfStrength, Event: sos, Reason: "lps did not materialize within wait window, sos strong enough alone"}, true
	}
	return nil, true
}
