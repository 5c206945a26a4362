package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType enumerates the seven canonical Wyckoff events (§3, §4.8).
type EventType string

const (
	EventSellingClimax      EventType = "SELLING_CLIMAX"
	EventAutomaticRally     EventType = "AUTOMATIC_RALLY"
	EventSecondaryTest      EventType = "SECONDARY_TEST"
	EventSpring             EventType = "SPRING"
	EventSignOfStrength     EventType = "SIGN_OF_STRENGTH"
	EventLastPointOfSupport EventType = "LAST_POINT_OF_SUPPORT"
	EventUTAD               EventType = "UPTHRUST_AFTER_DISTRIBUTION"
)

// Event is the common shape for every detected Wyckoff event. Per the
// cyclic-reference design note (§9), an Event never embeds its
// TradingRange or predecessor events — only opaque ID references.
type Event struct {
	Type             EventType
	RangeID          string
	BarIndex         int
	Timestamp        time.Time
	Confidence       decimal.Decimal // 0-100
	PredecessorIDs   []string        // IDs of events this one depends on, if any
	ID               string
	Fingerprint      map[string]decimal.Decimal // quantitative fingerprint fields
	QualityTier      string                     // e.g. IDEAL/GOOD/ACCEPTABLE for Spring
	TestNumber       int                        // for SecondaryTest: 1, 2, 3...
	Invalidated      bool
	InvalidatedAtIdx int
}

// Phase is the Wyckoff phase letter.
type Phase string

const (
	PhaseNone Phase = ""
	PhaseA    Phase = "A"
	PhaseB    Phase = "B"
	PhaseC    Phase = "C"
	PhaseD    Phase = "D"
	PhaseE    Phase = "E"
)

// PhaseClassification is the output of the Phase Classifier (§3, §4.9).
type PhaseClassification struct {
	RangeID          string
	Phase            Phase
	Confidence       decimal.Decimal
	DurationBars     int
	Events           []Event
	TradingAllowed   bool
	RejectionReason  string
	PhaseStartIndex  int
	PhaseStartTime   time.Time
}
