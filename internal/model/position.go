package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is a position's lifecycle status (§3).
type PositionStatus string

const (
	PositionOpen      PositionStatus = "OPEN"
	PositionClosed    PositionStatus = "CLOSED"
	PositionStopped   PositionStatus = "STOPPED"
	PositionTargetHit PositionStatus = "TARGET_HIT"
	PositionExpired   PositionStatus = "EXPIRED"
)

// Position is an open or closed trade tracked through T1/T2/T3/stop
// exits (§3, §4.14).
type Position struct {
	ID            string
	CampaignID    string
	SignalID      string
	Symbol        string
	Direction     Direction
	EntryDate     time.Time
	EntryPrice    decimal.Decimal
	Shares        decimal.Decimal
	StopLoss      decimal.Decimal
	CurrentPrice  decimal.Decimal
	CurrentPnL    decimal.Decimal
	Status        PositionStatus
	ClosedDate    *time.Time
	ExitPrice     decimal.Decimal
	RealizedPnL   decimal.Decimal
}

// DollarsAtRisk computes the position's current dollar risk, per the
// direction-aware formula in §3: for LONG, (current-stop)*shares when
// current>=stop; for SHORT, (stop-current)*shares when stop>=current.
// Returns zero when the position is already beyond its stop (the risk
// is realized, not "at risk").
func (p Position) DollarsAtRisk() decimal.Decimal {
	switch p.Direction {
	case DirectionLong:
		if p.CurrentPrice.LessThan(p.StopLoss) {
			return decimal.Zero
		}
		return p.CurrentPrice.Sub(p.StopLoss).Mul(p.Shares)
	case DirectionShort:
		if p.StopLoss.LessThan(p.CurrentPrice) {
			return decimal.Zero
		}
		return p.StopLoss.Sub(p.CurrentPrice).Mul(p.Shares)
	}
	return decimal.Zero
}

// CanTrailStopTo checks the direction-aware stop-edit invariant from
// §4.14: LONG stops may only trail up and must stay below entry; SHORT
// stops may only trail down and must stay above entry.
func (p Position) CanTrailStopTo(newStop decimal.Decimal) error {
	switch p.Direction {
	case DirectionLong:
		if newStop.LessThan(p.StopLoss) {
			return NewDomainError(ErrKindValidationFail, "LONG stop may only trail up", map[string]any{
				"current": p.StopLoss, "proposed": newStop,
			})
		}
		if !newStop.LessThan(p.EntryPrice) {
			return NewDomainError(ErrKindValidationFail, "LONG stop must remain below entry", map[string]any{
				"entry": p.EntryPrice, "proposed": newStop,
			})
		}
	case DirectionShort:
		if newStop.GreaterThan(p.StopLoss) {
			return NewDomainError(ErrKindValidationFail, "SHORT stop may only trail down", map[string]any{
				"current": p.StopLoss, "proposed": newStop,
			})
		}
		if !newStop.GreaterThan(p.EntryPrice) {
			return NewDomainError(ErrKindValidationFail, "SHORT stop must remain above entry", map[string]any{
				"entry": p.EntryPrice, "proposed": newStop,
			})
		}
	}
	return nil
}

// CanTrailStopToBreakeven checks the same up-only (LONG) / down-only
// (SHORT) trail direction as CanTrailStopTo, but allows the new stop
// to land exactly on entry — the one case (§4.14 trail_to_breakeven_on_t1)
// where the stop is permitted to meet, not just approach, entry.
func (p Position) CanTrailStopToBreakeven(newStop decimal.Decimal) error {
	switch p.Direction {
	case DirectionLong:
		if newStop.LessThan(p.StopLoss) {
			return NewDomainError(ErrKindValidationFail, "LONG stop may only trail up", map[string]any{
				"current": p.StopLoss, "proposed": newStop,
			})
		}
		if newStop.GreaterThan(p.EntryPrice) {
			return NewDomainError(ErrKindValidationFail, "LONG breakeven stop must not exceed entry", map[string]any{
				"entry": p.EntryPrice, "proposed": newStop,
			})
		}
	case DirectionShort:
		if newStop.GreaterThan(p.StopLoss) {
			return NewDomainError(ErrKindValidationFail, "SHORT stop may only trail down", map[string]any{
				"current": p.StopLoss, "proposed": newStop,
			})
		}
		if newStop.LessThan(p.EntryPrice) {
			return NewDomainError(ErrKindValidationFail, "SHORT breakeven stop must not undercut entry", map[string]any{
				"entry": p.EntryPrice, "proposed": newStop,
			})
		}
	}
	return nil
}

// TradeRecord is a single persisted fill/partial-exit record,
// committed atomically with a position's share-count mutation (§4.14,
// §8 scenario 6).
type TradeRecord struct {
	ID         string
	PositionID string
	Shares     decimal.Decimal
	Price      decimal.Decimal
	ExecutedAt time.Time
	Kind       string // "entry", "t1_exit", "t2_exit", "t3_exit", "stop_exit", "invalidation_exit"
}

// QueueEntryStatus is a signal approval queue entry's status (§3).
type QueueEntryStatus string

const (
	QueuePending  QueueEntryStatus = "PENDING"
	QueueApproved QueueEntryStatus = "APPROVED"
	QueueRejected QueueEntryStatus = "REJECTED"
	QueueExpired  QueueEntryStatus = "EXPIRED"
)

// SignalQueueEntry is a pending-approval wrapper around a TradeSignal
// snapshot (§3, §4.13). Seq increments on every status transition so
// consumers (e.g. the WebSocket fan-out) can request only what
// changed since their last-seen sequence number.
type SignalQueueEntry struct {
	ID              string
	SignalID        string
	UserID          string
	Status          QueueEntryStatus
	SubmittedAt     time.Time
	ExpiresAt       time.Time
	ApprovedAt      *time.Time
	RejectionReason string
	SignalSnapshot  TradeSignal
	Seq             int64
}

// IsExpired reports whether the entry's expiry has passed as of now.
func (e SignalQueueEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
