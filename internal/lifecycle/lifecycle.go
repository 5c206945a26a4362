// Package lifecycle manages an open position through its exit rule:
// invalidation checks, T1/T2/T3 partial exits and trailing-stop
// ratchets (§4.14). Broker calls are committed atomically with the
// position mutation — a broker rejection rolls the position back to
// its pre-attempt state rather than leaving shares/stop partially
// updated.
package lifecycle

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

// Broker is the narrow execution contract lifecycle needs: submit a
// partial or full exit and report the fill.
type Broker interface {
	ExecuteExit(ctx context.Context, position model.Position, shares decimal.Decimal, kind string) (model.TradeRecord, error)
}

// Manager drives a position through its exit rule.
type Manager struct {
	logger *zap.Logger
	broker Broker
}

// NewManager creates a Manager.
func NewManager(logger *zap.Logger, broker Broker) *Manager {
	return &Manager{logger: logger.Named("position-lifecycle"), broker: broker}
}

// CheckInvalidation reports whether the position's originating
// pattern has been invalidated by a close beyond its structural
// floor/ceiling (Spring low, Creek, UTAD high), per §4.14.
func (m *Manager) CheckInvalidation(pos model.Position, rule model.ExitRule, bar model.Bar) (bool, string) {
	switch pos.Direction {
	case model.DirectionLong:
		floor := rule.CreekLevel
		if !rule.SpringLow.IsZero() && (floor.IsZero() || rule.SpringLow.LessThan(floor)) {
			floor = rule.SpringLow
		}
		if !floor.IsZero() && bar.Close.LessThan(floor) {
			return true, "close broke below the campaign's structural floor"
		}
	case model.DirectionShort:
		if !rule.UTADHigh.IsZero() && bar.Close.GreaterThan(rule.UTADHigh) {
			return true, "close broke above the UTAD high, distribution thesis invalidated"
		}
	}
	return false, ""
}

// EvaluateExits checks T1/T2/T3 against the current bar and executes
// whichever partial exits newly qualify, in T1->T2->T3 order. Each
// exit is committed to the broker before the position's share count
// is mutated; a broker error for one stage stops further stages this
// call but does not roll back stages that already succeeded.
func (m *Manager) EvaluateExits(ctx context.Context, pos *model.Position, rule model.ExitRule, bar model.Bar) ([]model.TradeRecord, error) {
	var records []model.TradeRecord

	stages := []struct {
		target decimal.Decimal
		pct    decimal.Decimal
		kind   string
	}{
		{rule.T1Price, rule.T1ExitPct, "t1_exit"},
		{rule.T2Price, rule.T2ExitPct, "t2_exit"},
		{rule.T3Price, rule.T3ExitPct, "t3_exit"},
	}

	for _, stage := range stages {
		if stage.target.IsZero() || stage.pct.IsZero() {
			continue
		}
		if !targetHit(pos.Direction, bar, stage.target) {
			continue
		}

		exitShares := pos.Shares.Mul(stage.pct).Div(decimal.NewFromInt(100)).Round(6)
		if exitShares.IsZero() {
			continue
		}

		record, err := m.broker.ExecuteExit(ctx, *pos, exitShares, stage.kind)
		if err != nil {
			m.logger.Error("partial exit rejected by broker, leaving position state unchanged",
				zap.String("position_id", pos.ID), zap.String("kind", stage.kind), zap.Error(err))
			return records, model.NewDomainError(model.ErrKindBrokerRejected, "broker rejected partial exit", map[string]any{
				"position_id": pos.ID, "kind": stage.kind,
			})
		}

		pos.Shares = pos.Shares.Sub(record.Shares)
		records = append(records, record)

		if stage.kind == "t1_exit" && rule.TrailToBreakevenOnT1 {
			if err := applyBreakevenTrail(pos, pos.EntryPrice); err != nil {
				m.logger.Warn("skipping breakeven trail after T1", zap.Error(err))
			}
		}
		if stage.kind == "t2_exit" && rule.TrailToT1OnT2 {
			if err := applyTrail(pos, rule.T1Price); err != nil {
				m.logger.Warn("skipping T1 trail after T2", zap.Error(err))
			}
		}
	}

	if pos.Shares.LessThanOrEqual(decimal.Zero) {
		pos.Status = model.PositionTargetHit
	}
	return records, nil
}

// TrailStop moves a position's stop using the direction-aware
// invariant from model.Position.CanTrailStopTo, rejecting any
// proposal that would loosen risk.
func (m *Manager) TrailStop(pos *model.Position, newStop decimal.Decimal) error {
	if err := pos.CanTrailStopTo(newStop); err != nil {
		return err
	}
	pos.StopLoss = newStop
	return nil
}

func applyTrail(pos *model.Position, newStop decimal.Decimal) error {
	if err := pos.CanTrailStopTo(newStop); err != nil {
		return err
	}
	pos.StopLoss = newStop
	return nil
}

func applyBreakevenTrail(pos *model.Position, newStop decimal.Decimal) error {
	if err := pos.CanTrailStopToBreakeven(newStop); err != nil {
		return err
	}
	pos.StopLoss = newStop
	return nil
}

func targetHit(direction model.Direction, bar model.Bar, target decimal.Decimal) bool {
	switch direction {
	case model.DirectionLong:
		return bar.High.GreaterThanOrEqual(target)
	case model.DirectionShort:
		return bar.Low.LessThanOrEqual(target)
	}
	return false
}

// CloseOnStop marks a position STOPPED when the current bar breaches
// its stop, recording the realized exit.
func (m *Manager) CloseOnStop(ctx context.Context, pos *model.Position, bar model.Bar) (*model.TradeRecord, error) {
	stopped := false
	switch pos.Direction {
	case model.DirectionLong:
		stopped = bar.Low.LessThanOrEqual(pos.StopLoss)
	case model.DirectionShort:
		stopped = bar.High.GreaterThanOrEqual(pos.StopLoss)
	}
	if !stopped {
		return nil, nil
	}
	record, err := m.broker.ExecuteExit(ctx, *pos, pos.Shares, "stop_exit")
	if err != nil {
		return nil, model.NewDomainError(model.ErrKindBrokerRejected, "broker rejected stop exit", map[string]any{
			"position_id": pos.ID,
		})
	}
	pos.Shares = decimal.Zero
	pos.Status = model.PositionStopped
	pos.ExitPrice = record.Price
	return &record, nil
}
