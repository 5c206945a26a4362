package lifecycle_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/lifecycle"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

type stubBroker struct {
	fail bool
}

func (b stubBroker) ExecuteExit(_ context.Context, pos model.Position, shares decimal.Decimal, kind string) (model.TradeRecord, error) {
	if b.fail {
		return model.TradeRecord{}, errors.New("broker unavailable")
	}
	return model.TradeRecord{ID: "tr-1", PositionID: pos.ID, Shares: shares, Price: pos.CurrentPrice, Kind: kind}, nil
}

func TestCheckInvalidation_LongBreaksCreek(t *testing.T) {
	m := lifecycle.NewManager(zap.NewNop(), stubBroker{})
	pos := model.Position{Direction: model.DirectionLong}
	rule := model.ExitRule{CreekLevel: decimal.NewFromInt(100)}

	invalidated, _ := m.CheckInvalidation(pos, rule, model.Bar{Close: decimal.NewFromInt(95)})
	if !invalidated {
		t.Error("expected invalidation on a close below Creek")
	}

	invalidated, _ = m.CheckInvalidation(pos, rule, model.Bar{Close: decimal.NewFromInt(105)})
	if invalidated {
		t.Error("expected no invalidation above Creek")
	}
}

func TestEvaluateExits_T1PartialExitTrailsToBreakeven(t *testing.T) {
	m := lifecycle.NewManager(zap.NewNop(), stubBroker{})
	pos := &model.Position{
		ID: "p1", Direction: model.DirectionLong, Shares: decimal.NewFromInt(100),
		EntryPrice: decimal.NewFromInt(100), StopLoss: decimal.NewFromInt(95), CurrentPrice: decimal.NewFromInt(110),
	}
	rule := model.ExitRule{
		T1Price: decimal.NewFromInt(108), T1ExitPct: decimal.NewFromInt(50),
		T2Price: decimal.NewFromInt(115), T2ExitPct: decimal.NewFromInt(30),
		T3Price: decimal.NewFromInt(120), T3ExitPct: decimal.NewFromInt(20),
		TrailToBreakevenOnT1: true,
	}
	bar := model.Bar{High: decimal.NewFromInt(110), Low: decimal.NewFromInt(99)}

	records, err := m.EvaluateExits(context.Background(), pos, rule, bar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly the T1 exit to fire, got %d records", len(records))
	}
	if !pos.Shares.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected 50 shares remaining after a 50%% T1 exit, got %s", pos.Shares)
	}
	if !pos.StopLoss.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected stop trailed to breakeven (100), got %s", pos.StopLoss)
	}
}

func TestEvaluateExits_BrokerRejectionLeavesSharesUnchanged(t *testing.T) {
	m := lifecycle.NewManager(zap.NewNop(), stubBroker{fail: true})
	pos := &model.Position{
		ID: "p1", Direction: model.DirectionLong, Shares: decimal.NewFromInt(100),
		EntryPrice: decimal.NewFromInt(100), StopLoss: decimal.NewFromInt(95),
	}
	rule := model.ExitRule{T1Price: decimal.NewFromInt(105), T1ExitPct: decimal.NewFromInt(50)}
	bar := model.Bar{High: decimal.NewFromInt(110), Low: decimal.NewFromInt(99)}

	_, err := m.EvaluateExits(context.Background(), pos, rule, bar)
	if err == nil {
		t.Fatal("expected a broker-rejected error")
	}
	if !pos.Shares.Equal(decimal.NewFromInt(100)) {
		t.Errorf("shares must remain unchanged on broker rejection, got %s", pos.Shares)
	}
}
