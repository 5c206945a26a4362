package broker_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/broker"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

type fixedPrices struct {
	price decimal.Decimal
}

func (f fixedPrices) LastPrice(symbol string) (decimal.Decimal, bool) {
	return f.price, true
}

func TestPaperPlaceOrderFillsAtPrice(t *testing.T) {
	p := broker.NewPaper(zap.NewNop(), fixedPrices{price: decimal.NewFromInt(100)})
	ctx := context.Background()
	if err := p.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	order, err := p.PlaceOrder(ctx, broker.OrderRequest{
		ClientOrderID: "c-1", Symbol: "AAPL", Side: broker.SideBuy, Shares: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != broker.OrderStatusFilled {
		t.Errorf("expected immediate fill, got %s", order.Status)
	}
	if !order.FilledPrice.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected fill at 100, got %s", order.FilledPrice)
	}
}

func TestPaperPlaceOrderIsIdempotentOnClientOrderID(t *testing.T) {
	p := broker.NewPaper(zap.NewNop(), fixedPrices{price: decimal.NewFromInt(50)})
	ctx := context.Background()
	_ = p.Connect(ctx)

	first, err := p.PlaceOrder(ctx, broker.OrderRequest{ClientOrderID: "dup", Symbol: "MSFT", Side: broker.SideBuy, Shares: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.PlaceOrder(ctx, broker.OrderRequest{ClientOrderID: "dup", Symbol: "MSFT", Side: broker.SideBuy, Shares: decimal.NewFromInt(5)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Error("expected the same order id for a resubmitted client order id")
	}
}

func TestPaperPlaceOrderRejectsWithoutConnect(t *testing.T) {
	p := broker.NewPaper(zap.NewNop(), fixedPrices{price: decimal.NewFromInt(100)})
	_, err := p.PlaceOrder(context.Background(), broker.OrderRequest{ClientOrderID: "c-2", Symbol: "AAPL", Side: broker.SideBuy, Shares: decimal.NewFromInt(1)})
	if err == nil {
		t.Fatal("expected an error placing an order before connecting")
	}
}

func TestExecuteExitSellsLongPositions(t *testing.T) {
	p := broker.NewPaper(zap.NewNop(), fixedPrices{price: decimal.NewFromInt(120)})
	ctx := context.Background()
	_ = p.Connect(ctx)

	pos := model.Position{ID: "p1", Symbol: "AAPL", Direction: model.DirectionLong}
	record, err := broker.ExecuteExit(ctx, p, pos, decimal.NewFromInt(10), "t1_exit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.PositionID != "p1" {
		t.Errorf("expected the trade record tied to the position, got %s", record.PositionID)
	}
	if !record.Price.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected exit fill at 120, got %s", record.Price)
	}
}

func TestCancelOrderRejectsAlreadyFilled(t *testing.T) {
	p := broker.NewPaper(zap.NewNop(), fixedPrices{price: decimal.NewFromInt(10)})
	ctx := context.Background()
	_ = p.Connect(ctx)
	order, _ := p.PlaceOrder(ctx, broker.OrderRequest{ClientOrderID: "c-3", Symbol: "AAPL", Side: broker.SideBuy, Shares: decimal.NewFromInt(1)})

	if err := p.CancelOrder(ctx, order.ID); err == nil {
		t.Error("expected cancel to reject an already-filled order")
	}
}
