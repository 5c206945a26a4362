// Package broker defines the execution adapter contract (§6) and
// provides a paper-trading adapter plus an Alpaca-shaped REST adapter.
// Both implement the Adapter contract for full order placement and
// cancellation; wrapped in a LifecycleBroker, either one also serves as
// a lifecycle.Broker for position exits.
package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// OrderSide mirrors the teacher's pkg/types.OrderSide string-enum
// convention.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus tracks a submitted order through the broker's lifecycle.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "new"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusPartial  OrderStatus = "partially_filled"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusRejected OrderStatus = "rejected"
)

// OrderRequest is one order submission. ClientOrderID is the
// idempotency key: resubmitting the same ClientOrderID against an
// adapter must not create a duplicate order.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Shares        decimal.Decimal
	LimitPrice    decimal.Decimal // zero means market order
}

// OCORequest places a bracket order: an entry plus a stop-loss and a
// take-profit leg, either of which cancels the other on fill.
type OCORequest struct {
	Entry      OrderRequest
	StopPrice  decimal.Decimal
	TakeProfit decimal.Decimal
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Shares        decimal.Decimal
	FilledShares  decimal.Decimal
	FilledPrice   decimal.Decimal
	Status        OrderStatus
	SubmittedAt   time.Time
	UpdatedAt     time.Time
}

// Adapter is the broker-agnostic execution contract (§6): connect,
// place single and OCO orders, cancel, poll status, list open orders,
// and flatten. ExecuteExit is implemented in terms of PlaceOrder, so
// any Adapter wrapped in a LifecycleBroker satisfies the lifecycle
// manager's narrower contract.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	PlaceOCO(ctx context.Context, req OCORequest) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrderStatus(ctx context.Context, orderID string) (Order, error)
	GetOpenOrders(ctx context.Context) ([]Order, error)
	CloseAllPositions(ctx context.Context) error
}

// ExecuteExit adapts any Adapter to lifecycle.Broker by submitting a
// market order sized to the requested exit shares.
func ExecuteExit(ctx context.Context, a Adapter, position model.Position, shares decimal.Decimal, kind string) (model.TradeRecord, error) {
	side := SideSell
	if position.Direction == model.DirectionShort {
		side = SideBuy
	}
	order, err := a.PlaceOrder(ctx, OrderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        position.Symbol,
		Side:          side,
		Shares:        shares,
	})
	if err != nil {
		return model.TradeRecord{}, model.NewDomainError(model.ErrKindBrokerRejected, "exit order rejected", map[string]any{
			"position_id": position.ID, "symbol": position.Symbol, "kind": kind,
		})
	}
	return model.TradeRecord{
		ID:         order.ID,
		PositionID: position.ID,
		Shares:     order.FilledShares,
		Price:      order.FilledPrice,
		ExecutedAt: order.UpdatedAt,
		Kind:       kind,
	}, nil
}

// LifecycleBroker wraps an Adapter so it satisfies lifecycle.Broker's
// single-method contract directly.
type LifecycleBroker struct {
	Adapter Adapter
}

// NewLifecycleBroker wraps a as a lifecycle.Broker.
func NewLifecycleBroker(a Adapter) LifecycleBroker {
	return LifecycleBroker{Adapter: a}
}

// ExecuteExit implements lifecycle.Broker.
func (b LifecycleBroker) ExecuteExit(ctx context.Context, position model.Position, shares decimal.Decimal, kind string) (model.TradeRecord, error) {
	return ExecuteExit(ctx, b.Adapter, position, shares, kind)
}
