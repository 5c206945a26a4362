package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

// PriceSource supplies the paper adapter with a fill price for market
// orders; a real deployment would wire this to the live bar feed.
type PriceSource interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
}

// Paper is an in-memory broker adapter that fills every order
// immediately, at its limit price when one is set and otherwise at the
// PriceSource's current price, for backtesting and dry-run
// operation. Orders are idempotent on ClientOrderID: resubmitting the
// same client order id returns the original order rather than filling
// twice.
type Paper struct {
	logger *zap.Logger
	prices PriceSource

	mu         sync.Mutex
	orders     map[string]Order
	byClientID map[string]string
	connected  bool
}

// NewPaper creates a Paper adapter.
func NewPaper(logger *zap.Logger, prices PriceSource) *Paper {
	return &Paper{
		logger:     logger.Named("broker-paper"),
		prices:     prices,
		orders:     make(map[string]Order),
		byClientID: make(map[string]string),
	}
}

func (p *Paper) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *Paper) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *Paper) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return Order{}, model.NewDomainError(model.ErrKindBrokerUnavailable, "adapter not connected", nil)
	}

	if existingID, ok := p.byClientID[req.ClientOrderID]; ok {
		return p.orders[existingID], nil
	}

	price := req.LimitPrice
	if price.IsZero() {
		last, ok := p.prices.LastPrice(req.Symbol)
		if !ok {
			return Order{}, model.NewDomainError(model.ErrKindBrokerUnavailable, "no price available for symbol", map[string]any{
				"symbol": req.Symbol,
			})
		}
		price = last
	}

	now := time.Now()
	order := Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Shares:        req.Shares,
		FilledShares:  req.Shares,
		FilledPrice:   price,
		Status:        OrderStatusFilled,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	p.orders[order.ID] = order
	p.byClientID[req.ClientOrderID] = order.ID
	p.logger.Info("paper order filled", zap.String("order_id", order.ID), zap.String("symbol", req.Symbol))
	return order, nil
}

func (p *Paper) PlaceOCO(ctx context.Context, req OCORequest) (Order, error) {
	return p.PlaceOrder(ctx, req.Entry)
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return model.NewDomainError(model.ErrKindBrokerRejected, "unknown order id", map[string]any{"order_id": orderID})
	}
	if order.Status == OrderStatusFilled {
		return fmt.Errorf("order %s already filled, cannot cancel", orderID)
	}
	order.Status = OrderStatusCanceled
	order.UpdatedAt = time.Now()
	p.orders[orderID] = order
	return nil
}

func (p *Paper) GetOrderStatus(ctx context.Context, orderID string) (Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.orders[orderID]
	if !ok {
		return Order{}, model.NewDomainError(model.ErrKindBrokerRejected, "unknown order id", map[string]any{"order_id": orderID})
	}
	return order, nil
}

func (p *Paper) GetOpenOrders(ctx context.Context) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var open []Order
	for _, o := range p.orders {
		if o.Status == OrderStatusNew || o.Status == OrderStatusPartial {
			open = append(open, o)
		}
	}
	return open, nil
}

func (p *Paper) CloseAllPositions(ctx context.Context) error {
	return nil
}
