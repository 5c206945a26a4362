package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

// AlpacaConfig points the adapter at Alpaca's (or a wire-compatible
// broker's) trading REST API.
type AlpacaConfig struct {
	BaseURL    string
	APIKeyID   string
	APISecret  string
	HTTPClient *http.Client
}

// alpacaOrderWire mirrors the subset of Alpaca's order JSON response
// this adapter consumes.
type alpacaOrderWire struct {
	ID             string    `json:"id"`
	ClientOrderID  string    `json:"client_order_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Qty            string    `json:"qty"`
	FilledQty      string    `json:"filled_qty"`
	FilledAvgPrice string    `json:"filled_avg_price"`
	Status         string    `json:"status"`
	SubmittedAt    time.Time `json:"submitted_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Alpaca is a REST adapter shaped after Alpaca's trading API. A mutex
// guards the connection state. Each failed Connect doubles a stored
// backoff delay (from alpacaMinBackoff, capped at alpacaMaxBackoff) and
// reports it in the returned error; a successful Connect resets it. The
// adapter does not retry or wait on its own: a failed call returns its
// error immediately.
type Alpaca struct {
	logger *zap.Logger
	cfg    AlpacaConfig

	reconnectMu sync.Mutex
	connected   bool
	backoff     time.Duration
}

const (
	alpacaMinBackoff = 500 * time.Millisecond
	alpacaMaxBackoff = 30 * time.Second
)

// NewAlpaca creates an Alpaca adapter.
func NewAlpaca(logger *zap.Logger, cfg AlpacaConfig) *Alpaca {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Alpaca{logger: logger.Named("broker-alpaca"), cfg: cfg, backoff: alpacaMinBackoff}
}

func (a *Alpaca) Connect(ctx context.Context) error {
	a.reconnectMu.Lock()
	defer a.reconnectMu.Unlock()

	_, err := a.do(ctx, http.MethodGet, "/v2/account", nil)
	if err != nil {
		a.backoff = nextBackoff(a.backoff)
		return model.NewDomainError(model.ErrKindBrokerUnavailable, "alpaca connect failed", map[string]any{
			"backoff_ms": a.backoff.Milliseconds(),
		})
	}
	a.connected = true
	a.backoff = alpacaMinBackoff
	return a.reconcileOnReconnect(ctx)
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > alpacaMaxBackoff {
		return alpacaMaxBackoff
	}
	return next
}

// reconcileOnReconnect pulls live open orders on reconnect and logs a
// warning for each one, with its order and client order ids, for manual
// review rather than guessing at the correct local state (§9). The
// adapter keeps no local order record, so it does not compare these
// against locally rejected orders. A failed lookup is ignored.
func (a *Alpaca) reconcileOnReconnect(ctx context.Context) error {
	open, err := a.GetOpenOrders(ctx)
	if err != nil {
		return nil
	}
	for _, o := range open {
		a.logger.Warn("reconciliation: broker reports an order not locally tracked as open",
			zap.String("order_id", o.ID), zap.String("client_order_id", o.ClientOrderID))
	}
	return nil
}

func (a *Alpaca) Disconnect(ctx context.Context) error {
	a.reconnectMu.Lock()
	defer a.reconnectMu.Unlock()
	a.connected = false
	return nil
}

func (a *Alpaca) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	body := map[string]any{
		"client_order_id": req.ClientOrderID,
		"symbol":          req.Symbol,
		"side":            string(req.Side),
		"qty":             req.Shares.String(),
		"type":            "market",
		"time_in_force":   "day",
	}
	if !req.LimitPrice.IsZero() {
		body["type"] = "limit"
		body["limit_price"] = req.LimitPrice.String()
	}
	raw, err := a.do(ctx, http.MethodPost, "/v2/orders", body)
	if err != nil {
		return Order{}, model.NewDomainError(model.ErrKindBrokerRejected, "alpaca order rejected", map[string]any{
			"symbol": req.Symbol, "client_order_id": req.ClientOrderID,
		})
	}
	return decodeOrder(raw)
}

func (a *Alpaca) PlaceOCO(ctx context.Context, req OCORequest) (Order, error) {
	body := map[string]any{
		"client_order_id": req.Entry.ClientOrderID,
		"symbol":          req.Entry.Symbol,
		"side":            string(req.Entry.Side),
		"qty":             req.Entry.Shares.String(),
		"type":            "market",
		"time_in_force":   "day",
		"order_class":     "bracket",
		"stop_loss":       map[string]string{"stop_price": req.StopPrice.String()},
		"take_profit":     map[string]string{"limit_price": req.TakeProfit.String()},
	}
	raw, err := a.do(ctx, http.MethodPost, "/v2/orders", body)
	if err != nil {
		return Order{}, model.NewDomainError(model.ErrKindBrokerRejected, "alpaca bracket order rejected", map[string]any{
			"symbol": req.Entry.Symbol,
		})
	}
	return decodeOrder(raw)
}

func (a *Alpaca) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.do(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil)
	return err
}

func (a *Alpaca) GetOrderStatus(ctx context.Context, orderID string) (Order, error) {
	raw, err := a.do(ctx, http.MethodGet, "/v2/orders/"+orderID, nil)
	if err != nil {
		return Order{}, err
	}
	return decodeOrder(raw)
}

func (a *Alpaca) GetOpenOrders(ctx context.Context) ([]Order, error) {
	raw, err := a.do(ctx, http.MethodGet, "/v2/orders?status=open", nil)
	if err != nil {
		return nil, err
	}
	var wire []alpacaOrderWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding open orders: %w", err)
	}
	orders := make([]Order, 0, len(wire))
	for _, w := range wire {
		o, err := wireToOrder(w)
		if err != nil {
			continue
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (a *Alpaca) CloseAllPositions(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodDelete, "/v2/positions", nil)
	return err
}

func (a *Alpaca) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("APCA-API-KEY-ID", a.cfg.APIKeyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.cfg.APISecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("alpaca %s %s: status %d: %s", method, path, resp.StatusCode, string(out))
	}
	return out, nil
}

func decodeOrder(raw []byte) (Order, error) {
	var w alpacaOrderWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Order{}, fmt.Errorf("decoding order: %w", err)
	}
	return wireToOrder(w)
}

func wireToOrder(w alpacaOrderWire) (Order, error) {
	shares, err := decimal.NewFromString(orDefault(w.Qty, "0"))
	if err != nil {
		return Order{}, err
	}
	filled, err := decimal.NewFromString(orDefault(w.FilledQty, "0"))
	if err != nil {
		return Order{}, err
	}
	price, err := decimal.NewFromString(orDefault(w.FilledAvgPrice, "0"))
	if err != nil {
		return Order{}, err
	}
	return Order{
		ID:            w.ID,
		ClientOrderID: w.ClientOrderID,
		Symbol:        w.Symbol,
		Side:          OrderSide(w.Side),
		Shares:        shares,
		FilledShares:  filled,
		FilledPrice:   price,
		Status:        OrderStatus(w.Status),
		SubmittedAt:   w.SubmittedAt,
		UpdatedAt:     w.UpdatedAt,
	}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
