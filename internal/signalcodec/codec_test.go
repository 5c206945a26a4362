package signalcodec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/signalcodec"
)

func sampleSignal() model.TradeSignal {
	return model.TradeSignal{
		ID:            "sig-1",
		Symbol:        "AAPL",
		PatternType:   model.PatternSpring,
		Direction:     model.DirectionLong,
		EntryPrice:    decimal.NewFromFloat(123.45),
		StopLoss:      decimal.NewFromFloat(118.00),
		PrimaryTarget: decimal.NewFromFloat(138.00),
		RMultiple:     decimal.NewFromFloat(3.0),
		CreatedAt:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := sampleSignal()
	data, err := signalcodec.EncodeJSON(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"123.45"`) {
		t.Errorf("expected entry price encoded as a quoted decimal string, got %s", data)
	}

	decoded, err := signalcodec.DecodeJSON(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.EntryPrice.Equal(original.EntryPrice) {
		t.Errorf("expected entry price %s, got %s", original.EntryPrice, decoded.EntryPrice)
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("expected created_at %s, got %s", original.CreatedAt, decoded.CreatedAt)
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	original := sampleSignal()
	data, err := signalcodec.EncodeMsgpack(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := signalcodec.DecodeMsgpack(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Symbol != original.Symbol {
		t.Errorf("expected symbol %s, got %s", original.Symbol, decoded.Symbol)
	}
	if !decoded.PrimaryTarget.Equal(original.PrimaryTarget) {
		t.Errorf("expected primary target %s, got %s", original.PrimaryTarget, decoded.PrimaryTarget)
	}
}

func TestEncodeBatchJSON(t *testing.T) {
	signals := []model.TradeSignal{sampleSignal(), sampleSignal()}
	data, err := signalcodec.EncodeBatchJSON(signals)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(string(data), "[") {
		t.Errorf("expected a JSON array, got %s", data)
	}
}
