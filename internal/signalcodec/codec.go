// Package signalcodec serializes TradeSignal for wire transport: JSON
// for the HTTP/WebSocket surface (decimals as strings via
// shopspring/decimal's default quoted encoding, timestamps via Go's
// RFC3339/ISO8601 time.Time encoding) and MessagePack for the
// compact binary form referenced by §6.
package signalcodec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// EncodeJSON renders a signal as JSON.
func EncodeJSON(signal model.TradeSignal) ([]byte, error) {
	out, err := json.Marshal(signal)
	if err != nil {
		return nil, fmt.Errorf("encoding signal as json: %w", err)
	}
	return out, nil
}

// DecodeJSON parses a JSON-encoded signal.
func DecodeJSON(data []byte) (model.TradeSignal, error) {
	var signal model.TradeSignal
	if err := json.Unmarshal(data, &signal); err != nil {
		return model.TradeSignal{}, fmt.Errorf("decoding signal from json: %w", err)
	}
	return signal, nil
}

// EncodeMsgpack renders a signal in MessagePack's compact binary form.
func EncodeMsgpack(signal model.TradeSignal) ([]byte, error) {
	out, err := msgpack.Marshal(signal)
	if err != nil {
		return nil, fmt.Errorf("encoding signal as msgpack: %w", err)
	}
	return out, nil
}

// DecodeMsgpack parses a MessagePack-encoded signal.
func DecodeMsgpack(data []byte) (model.TradeSignal, error) {
	var signal model.TradeSignal
	if err := msgpack.Unmarshal(data, &signal); err != nil {
		return model.TradeSignal{}, fmt.Errorf("decoding signal from msgpack: %w", err)
	}
	return signal, nil
}

// EncodeBatchJSON renders a slice of signals as a single JSON array.
// The WebSocket hub's batch_update frame does not use it: that payload
// is a JSON array of bus events.
func EncodeBatchJSON(signals []model.TradeSignal) ([]byte, error) {
	out, err := json.Marshal(signals)
	if err != nil {
		return nil, fmt.Errorf("encoding signal batch as json: %w", err)
	}
	return out, nil
}
