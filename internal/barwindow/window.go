// Package barwindow maintains a per-(symbol,timeframe) rolling ordered
// bar buffer (§4.1). It is the only place bars are admitted to the
// system; every detector downstream reads immutable snapshots.
package barwindow

import (
	"sync"

	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

// DefaultMaxSize is large enough for every detector's longest lookback
// (spec requires >= 250).
const DefaultMaxSize = 500

// key identifies one (symbol,timeframe) stream.
type key struct {
	symbol    string
	timeframe model.Timeframe
}

// Window is a bounded, append-only ring of bars for one (symbol,
// timeframe) pair. Eviction of the oldest bar is O(1).
type Window struct {
	bars    []model.Bar // logical chronological order after normalization
	start   int         // index of oldest bar within bars (ring offset)
	maxSize int
}

func newWindow(maxSize int) *Window {
	return &Window{bars: make([]model.Bar, 0, maxSize), maxSize: maxSize}
}

func (w *Window) append(bar model.Bar) error {
	if len(w.bars) > 0 {
		last := w.bars[len(w.bars)-1]
		if !bar.Timestamp.After(last.Timestamp) {
			return model.NewDomainError(model.ErrKindOutOfOrderBar, "bar timestamp must be strictly after the last admitted bar", map[string]any{
				"symbol": bar.Symbol, "last": last.Timestamp, "new": bar.Timestamp,
			})
		}
	}
	if err := bar.Validate(); err != nil {
		return err
	}
	w.bars = append(w.bars, bar)
	if len(w.bars) > w.maxSize {
		w.bars = w.bars[1:]
	}
	return nil
}

// Snapshot returns the last n bars (or all if n<=0) in chronological
// order. The returned slice is a copy; mutating it never affects the
// window.
func (w *Window) Snapshot(n int) []model.Bar {
	if n <= 0 || n > len(w.bars) {
		n = len(w.bars)
	}
	out := make([]model.Bar, n)
	copy(out, w.bars[len(w.bars)-n:])
	return out
}

// Len returns the number of bars currently held.
func (w *Window) Len() int {
	return len(w.bars)
}

// Manager owns one Window per (symbol,timeframe) and serializes
// appends per key, matching the concurrency model's requirement that
// bar processing for a given (symbol,timeframe) be strictly
// serialized while cross-symbol work may run in parallel (§5).
type Manager struct {
	logger  *zap.Logger
	maxSize int

	mu       sync.RWMutex
	windows  map[key]*Window
	keyLocks map[key]*sync.Mutex
}

// NewManager creates a Manager with the given per-stream capacity (use
// DefaultMaxSize if unsure).
func NewManager(logger *zap.Logger, maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{
		logger:   logger.Named("bar-window-manager"),
		maxSize:  maxSize,
		windows:  make(map[key]*Window),
		keyLocks: make(map[key]*sync.Mutex),
	}
}

func (m *Manager) lockFor(k key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.keyLocks[k]
	if !ok {
		l = &sync.Mutex{}
		m.keyLocks[k] = l
	}
	return l
}

// Append admits a bar, failing with ErrKindOutOfOrderBar if its
// timestamp is not strictly after the last admitted bar for its
// (symbol,timeframe) stream.
func (m *Manager) Append(bar model.Bar) error {
	k := key{symbol: bar.Symbol, timeframe: bar.Timeframe}
	lock := m.lockFor(k)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	w, ok := m.windows[k]
	if !ok {
		w = newWindow(m.maxSize)
		m.windows[k] = w
	}
	m.mu.Unlock()

	if err := w.append(bar); err != nil {
		m.logger.Warn("bar rejected",
			zap.String("symbol", bar.Symbol),
			zap.String("timeframe", string(bar.Timeframe)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// GetBars returns a chronological snapshot of the last n bars (or all
// if n<=0) for (symbol,timeframe). Returns an empty slice if the
// stream is unknown.
func (m *Manager) GetBars(symbol string, timeframe model.Timeframe, n int) []model.Bar {
	k := key{symbol: symbol, timeframe: timeframe}
	m.mu.RLock()
	w, ok := m.windows[k]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return w.Snapshot(n)
}

// Len reports how many bars are currently held for (symbol,timeframe).
func (m *Manager) Len(symbol string, timeframe model.Timeframe) int {
	k := key{symbol: symbol, timeframe: timeframe}
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[k]
	if !ok {
		return 0
	}
	return w.Len()
}
