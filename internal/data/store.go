// Package data loads historical bar series from disk for the
// regression harness (§6, §10): one JSON array of model.Bar per
// (symbol, timeframe), read at most once per Store and then cached in
// memory. A metadata sidecar file records each saved series' date
// range and bar count for AvailableSymbols; LoadBars does not consult
// it, so every new Store reads a series' file again on first use.
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// Store provides access to historical bar data persisted as
// per-symbol JSON files under a data directory.
type Store struct {
	mu       sync.RWMutex
	dataDir  string
	cache    map[string][]model.Bar
	metadata map[string]SymbolMetadata
}

// SymbolMetadata describes the bars on disk for one symbol/timeframe.
type SymbolMetadata struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	BarCount  int             `json:"bar_count"`
}

// NewStore opens (creating if absent) a Store rooted at dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &Store{
		dataDir:  dataDir,
		cache:    make(map[string][]model.Bar),
		metadata: make(map[string]SymbolMetadata),
	}
	if err := s.loadMetadata(); err != nil {
		return nil, fmt.Errorf("loading data store metadata: %w", err)
	}
	return s, nil
}

func cacheKey(symbol string, tf model.Timeframe) string {
	return fmt.Sprintf("%s_%s", symbol, tf)
}

// LoadBars returns the bars for (symbol, timeframe) within [start,end],
// sorted chronologically. There is no synthetic fallback: a missing
// file is an error, since a regression run must compare like-for-like
// historical data rather than silently substitute generated noise.
func (s *Store) LoadBars(symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cacheKey(symbol, tf)
	bars, ok := s.cache[key]
	if !ok {
		filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", symbol, tf))
		raw, err := os.ReadFile(filename)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("no historical data file for %s %s: %w", symbol, tf, err)
			}
			return nil, fmt.Errorf("reading %s: %w", filename, err)
		}
		if err := json.Unmarshal(raw, &bars); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", filename, err)
		}
		sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
		s.cache[key] = bars
	}
	return filterByTimeRange(bars, start, end), nil
}

// SaveBars persists bars for (symbol, timeframe) and refreshes the
// metadata sidecar.
func (s *Store) SaveBars(symbol string, tf model.Timeframe, bars []model.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", symbol, tf))
	data, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding bars: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}

	key := cacheKey(symbol, tf)
	s.cache[key] = bars
	if len(bars) > 0 {
		s.metadata[key] = SymbolMetadata{
			Symbol: symbol, Timeframe: tf,
			StartDate: bars[0].Timestamp, EndDate: bars[len(bars)-1].Timestamp,
			BarCount: len(bars),
		}
	}
	return s.saveMetadata()
}

// AvailableSymbols lists every (symbol, timeframe) pair with saved
// metadata.
func (s *Store) AvailableSymbols() []SymbolMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SymbolMetadata, 0, len(s.metadata))
	for _, m := range s.metadata {
		out = append(out, m)
	}
	return out
}

func filterByTimeRange(bars []model.Bar, start, end time.Time) []model.Bar {
	var filtered []model.Bar
	for _, b := range bars {
		if !b.Timestamp.Before(start) && !b.Timestamp.After(end) {
			filtered = append(filtered, b)
		}
	}
	return filtered
}

func (s *Store) loadMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var metadata map[string]SymbolMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return err
	}
	s.metadata = metadata
	return nil
}

func (s *Store) saveMetadata() error {
	filename := filepath.Join(s.dataDir, "metadata.json")
	data, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}
