// Package repo defines the persistence contracts the engine's
// services depend on, plus in-memory implementations that take the
// queue-wide mutex convention ([[internal/queue]]) for row transitions
// since no real database is in scope (§6, §8).
package repo

import (
	"context"
	"sync"

	"github.com/wyckoff-labs/signal-engine/internal/model"
)

// Campaigns persists Campaign aggregates.
type Campaigns interface {
	Get(ctx context.Context, id string) (model.Campaign, error)
	Save(ctx context.Context, c model.Campaign) error
	List(ctx context.Context) ([]model.Campaign, error)
}

// Positions persists Position records.
type Positions interface {
	Get(ctx context.Context, id string) (model.Position, error)
	Save(ctx context.Context, p model.Position) error
	ListOpen(ctx context.Context) ([]model.Position, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]model.Position, error)
}

// ExitRules persists the ExitRule attached to a campaign.
type ExitRules interface {
	Get(ctx context.Context, campaignID string) (model.ExitRule, error)
	Save(ctx context.Context, r model.ExitRule) error
}

// Signals persists TradeSignal records.
type Signals interface {
	Get(ctx context.Context, id string) (model.TradeSignal, error)
	Save(ctx context.Context, s model.TradeSignal) error
	ListByCampaign(ctx context.Context, campaignID string) ([]model.TradeSignal, error)
}

// QueueEntries persists SignalQueueEntry rows.
type QueueEntries interface {
	Get(ctx context.Context, id string) (model.SignalQueueEntry, error)
	Save(ctx context.Context, e model.SignalQueueEntry) error
	ListPendingForUser(ctx context.Context, userID string) ([]model.SignalQueueEntry, error)
}

// ErrNotFound is returned by the Positions, ExitRules and QueueEntries
// stores' Get when no row exists for the given id; the Campaigns and
// Signals stores return their own CampaignNotFound/SignalNotFound
// errors instead.
var ErrNotFound = model.NewDomainError(model.ErrKindSignalNotFound, "record not found", nil)

// InMemoryCampaigns is a mutex-guarded in-process Campaigns store.
type InMemoryCampaigns struct {
	mu   sync.RWMutex
	rows map[string]model.Campaign
}

// NewInMemoryCampaigns creates an empty store.
func NewInMemoryCampaigns() *InMemoryCampaigns {
	return &InMemoryCampaigns{rows: make(map[string]model.Campaign)}
}

func (s *InMemoryCampaigns) Get(ctx context.Context, id string) (model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return model.Campaign{}, model.NewDomainError(model.ErrKindCampaignNotFound, "campaign not found", map[string]any{"id": id})
	}
	return row, nil
}

func (s *InMemoryCampaigns) Save(ctx context.Context, c model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[c.ID] = c
	return nil
}

func (s *InMemoryCampaigns) List(ctx context.Context) ([]model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Campaign, 0, len(s.rows))
	for _, c := range s.rows {
		out = append(out, c)
	}
	return out, nil
}

// InMemoryPositions is a mutex-guarded in-process Positions store.
type InMemoryPositions struct {
	mu   sync.RWMutex
	rows map[string]model.Position
}

// NewInMemoryPositions creates an empty store.
func NewInMemoryPositions() *InMemoryPositions {
	return &InMemoryPositions{rows: make(map[string]model.Position)}
}

func (s *InMemoryPositions) Get(ctx context.Context, id string) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return model.Position{}, ErrNotFound
	}
	return row, nil
}

func (s *InMemoryPositions) Save(ctx context.Context, p model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.ID] = p
	return nil
}

func (s *InMemoryPositions) ListOpen(ctx context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.rows {
		if p.Status == model.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryPositions) ListByCampaign(ctx context.Context, campaignID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for _, p := range s.rows {
		if p.CampaignID == campaignID {
			out = append(out, p)
		}
	}
	return out, nil
}

// InMemoryExitRules is a mutex-guarded in-process ExitRules store.
type InMemoryExitRules struct {
	mu   sync.RWMutex
	rows map[string]model.ExitRule
}

// NewInMemoryExitRules creates an empty store.
func NewInMemoryExitRules() *InMemoryExitRules {
	return &InMemoryExitRules{rows: make(map[string]model.ExitRule)}
}

func (s *InMemoryExitRules) Get(ctx context.Context, campaignID string) (model.ExitRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[campaignID]
	if !ok {
		return model.ExitRule{}, ErrNotFound
	}
	return row, nil
}

func (s *InMemoryExitRules) Save(ctx context.Context, r model.ExitRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.CampaignID] = r
	return nil
}

// InMemorySignals is a mutex-guarded in-process Signals store.
type InMemorySignals struct {
	mu   sync.RWMutex
	rows map[string]model.TradeSignal
}

// NewInMemorySignals creates an empty store.
func NewInMemorySignals() *InMemorySignals {
	return &InMemorySignals{rows: make(map[string]model.TradeSignal)}
}

func (s *InMemorySignals) Get(ctx context.Context, id string) (model.TradeSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return model.TradeSignal{}, model.NewDomainError(model.ErrKindSignalNotFound, "signal not found", map[string]any{"id": id})
	}
	return row, nil
}

func (s *InMemorySignals) Save(ctx context.Context, sig model.TradeSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sig.ID] = sig
	return nil
}

func (s *InMemorySignals) ListByCampaign(ctx context.Context, campaignID string) ([]model.TradeSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.TradeSignal
	for _, sig := range s.rows {
		if sig.CampaignID == campaignID {
			out = append(out, sig)
		}
	}
	return out, nil
}

// InMemoryQueueEntries is a mutex-guarded in-process QueueEntries
// store, independent of the live approval queue ([[internal/queue]]'s
// Queue) so a restart can rehydrate outstanding entries from
// persistence.
type InMemoryQueueEntries struct {
	mu   sync.RWMutex
	rows map[string]model.SignalQueueEntry
}

// NewInMemoryQueueEntries creates an empty store.
func NewInMemoryQueueEntries() *InMemoryQueueEntries {
	return &InMemoryQueueEntries{rows: make(map[string]model.SignalQueueEntry)}
}

func (s *InMemoryQueueEntries) Get(ctx context.Context, id string) (model.SignalQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return model.SignalQueueEntry{}, ErrNotFound
	}
	return row, nil
}

func (s *InMemoryQueueEntries) Save(ctx context.Context, e model.SignalQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[e.ID] = e
	return nil
}

func (s *InMemoryQueueEntries) ListPendingForUser(ctx context.Context, userID string) ([]model.SignalQueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SignalQueueEntry
	for _, e := range s.rows {
		if e.UserID == userID && e.Status == model.QueuePending {
			out = append(out, e)
		}
	}
	return out, nil
}
