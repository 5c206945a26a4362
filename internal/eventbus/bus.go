// Package eventbus fans out domain events (pattern detections, signal
// lifecycle transitions, portfolio/campaign updates) to a worker pool
// of subscribers and retains a bounded, TTL'd replay ring so a
// reconnecting WebSocket client can catch up from a sequence number
// (§5).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType enumerates the domain event categories fanned out across
// the engine.
type EventType string

const (
	EventBarIngested      EventType = "bar_ingested"
	EventPatternDetected  EventType = "pattern_detected"
	EventSignalGenerated  EventType = "signal_generated"
	EventSignalValidated  EventType = "signal_validated"
	EventSignalApproved   EventType = "signal_approved"
	EventSignalRejected   EventType = "signal_rejected"
	EventPositionOpened   EventType = "position_opened"
	EventPositionExited   EventType = "position_exited"
	EventCampaignUpdated  EventType = "campaign_updated"
	EventPortfolioUpdated EventType = "portfolio_updated"
	EventNotificationSent EventType = "notification_toast"
)

// Event is one bus message. Seq is assigned by the bus on publish and
// is monotonically increasing across the bus's lifetime.
type Event struct {
	Seq       int64
	Type      EventType
	Symbol    string
	Timestamp time.Time
	Payload   any
}

// Handler processes one event. A panic inside a handler is recovered
// and logged; it never takes down a worker.
type Handler func(Event)

// Config configures the bus's worker pool, buffering and replay ring.
type Config struct {
	Workers    int
	BufferSize int
	ReplayCap  int
	ReplayTTL  time.Duration
}

// DefaultConfig mirrors the engine's single-process scale: modest
// worker count, generous buffer, a 500-entry/15-minute replay ring
// (§5).
func DefaultConfig() Config {
	return Config{Workers: 8, BufferSize: 10000, ReplayCap: 500, ReplayTTL: 15 * time.Minute}
}

// Bus is the central event fan-out.
type Bus struct {
	logger *zap.Logger
	cfg    Config

	mu             sync.RWMutex
	subscribers    map[EventType][]Handler
	allSubscribers []Handler

	eventChan chan Event
	seq       atomic.Int64

	replayMu sync.Mutex
	replay   []Event

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates and starts a Bus with its worker pool running.
func New(logger *zap.Logger, cfg Config) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.ReplayCap <= 0 {
		cfg.ReplayCap = DefaultConfig().ReplayCap
	}
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = DefaultConfig().ReplayTTL
	}
	b := &Bus{
		logger:      logger.Named("event-bus"),
		cfg:         cfg,
		subscribers: make(map[EventType][]Handler),
		eventChan:   make(chan Event, cfg.BufferSize),
		done:        make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubscribers = append(b.allSubscribers, h)
}

// Publish assigns a sequence number, records the event in the replay
// ring, and enqueues it for worker dispatch. Publish never blocks the
// caller on a full buffer beyond a drop-and-log.
func (b *Bus) Publish(t EventType, symbol string, payload any) Event {
	ev := Event{
		Seq:       b.seq.Add(1),
		Type:      t,
		Symbol:    symbol,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	b.recordReplay(ev)
	select {
	case b.eventChan <- ev:
	default:
		b.logger.Warn("event channel full, dropping event", zap.String("type", string(t)), zap.Int64("seq", ev.Seq))
	}
	return ev
}

func (b *Bus) recordReplay(ev Event) {
	b.replayMu.Lock()
	defer b.replayMu.Unlock()

	cutoff := time.Now().Add(-b.cfg.ReplayTTL)
	kept := b.replay[:0]
	for _, e := range b.replay {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	kept = append(kept, ev)
	if len(kept) > b.cfg.ReplayCap {
		kept = kept[len(kept)-b.cfg.ReplayCap:]
	}
	b.replay = kept
}

// MessagesSince returns every retained event with Seq > since, in
// order. Events older than the replay TTL or evicted by the capacity
// bound are not returned even if their Seq qualifies — callers that
// fall too far behind must request a full resync instead.
func (b *Bus) MessagesSince(since int64) []Event {
	b.replayMu.Lock()
	defer b.replayMu.Unlock()

	var out []Event
	for _, e := range b.replay {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.eventChan:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := append([]Handler{}, b.subscribers[ev.Type]...)
	handlers = append(handlers, b.allSubscribers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeInvoke(h, ev)
	}
}

func (b *Bus) safeInvoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic", zap.String("type", string(ev.Type)), zap.Any("panic", r))
		}
	}()
	h(ev)
}

// Close stops the worker pool.
func (b *Bus) Close() {
	close(b.done)
	b.wg.Wait()
}
