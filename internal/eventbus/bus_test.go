package eventbus_test

import (
	"sync"
	"testing"
	"time"

	"github.com/wyckoff-labs/signal-engine/internal/eventbus"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatal("timed out waiting for condition")
	}
}

func TestPublishDispatchesToTypedSubscriber(t *testing.T) {
	b := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 2, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer b.Close()

	var mu sync.Mutex
	var got eventbus.Event
	b.Subscribe(eventbus.EventPatternDetected, func(ev eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = ev
	})

	b.Publish(eventbus.EventPatternDetected, "AAPL", "spring")

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got.Symbol == "AAPL"
	})
}

func TestPublishDoesNotReachMismatchedSubscriber(t *testing.T) {
	b := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer b.Close()

	var mu sync.Mutex
	called := false
	b.Subscribe(eventbus.EventSignalApproved, func(ev eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		called = true
	})

	b.Publish(eventbus.EventPatternDetected, "AAPL", nil)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if called {
		t.Error("subscriber for a different event type should not have been invoked")
	}
}

func TestSubscribeAllReceivesEveryType(t *testing.T) {
	b := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer b.Close()

	var mu sync.Mutex
	count := 0
	b.SubscribeAll(func(ev eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
	})

	b.Publish(eventbus.EventPatternDetected, "AAPL", nil)
	b.Publish(eventbus.EventSignalGenerated, "AAPL", nil)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	})
}

func TestHandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	b := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer b.Close()

	var mu sync.Mutex
	secondRan := false
	b.Subscribe(eventbus.EventPatternDetected, func(ev eventbus.Event) {
		panic("boom")
	})
	b.Subscribe(eventbus.EventPatternDetected, func(ev eventbus.Event) {
		mu.Lock()
		defer mu.Unlock()
		secondRan = true
	})

	b.Publish(eventbus.EventPatternDetected, "AAPL", nil)

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return secondRan
	})
}

func TestMessagesSinceReturnsOnlyNewerSequences(t *testing.T) {
	b := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 16, ReplayCap: 10, ReplayTTL: time.Minute})
	defer b.Close()

	first := b.Publish(eventbus.EventPatternDetected, "AAPL", nil)
	b.Publish(eventbus.EventSignalGenerated, "AAPL", nil)
	third := b.Publish(eventbus.EventSignalValidated, "AAPL", nil)

	since := b.MessagesSince(first.Seq)
	if len(since) != 2 {
		t.Fatalf("expected 2 events after seq %d, got %d", first.Seq, len(since))
	}
	if since[len(since)-1].Seq != third.Seq {
		t.Errorf("expected the last returned event to be seq %d, got %d", third.Seq, since[len(since)-1].Seq)
	}
}

func TestMessagesSinceRespectsCapacityBound(t *testing.T) {
	b := eventbus.New(zap.NewNop(), eventbus.Config{Workers: 1, BufferSize: 64, ReplayCap: 5, ReplayTTL: time.Minute})
	defer b.Close()

	var firstSeq int64
	for i := 0; i < 20; i++ {
		ev := b.Publish(eventbus.EventPatternDetected, "AAPL", i)
		if i == 0 {
			firstSeq = ev.Seq
		}
	}

	since := b.MessagesSince(firstSeq - 1)
	if len(since) != 5 {
		t.Fatalf("expected replay ring capped at 5, got %d", len(since))
	}
}
