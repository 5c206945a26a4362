package queue_test

import (
	"testing"
	"time"

	"github.com/wyckoff-labs/signal-engine/internal/model"
	"github.com/wyckoff-labs/signal-engine/internal/queue"
	"go.uber.org/zap"
)

func TestSubmitAndApprove(t *testing.T) {
	q := queue.NewQueue(zap.NewNop(), 0, 0)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	entry := q.Submit(&model.TradeSignal{ID: "sig-1"}, "user-1", now)
	if entry.Status != model.QueuePending {
		t.Fatalf("expected PENDING, got %s", entry.Status)
	}

	result := q.Approve(entry.ID, "user-1", now.Add(time.Minute))
	if result.Status != model.QueueApproved {
		t.Errorf("expected APPROVED, got %s (%s)", result.Status, result.Message)
	}
}

func TestApprove_RejectsWrongOwner(t *testing.T) {
	q := queue.NewQueue(zap.NewNop(), 0, 0)
	now := time.Now()
	entry := q.Submit(&model.TradeSignal{ID: "sig-1"}, "user-1", now)

	result := q.Approve(entry.ID, "user-2", now)
	if result.Status != model.QueuePending {
		t.Errorf("expected the entry to remain PENDING for a non-owner, got %s", result.Status)
	}
}

func TestApprove_AutoExpiresPastWindow(t *testing.T) {
	q := queue.NewQueue(zap.NewNop(), 0, time.Minute)
	now := time.Now()
	entry := q.Submit(&model.TradeSignal{ID: "sig-1"}, "user-1", now)

	result := q.Approve(entry.ID, "user-1", now.Add(2*time.Minute))
	if result.Status != model.QueueExpired {
		t.Errorf("expected auto-expiry past the approval window, got %s", result.Status)
	}
}

func TestSubmit_OverflowExpiresOldest(t *testing.T) {
	q := queue.NewQueue(zap.NewNop(), 2, 0)
	now := time.Now()

	first := q.Submit(&model.TradeSignal{ID: "sig-1"}, "user-1", now)
	q.Submit(&model.TradeSignal{ID: "sig-2"}, "user-1", now.Add(time.Second))
	q.Submit(&model.TradeSignal{ID: "sig-3"}, "user-1", now.Add(2*time.Second))

	pending := q.PendingForUser("user-1")
	if len(pending) != 2 {
		t.Fatalf("expected the per-user cap of 2 pending entries, got %d", len(pending))
	}
	for _, p := range pending {
		if p.ID == first.ID {
			t.Error("expected the oldest entry to have been expired on overflow")
		}
	}
}

func TestExpireStale(t *testing.T) {
	q := queue.NewQueue(zap.NewNop(), 0, time.Minute)
	now := time.Now()
	q.Submit(&model.TradeSignal{ID: "sig-1"}, "user-1", now)

	count := q.ExpireStale(now.Add(2 * time.Minute))
	if count != 1 {
		t.Errorf("expected 1 stale entry expired, got %d", count)
	}
}
