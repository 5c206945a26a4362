// Package queue implements the signal approval queue: submit, approve,
// reject and lazy stale-expiry, with per-user overflow handling and a
// monotonic sequence number on every status transition (§4.13).
package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wyckoff-labs/signal-engine/internal/model"
	"go.uber.org/zap"
)

// DefaultMaxQueueSize is the per-user pending-entry cap before
// submission starts expiring the oldest pending entry to make room.
const DefaultMaxQueueSize = 20

// DefaultTimeout is the default approval window before a pending entry
// is eligible for expiry.
const DefaultTimeout = 30 * time.Minute

// ApprovalResult is returned from Approve/Reject.
type ApprovalResult struct {
	Status  model.QueueEntryStatus
	Message string
}

// Queue is an in-memory, mutex-guarded signal approval queue. Row
// transitions take the queue-wide lock rather than a per-row lock,
// mirroring the small-scale in-process repo convention used
// throughout the engine's in-memory persistence layer.
type Queue struct {
	logger     *zap.Logger
	maxPerUser int
	timeout    time.Duration

	mu      sync.Mutex
	entries map[string]*model.SignalQueueEntry
	seq     int64
}

// NewQueue creates a Queue. Zero maxPerUser/timeout fall back to the
// package defaults.
func NewQueue(logger *zap.Logger, maxPerUser int, timeout time.Duration) *Queue {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Queue{
		logger:     logger.Named("signal-queue"),
		maxPerUser: maxPerUser,
		timeout:    timeout,
		entries:    make(map[string]*model.SignalQueueEntry),
	}
}

func (q *Queue) nextSeq() int64 {
	q.seq++
	return q.seq
}

// Submit adds a signal to the queue under userID. If the user is
// already at the cap, the oldest pending entry for that user is
// expired to make room (§4.13 overflow handling).
func (q *Queue) Submit(signal *model.TradeSignal, userID string, now time.Time) *model.SignalQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := q.pendingForUserLocked(userID)
	if len(pending) >= q.maxPerUser {
		oldest := pending[0]
		for _, e := range pending[1:] {
			if e.SubmittedAt.Before(oldest.SubmittedAt) {
				oldest = e
			}
		}
		oldest.Status = model.QueueExpired
		oldest.Seq = q.nextSeq()
		q.logger.Warn("signal queue overflow, expiring oldest pending entry",
			zap.String("user_id", userID), zap.String("expired_queue_id", oldest.ID))
	}

	entry := &model.SignalQueueEntry{
		ID:             fmt.Sprintf("q-%s-%d", userID, q.nextSeq()),
		SignalID:       signal.ID,
		UserID:         userID,
		Status:         model.QueuePending,
		SubmittedAt:    now,
		ExpiresAt:      now.Add(q.timeout),
		SignalSnapshot: *signal,
		Seq:            q.nextSeq(),
	}
	q.entries[entry.ID] = entry
	q.logger.Info("signal submitted to approval queue",
		zap.String("queue_id", entry.ID), zap.String("signal_id", signal.ID), zap.String("user_id", userID))
	return entry
}

// Approve transitions a pending entry to APPROVED, enforcing
// ownership and auto-expiring if the approval window has lapsed.
func (q *Queue) Approve(queueID, userID string, now time.Time) ApprovalResult {
	return q.transition(queueID, userID, now, model.QueueApproved)
}

// Reject transitions a pending entry to REJECTED, enforcing ownership.
func (q *Queue) Reject(queueID, userID string, now time.Time) ApprovalResult {
	return q.transition(queueID, userID, now, model.QueueRejected)
}

func (q *Queue) transition(queueID, userID string, now time.Time, target model.QueueEntryStatus) ApprovalResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[queueID]
	if !ok {
		return ApprovalResult{Status: model.QueuePending, Message: "signal not found"}
	}
	if entry.UserID != userID {
		return ApprovalResult{Status: entry.Status, Message: "not authorized to act on this signal"}
	}
	if entry.Status != model.QueuePending {
		return ApprovalResult{Status: entry.Status, Message: fmt.Sprintf("signal already processed: %s", entry.Status)}
	}
	if entry.IsExpired(now) {
		entry.Status = model.QueueExpired
		entry.Seq = q.nextSeq()
		return ApprovalResult{Status: model.QueueExpired, Message: "signal has expired"}
	}

	entry.Status = target
	entry.Seq = q.nextSeq()
	if target == model.QueueApproved {
		approvedAt := now
		entry.ApprovedAt = &approvedAt
	}
	q.logger.Info("signal queue entry transitioned",
		zap.String("queue_id", queueID), zap.String("status", string(target)))
	return ApprovalResult{Status: target, Message: "signal " + string(target)}
}

// ExpireStale sweeps every still-pending entry whose expiry has
// passed, marking it EXPIRED. Returns the count expired.
func (q *Queue) ExpireStale(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, e := range q.entries {
		if e.Status == model.QueuePending && e.IsExpired(now) {
			e.Status = model.QueueExpired
			e.Seq = q.nextSeq()
			count++
		}
	}
	if count > 0 {
		q.logger.Info("expired stale queue entries", zap.Int("count", count))
	}
	return count
}

// PendingForUser returns the user's pending entries, oldest first.
func (q *Queue) PendingForUser(userID string) []*model.SignalQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pendingForUserLocked(userID)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (q *Queue) pendingForUserLocked(userID string) []*model.SignalQueueEntry {
	var out []*model.SignalQueueEntry
	for _, e := range q.entries {
		if e.UserID == userID && e.Status == model.QueuePending {
			out = append(out, e)
		}
	}
	return out
}
