package queues

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	mberrors "github.com/meetbrief/meetbrief/pkg/errors"
)

// MemoryQueue implements Queue in process memory. It backs unit tests and
// single-process deployments; semantics match RedisQueue (bounded depth,
// ack/nack, dead letter) minus durability.
type MemoryQueue struct {
	config Config

	mu         sync.Mutex
	pending    *messageHeap
	processing map[string]*QueuedMessage
	claimedAt  map[string]time.Time
	dead       []deadEntry
	closed     bool
	notify     chan struct{}
}

type deadEntry struct {
	Message *QueuedMessage
	Reason  string
}

// NewMemoryQueue creates an in-memory queue for one stage kind.
func NewMemoryQueue(config Config) *MemoryQueue {
	h := &messageHeap{}
	heap.Init(h)
	return &MemoryQueue{
		config:     config,
		pending:    h,
		processing: make(map[string]*QueuedMessage),
		claimedAt:  make(map[string]time.Time),
		notify:     make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *MemoryQueue) Name() string {
	return q.config.Name
}

// Enqueue adds a message, rejecting it at MaxDepth.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.config.MaxDepth > 0 && int64(q.pending.Len()) >= q.config.MaxDepth {
		return fmt.Errorf("queue %s at depth %d: %w", q.config.Name, q.pending.Len(), mberrors.ErrCapacity)
	}

	heap.Push(q.pending, &QueuedMessage{
		ID:         uuid.New().String(),
		Stage:      msg.GetStage(),
		Message:    payload,
		Priority:   msg.GetPriority(),
		EnqueuedAt: time.Now(),
	})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue retrieves up to maxMessages, blocking up to wait when empty.
func (q *MemoryQueue) Dequeue(ctx context.Context, maxMessages int, wait time.Duration) ([]*QueuedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	var messages []*QueuedMessage
	for len(messages) < maxMessages {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return messages, ErrQueueClosed
		}
		for q.pending.Len() > 0 && len(messages) < maxMessages {
			qm := heap.Pop(q.pending).(*QueuedMessage)
			q.processing[qm.ID] = qm
			q.claimedAt[qm.ID] = time.Now()
			messages = append(messages, qm)
		}
		q.mu.Unlock()

		if len(messages) > 0 {
			return messages, nil
		}

		select {
		case <-q.notify:
		case <-deadline.C:
			return messages, nil
		case <-ctx.Done():
			return messages, ctx.Err()
		}
	}
	return messages, nil
}

// Ack removes a successfully processed message.
func (q *MemoryQueue) Ack(ctx context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.processing[messageID]; !ok {
		return ErrMessageNotFound
	}
	delete(q.processing, messageID)
	delete(q.claimedAt, messageID)
	return nil
}

// Nack re-queues a message, or dead-letters it past MaxRetries.
func (q *MemoryQueue) Nack(ctx context.Context, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	qm, ok := q.processing[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	delete(q.processing, messageID)
	delete(q.claimedAt, messageID)

	qm.RetryCount++
	if qm.RetryCount >= q.config.MaxRetries {
		q.dead = append(q.dead, deadEntry{Message: qm, Reason: "max retries exceeded"})
		return nil
	}

	heap.Push(q.pending, qm)
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// MoveToDeadLetter parks a message with the failure reason.
func (q *MemoryQueue) MoveToDeadLetter(ctx context.Context, messageID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	qm, ok := q.processing[messageID]
	if !ok {
		return ErrMessageNotFound
	}
	delete(q.processing, messageID)
	delete(q.claimedAt, messageID)
	q.dead = append(q.dead, deadEntry{Message: qm, Reason: reason})
	return nil
}

// RecoverStale requeues messages held past the visibility timeout, same
// contract as RedisQueue.RecoverStale. A zero timeout disables recovery.
func (q *MemoryQueue) RecoverStale(ctx context.Context) error {
	if q.config.VisibilityTimeout <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-q.config.VisibilityTimeout)
	q.mu.Lock()
	var stale []string
	for id, at := range q.claimedAt {
		if at.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	q.mu.Unlock()

	for _, id := range stale {
		if err := q.Nack(ctx, id); err != nil && err != ErrMessageNotFound {
			return err
		}
	}
	return nil
}

// Depth returns the number of messages waiting for pickup.
func (q *MemoryQueue) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.pending.Len()), nil
}

// DeadLetterCount returns the number of dead-lettered messages.
func (q *MemoryQueue) DeadLetterCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dead)
}

// Close marks the queue closed; subsequent operations fail.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// messageHeap orders by priority descending, FIFO within a priority.
type messageHeap []*QueuedMessage

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x interface{}) {
	*h = append(*h, x.(*QueuedMessage))
}

func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Verify interface compliance.
var _ Queue = (*MemoryQueue)(nil)
