package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	mberrors "github.com/meetbrief/meetbrief/pkg/errors"
)

// Redis key prefixes.
const (
	keyPrefixQueue      = "q:"    // pending items (sorted set, score = priority+time)
	keyPrefixProcessing = "proc:" // items handed to a worker, score = visibility deadline
	keyPrefixMessage    = "msg:"  // message payloads
	keyPrefixDLQ        = "dlq:"  // dead letter entries
)

// RedisQueue implements Queue on Redis sorted sets. Delivery is
// at-least-once: a dequeued item moves to the processing set and is
// recovered if its visibility timeout lapses without an Ack.
type RedisQueue struct {
	client *redis.Client
	config Config
}

// NewRedisQueue creates a Redis-backed queue for one stage kind.
func NewRedisQueue(client *redis.Client, config Config) *RedisQueue {
	return &RedisQueue{client: client, config: config}
}

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.config.Name
}

// Enqueue adds a message, rejecting it when the queue is at MaxDepth.
// The depth check and the insert are not one atomic step; a concurrent
// enqueue can overshoot the bound by the number of racing producers, which
// is acceptable for an admission limit.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	queueKey := keyPrefixQueue + q.config.Name

	if q.config.MaxDepth > 0 {
		depth, err := q.client.ZCard(ctx, queueKey).Result()
		if err != nil {
			return fmt.Errorf("queue depth check: %w", err)
		}
		if depth >= q.config.MaxDepth {
			return fmt.Errorf("queue %s at depth %d: %w", q.config.Name, depth, mberrors.ErrCapacity)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	qm := &QueuedMessage{
		ID:         uuid.New().String(),
		Stage:      msg.GetStage(),
		Message:    payload,
		Priority:   msg.GetPriority(),
		EnqueuedAt: time.Now(),
	}
	envelope, err := json.Marshal(qm)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.messageKey(qm.ID), envelope, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, queueKey, redis.Z{Score: score(qm.Priority, time.Now()), Member: qm.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// score orders items by priority first, FIFO within a priority. Negated
// enqueue time lets ZPopMax favour older items of the same priority.
func score(p Priority, at time.Time) float64 {
	return float64(p)*1e18 - float64(at.UnixNano())
}

// Dequeue retrieves up to maxMessages, polling until wait elapses when the
// queue is empty.
func (q *RedisQueue) Dequeue(ctx context.Context, maxMessages int, wait time.Duration) ([]*QueuedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	queueKey := keyPrefixQueue + q.config.Name
	processingKey := keyPrefixProcessing + q.config.Name
	deadline := time.Now().Add(wait)

	var messages []*QueuedMessage
	for len(messages) < maxMessages {
		popped, err := q.client.ZPopMax(ctx, queueKey, 1).Result()
		if err != nil && err != redis.Nil {
			return messages, fmt.Errorf("pop from queue: %w", err)
		}
		if len(popped) == 0 {
			if time.Now().After(deadline) {
				return messages, nil
			}
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return messages, ctx.Err()
			}
		}

		messageID := popped[0].Member.(string)
		data, err := q.client.Get(ctx, q.messageKey(messageID)).Bytes()
		if err == redis.Nil {
			// Payload expired past retention; drop the stub.
			continue
		}
		if err != nil {
			return messages, fmt.Errorf("get message payload: %w", err)
		}

		var qm QueuedMessage
		if err := json.Unmarshal(data, &qm); err != nil {
			return messages, fmt.Errorf("unmarshal envelope: %w", err)
		}

		visibleDeadline := time.Now().Add(q.config.VisibilityTimeout)
		if err := q.client.ZAdd(ctx, processingKey, redis.Z{
			Score:  float64(visibleDeadline.UnixNano()),
			Member: messageID,
		}).Err(); err != nil {
			return messages, fmt.Errorf("move to processing: %w", err)
		}

		messages = append(messages, &qm)
	}
	return messages, nil
}

// Ack removes a successfully processed message.
func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.config.Name, messageID)
	pipe.Del(ctx, q.messageKey(messageID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

// Nack re-queues a message after a transient failure, with exponential
// backoff applied through a delayed score. Messages past MaxRetries go to
// the dead letter queue instead.
func (q *RedisQueue) Nack(ctx context.Context, messageID string) error {
	data, err := q.client.Get(ctx, q.messageKey(messageID)).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("get message payload: %w", err)
	}

	var qm QueuedMessage
	if err := json.Unmarshal(data, &qm); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	qm.RetryCount++
	if qm.RetryCount >= q.config.MaxRetries {
		return q.MoveToDeadLetter(ctx, messageID, "max retries exceeded")
	}

	updated, err := json.Marshal(&qm)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	redeliverAt := time.Now().Add(backoff(qm.RetryCount))
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.config.Name, messageID)
	pipe.Set(ctx, q.messageKey(messageID), updated, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, keyPrefixQueue+q.config.Name, redis.Z{
		Score:  score(qm.Priority, redeliverAt),
		Member: messageID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack message: %w", err)
	}
	return nil
}

// MoveToDeadLetter parks a message with the failure reason for inspection.
func (q *RedisQueue) MoveToDeadLetter(ctx context.Context, messageID, reason string) error {
	data, err := q.client.Get(ctx, q.messageKey(messageID)).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("get message payload: %w", err)
	}

	entry, err := json.Marshal(map[string]interface{}{
		"message":  string(data),
		"reason":   reason,
		"moved_at": time.Now().Format(time.RFC3339),
		"queue":    q.config.Name,
	})
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.config.Name, messageID)
	pipe.Del(ctx, q.messageKey(messageID))
	pipe.ZAdd(ctx, keyPrefixDLQ+q.config.Name, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(entry),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("move to dlq: %w", err)
	}
	return nil
}

// Depth returns the number of messages waiting for pickup.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, keyPrefixQueue+q.config.Name).Result()
}

// Close is a no-op; the Redis client is shared and owned by the caller.
func (q *RedisQueue) Close() error {
	return nil
}

// RecoverStale moves items whose visibility timeout lapsed back onto the
// queue. A background loop should call this periodically so a crashed
// worker's items are redelivered.
func (q *RedisQueue) RecoverStale(ctx context.Context) error {
	processingKey := keyPrefixProcessing + q.config.Name

	expired, err := q.client.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", time.Now().UnixNano()),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("scan processing set: %w", err)
	}

	for _, messageID := range expired {
		if err := q.Nack(ctx, messageID); err != nil {
			if err == ErrMessageNotFound {
				q.client.ZRem(ctx, processingKey, messageID)
				continue
			}
			return err
		}
	}
	return nil
}

func (q *RedisQueue) messageKey(messageID string) string {
	return keyPrefixMessage + q.config.Name + ":" + messageID
}

func backoff(retryCount int) time.Duration {
	d := time.Second * (1 << uint(retryCount))
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// Verify interface compliance.
var _ Queue = (*RedisQueue)(nil)
