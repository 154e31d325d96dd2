// Package queue moves pipeline tasks through Redis with at-least-once
// delivery: BLMOVE parks each in-flight task on a processing list until the
// handler finishes, and a worker restart re-queues whatever was left there.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"callbrief/internal/pipeline"
	"callbrief/pkg/logger"
)

const (
	readyKey      = "callbrief:tasks:ready"
	delayedKey    = "callbrief:tasks:delayed"
	processingKey = "callbrief:tasks:processing"
)

// promoteDelayedScript atomically moves due tasks from the delayed zset to
// the ready list.
var promoteDelayedScript = redis.NewScript(`
-- KEYS[1] = delayed zset
-- KEYS[2] = ready list
-- ARGV[1] = now (unix ms)
-- ARGV[2] = batch limit
--
-- Returns the number of promoted tasks.
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, task in ipairs(due) do
  redis.call('LPUSH', KEYS[2], task)
  redis.call('ZREM', KEYS[1], task)
end
return #due
`)

// RedisQueue implements pipeline.Enqueuer on Redis lists.
type RedisQueue struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb, now: time.Now}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t pipeline.Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, readyKey, payload).Err(); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

func (q *RedisQueue) EnqueueAfter(ctx context.Context, t pipeline.Task, delay time.Duration) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	due := float64(q.now().Add(delay).UnixMilli())
	if err := q.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("queue: enqueue delayed: %w", err)
	}
	return nil
}

// promoteDue moves tasks whose delay elapsed onto the ready list.
func (q *RedisQueue) promoteDue(ctx context.Context, batch int) (int, error) {
	nowMS := strconv.FormatInt(q.now().UnixMilli(), 10)
	n, err := promoteDelayedScript.Run(ctx, q.rdb, []string{delayedKey, readyKey}, nowMS, batch).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("queue: promote delayed: %w", err)
	}
	return n, nil
}

// Handler executes tasks and records terminal failures.
type Handler interface {
	Process(ctx context.Context, t pipeline.Task) error
	RecordFailure(ctx context.Context, t pipeline.Task, cause error)
}

// Consumer pulls tasks and drives the retry policy. One consumer per worker
// process; stage-level concurrency comes from running several workers.
type Consumer struct {
	queue   *RedisQueue
	handler Handler

	popTimeout time.Duration
}

func NewConsumer(queue *RedisQueue, handler Handler) *Consumer {
	return &Consumer{queue: queue, handler: handler, popTimeout: 5 * time.Second}
}

// Run consumes until the context is cancelled. Tasks left on the processing
// list by a previous crash are re-queued first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.recover(ctx); err != nil {
		return err
	}
	log := logger.From(ctx)
	log.Info("queue consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := c.queue.promoteDue(ctx, 100); err != nil {
			log.Error("promote delayed tasks", "error", err)
		}

		payload, err := c.queue.rdb.BLMove(ctx, readyKey, processingKey, "RIGHT", "LEFT", c.popTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("queue pop", "error", err)
			time.Sleep(time.Second)
			continue
		}

		c.handle(ctx, payload)
	}
}

// handle runs one task and always removes it from the processing list; a
// retry goes back through the queue as a fresh delayed entry.
func (c *Consumer) handle(ctx context.Context, payload string) {
	defer func() {
		if err := c.queue.rdb.LRem(ctx, processingKey, 1, payload).Err(); err != nil {
			logger.From(ctx).Error("queue ack", "error", err)
		}
	}()

	var t pipeline.Task
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		logger.From(ctx).Error("discarding undecodable task", "error", err)
		return
	}

	err := c.handler.Process(ctx, t)
	if err == nil {
		return
	}

	maxAttempts, delay := pipeline.RetryPolicy(t.Stage)
	if t.Attempt >= maxAttempts {
		c.handler.RecordFailure(ctx, t, err)
		return
	}

	retry := t
	retry.Attempt++
	logger.From(ctx).Warn("stage failed, scheduling retry",
		"stage", t.Stage, "call_id", t.CallID, "attempt", t.Attempt, "delay", delay, "error", err)
	if err := c.queue.EnqueueAfter(ctx, retry, delay); err != nil {
		logger.From(ctx).Error("schedule retry", "error", err)
		c.handler.RecordFailure(ctx, t, err)
	}
}

// recover re-queues tasks orphaned on the processing list by a crashed
// worker. Safe to run with other workers live only at startup of a single
// worker deployment; duplicates are tolerated by idempotent stages.
func (c *Consumer) recover(ctx context.Context) error {
	for {
		payload, err := c.queue.rdb.RPopLPush(ctx, processingKey, readyKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("queue: recover processing list: %w", err)
		}
		logger.From(ctx).Warn("re-queued orphaned task", "payload", payload)
	}
}
