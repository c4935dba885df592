package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
)

var (
	// KEYS: items, pending, checkout. ARGV: id, payload.
	enqueueScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0`)

	// KEYS: items, pending, checkout. ARGV: now, expiry cutoff (both ms).
	checkoutScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[2])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[3], id)
  if redis.call('HEXISTS', KEYS[1], id) == 1 then
    redis.call('RPUSH', KEYS[2], id)
  end
end
while true do
  local id = redis.call('LPOP', KEYS[2])
  if not id then
    return false
  end
  local payload = redis.call('HGET', KEYS[1], id)
  if payload then
    redis.call('ZADD', KEYS[3], ARGV[1], id)
    return {id, payload}
  end
end`)

	// KEYS: items, pending, checkout. ARGV: id.
	ackScript = redis.NewScript(`
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('LREM', KEYS[2], 0, ARGV[1])
return 1`)

	// Returns -1 for an unknown item, 0 when it was not checked out.
	requeueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  redis.call('ZREM', KEYS[3], ARGV[1])
  return -1
end
if redis.call('ZREM', KEYS[3], ARGV[1]) == 1 then
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0`)
)

// RedisQueue keeps one review queue in three keys sharing a hash tag:
// a hash of payloads, a list of pending ids and a sorted set of checkout times.
type RedisQueue struct {
	redis     *redis.Client
	base      string
	autoclean time.Duration
	poll      time.Duration
	now       Clock
}

func (q *RedisQueue) keys() []string {
	return []string{q.base + ":items", q.base + ":pending", q.base + ":checkout"}
}

func (q *RedisQueue) Enqueue(ctx context.Context, c review.Candidate) (string, error) {
	payload, err := review.Encode(c)
	if err != nil {
		return "", err
	}
	id := review.ItemID(c)
	if err := enqueueScript.Run(ctx, q.redis, q.keys(), id, payload).Err(); err != nil {
		return "", fmt.Errorf("review queue enqueue: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) Checkout(ctx context.Context, timeout time.Duration) (review.Item, bool, error) {
	return poll(ctx, timeout, q.poll, q.tryCheckout)
}

func (q *RedisQueue) tryCheckout(ctx context.Context) (review.Item, bool, error) {
	now := q.now()
	res, err := checkoutScript.Run(ctx, q.redis, q.keys(), now.UnixMilli(), now.Add(-q.autoclean).UnixMilli()).StringSlice()
	if errors.Is(err, redis.Nil) {
		return review.Item{}, false, nil
	}
	if err != nil {
		return review.Item{}, false, fmt.Errorf("review queue checkout: %w", err)
	}
	if len(res) != 2 {
		return review.Item{}, false, fmt.Errorf("%w: checkout returned %d values", review.ErrMalformedItem, len(res))
	}
	c, err := review.Decode([]byte(res[1]))
	if err != nil {
		return review.Item{}, false, err
	}
	return review.Item{ID: res[0], Candidate: c}, true, nil
}

func (q *RedisQueue) Acknowledge(ctx context.Context, id string) error {
	if err := ackScript.Run(ctx, q.redis, q.keys(), id).Err(); err != nil {
		return fmt.Errorf("review queue acknowledge: %w", err)
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, id string) error {
	n, err := requeueScript.Run(ctx, q.redis, q.keys(), id).Int64()
	if err != nil {
		return fmt.Errorf("review queue requeue: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("%w: %s", review.ErrItemNotFound, id)
	}
	return nil
}

func (q *RedisQueue) RemainingCount(ctx context.Context) (int64, error) {
	n, err := q.redis.HLen(ctx, q.keys()[0]).Result()
	if err != nil {
		return 0, fmt.Errorf("review queue remaining: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Purge(ctx context.Context) error {
	return q.redis.Del(ctx, q.keys()...).Err()
}

type RedisQueues struct {
	redis     *redis.Client
	prefix    string
	autoclean time.Duration
	poll      time.Duration
	now       Clock
}

func NewRedisQueues(client *redis.Client, opts Options) *RedisQueues {
	opts = opts.withDefaults()
	return &RedisQueues{
		redis:     client,
		prefix:    opts.KeyPrefix,
		autoclean: opts.AutocleanInterval,
		poll:      opts.PollInterval,
		now:       opts.Clock,
	}
}

func (r *RedisQueues) Queue(fileID int64, kind review.Kind) review.Queue {
	return &RedisQueue{
		redis:     r.redis,
		base:      fmt.Sprintf("%s:{%d:%s}", r.prefix, fileID, kind),
		autoclean: r.autoclean,
		poll:      r.poll,
		now:       r.now,
	}
}
