// Package queue implements review.Queues over Redis and process memory.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/pkg/configuration"
)

type Clock func() time.Time

type Options struct {
	KeyPrefix         string
	AutocleanInterval time.Duration
	PollInterval      time.Duration
	Clock             Clock
}

func (o Options) withDefaults() Options {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "payroll:review:v1"
	}
	if o.AutocleanInterval <= 0 {
		o.AutocleanInterval = 150 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// New builds the queues selected by cfg. The returned close func releases
// the Redis client, if any.
func New(cfg configuration.ReviewQueueOptions) (review.Queues, func() error, error) {
	opts := Options{
		KeyPrefix:         cfg.KeyPrefix,
		AutocleanInterval: cfg.AutocleanInterval,
		PollInterval:      cfg.PollInterval,
	}
	switch cfg.Storage {
	case "memory":
		return NewMemoryQueues(opts), func() error { return nil }, nil
	case "redis":
		client, err := NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisQueues(client, opts), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown review queue storage %q", cfg.Storage)
	}
}

// NewRedisClient accepts either host:port or a redis:// URL.
func NewRedisClient(cfg configuration.ReviewQueueOptions) (*redis.Client, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse review queue redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisURL, DB: cfg.RedisDB}), nil
}

// poll retries try every interval until it yields an item or timeout passes.
func poll(
	ctx context.Context,
	timeout, interval time.Duration,
	try func(context.Context) (review.Item, bool, error),
) (review.Item, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		item, ok, err := try(ctx)
		if err != nil || ok {
			return item, ok, err
		}
		left := time.Until(deadline)
		if left <= 0 {
			return review.Item{}, false, nil
		}
		wait := min(interval, left)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return review.Item{}, false, ctx.Err()
		case <-t.C:
		}
	}
}
