package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/pkg/configuration"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name   string
	queues func(t *testing.T, clock *fakeClock) review.Queues
}

func backends() []backend {
	return []backend{
		{
			name: "memory",
			queues: func(t *testing.T, clock *fakeClock) review.Queues {
				return NewMemoryQueues(Options{AutocleanInterval: 150 * time.Second, PollInterval: 10 * time.Millisecond, Clock: clock.Now})
			},
		},
		{
			name: "redis",
			queues: func(t *testing.T, clock *fakeClock) review.Queues {
				t.Helper()
				cfg := configuration.Use().ReviewQueue
				client, err := NewRedisClient(cfg)
				require.NoError(t, err)
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := client.Ping(ctx).Err(); err != nil {
					_ = client.Close()
					t.Skipf("redis is not reachable: %v", err)
				}
				t.Cleanup(func() { _ = client.Close() })
				return NewRedisQueues(client, Options{
					KeyPrefix:         "payroll:review:test:" + uuid.NewString(),
					AutocleanInterval: 150 * time.Second,
					PollInterval:      10 * time.Millisecond,
					Clock:             clock.Now,
				})
			},
		},
	}
}

func TestQueue_Contract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("checkout, acknowledge and autoclean", func(t *testing.T) {
				clock := newFakeClock()
				q := b.queues(t, clock).Queue(1, review.KindRespondingAgency)
				t.Cleanup(func() { _ = q.Purge(ctx) })

				for _, name := range []string{"IDOT", "ISBE", "IBHE"} {
					_, err := q.Enqueue(ctx, review.RespondingAgencyCandidate{Name: name})
					require.NoError(t, err)
				}
				for i := 0; i < 2; i++ {
					item, ok, err := q.Checkout(ctx, 0)
					require.NoError(t, err)
					require.True(t, ok)
					require.NoError(t, q.Acknowledge(ctx, item.ID))
				}

				third, ok, err := q.Checkout(ctx, 0)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, review.RespondingAgencyCandidate{Name: "IBHE"}, third.Candidate)

				_, ok, err = q.Checkout(ctx, 0)
				require.NoError(t, err)
				require.False(t, ok)

				clock.Advance(151 * time.Second)
				n, err := q.RemainingCount(ctx)
				require.NoError(t, err)
				require.Equal(t, int64(1), n)

				again, ok, err := q.Checkout(ctx, 0)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, third.ID, again.ID)
			})

			t.Run("enqueue is idempotent", func(t *testing.T) {
				q := b.queues(t, newFakeClock()).Queue(2, review.KindChildEmployer)
				t.Cleanup(func() { _ = q.Purge(ctx) })

				c := review.ChildEmployerCandidate{Name: "Police", Parent: "Skokie"}
				id1, err := q.Enqueue(ctx, c)
				require.NoError(t, err)
				id2, err := q.Enqueue(ctx, c)
				require.NoError(t, err)
				require.Equal(t, id1, id2)

				n, err := q.RemainingCount(ctx)
				require.NoError(t, err)
				require.Equal(t, int64(1), n)
			})

			t.Run("requeue", func(t *testing.T) {
				q := b.queues(t, newFakeClock()).Queue(3, review.KindParentEmployer)
				t.Cleanup(func() { _ = q.Purge(ctx) })

				_, err := q.Enqueue(ctx, review.ParentEmployerCandidate{Name: "Skokie"})
				require.NoError(t, err)
				item, ok, err := q.Checkout(ctx, 0)
				require.NoError(t, err)
				require.True(t, ok)

				require.NoError(t, q.Requeue(ctx, item.ID))
				require.NoError(t, q.Requeue(ctx, item.ID))
				require.ErrorIs(t, q.Requeue(ctx, "missing"), review.ErrItemNotFound)

				back, ok, err := q.Checkout(ctx, 0)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, item.ID, back.ID)

				_, ok, err = q.Checkout(ctx, 0)
				require.NoError(t, err)
				require.False(t, ok)
			})

			t.Run("checkout waits for an item", func(t *testing.T) {
				q := b.queues(t, newFakeClock()).Queue(4, review.KindParentEmployer)
				t.Cleanup(func() { _ = q.Purge(ctx) })

				go func() {
					time.Sleep(30 * time.Millisecond)
					_, _ = q.Enqueue(ctx, review.ParentEmployerCandidate{Name: "Evanston"})
				}()
				item, ok, err := q.Checkout(ctx, 2*time.Second)
				require.NoError(t, err)
				require.True(t, ok)
				require.Equal(t, review.ParentEmployerCandidate{Name: "Evanston"}, item.Candidate)
			})

			t.Run("queues are isolated and purge", func(t *testing.T) {
				qs := b.queues(t, newFakeClock())
				a := qs.Queue(5, review.KindParentEmployer)
				other := qs.Queue(6, review.KindParentEmployer)
				t.Cleanup(func() { _ = other.Purge(ctx) })

				_, err := a.Enqueue(ctx, review.ParentEmployerCandidate{Name: "Skokie"})
				require.NoError(t, err)
				n, err := other.RemainingCount(ctx)
				require.NoError(t, err)
				require.Zero(t, n)

				require.NoError(t, a.Purge(ctx))
				n, err = a.RemainingCount(ctx)
				require.NoError(t, err)
				require.Zero(t, n)
			})
		})
	}
}

func TestNew_MemoryStorage(t *testing.T) {
	t.Parallel()

	qs, closeFn, err := New(configuration.ReviewQueueOptions{Storage: "memory"})
	require.NoError(t, err)
	require.NoError(t, closeFn())
	require.IsType(t, &MemoryQueues{}, qs)

	_, _, err = New(configuration.ReviewQueueOptions{Storage: "kafka"})
	require.Error(t, err)
}
