package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
)

type memoryItem struct {
	candidate  review.Candidate
	checkedOut bool
	since      time.Time
}

// MemoryQueue is a single-process review queue.
type MemoryQueue struct {
	mu        sync.Mutex
	items     map[string]*memoryItem
	pending   []string
	autoclean time.Duration
	poll      time.Duration
	now       Clock
}

func (q *MemoryQueue) Enqueue(_ context.Context, c review.Candidate) (string, error) {
	if _, err := review.Encode(c); err != nil {
		return "", err
	}
	id := review.ItemID(c)

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[id]; ok {
		return id, nil
	}
	q.items[id] = &memoryItem{candidate: c}
	q.pending = append(q.pending, id)
	return id, nil
}

func (q *MemoryQueue) Checkout(ctx context.Context, timeout time.Duration) (review.Item, bool, error) {
	return poll(ctx, timeout, q.poll, q.tryCheckout)
}

func (q *MemoryQueue) tryCheckout(context.Context) (review.Item, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.reclaim(now)
	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		it, ok := q.items[id]
		if !ok {
			continue
		}
		it.checkedOut = true
		it.since = now
		return review.Item{ID: id, Candidate: it.candidate}, true, nil
	}
	return review.Item{}, false, nil
}

// reclaim returns items checked out for longer than autoclean, oldest first.
func (q *MemoryQueue) reclaim(now time.Time) {
	cutoff := now.Add(-q.autoclean)
	var expired []string
	for id, it := range q.items {
		if it.checkedOut && !it.since.After(cutoff) {
			expired = append(expired, id)
		}
	}
	slices.SortFunc(expired, func(a, b string) int {
		return q.items[a].since.Compare(q.items[b].since)
	})
	for _, id := range expired {
		q.items[id].checkedOut = false
		q.pending = append(q.pending, id)
	}
}

func (q *MemoryQueue) Acknowledge(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, id)
	q.pending = slices.DeleteFunc(q.pending, func(p string) bool { return p == id })
	return nil
}

func (q *MemoryQueue) Requeue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", review.ErrItemNotFound, id)
	}
	if !it.checkedOut {
		return nil
	}
	it.checkedOut = false
	q.pending = append(q.pending, id)
	return nil
}

func (q *MemoryQueue) RemainingCount(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *MemoryQueue) Purge(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string]*memoryItem)
	q.pending = nil
	return nil
}

type queueKey struct {
	fileID int64
	kind   review.Kind
}

type MemoryQueues struct {
	mu     sync.Mutex
	queues map[queueKey]*MemoryQueue
	opts   Options
}

func NewMemoryQueues(opts Options) *MemoryQueues {
	return &MemoryQueues{
		queues: make(map[queueKey]*MemoryQueue),
		opts:   opts.withDefaults(),
	}
}

func (m *MemoryQueues) Queue(fileID int64, kind review.Kind) review.Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := queueKey{fileID: fileID, kind: kind}
	q, ok := m.queues[k]
	if !ok {
		q = &MemoryQueue{
			items:     make(map[string]*memoryItem),
			autoclean: m.opts.AutocleanInterval,
			poll:      m.opts.PollInterval,
			now:       m.opts.Clock,
		}
		m.queues[k] = q
	}
	return q
}
