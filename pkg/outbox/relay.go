package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}

// Relay claims messages from a task table and hands them to a Dispatcher.
// Messages currently being dispatched can be cancelled by key, either
// directly through Cancel or by a NOTIFY on RelayOptions.RevokeChannel.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions

	m          *metrics
	tableLabel string

	mu       sync.Mutex
	inflight map[string]map[uuid.UUID]context.CancelFunc
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()
	if opts.RevokeChannel != "" {
		if _, err := ParseChannel(opts.RevokeChannel); err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = logrusNop()
	}

	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		m:          getMetrics(),
		tableLabel: TableLabel(table),
		inflight:   make(map[string]map[uuid.UUID]context.CancelFunc),
	}, nil
}

// Run polls the table with opts.Workers concurrent loops until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	var wg sync.WaitGroup
	if r.opts.RevokeChannel != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.listenRevocations(ctx)
		}()
	}

	errs := make(chan error, r.opts.Workers)
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			errs <- r.runLoop(ctx, r.opts.Logger.WithField("worker", worker))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return ctx.Err()
}

// Drain dispatches available messages until none remain and returns how many were handled.
// Messages enqueued by dispatched handlers are picked up in the same call.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.processOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// Cancel cancels every in-flight dispatch for key and reports how many were cancelled.
func (r *Relay) Cancel(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, cancel := range r.inflight[key] {
		cancel()
		n++
	}
	if n > 0 {
		r.m.cancelledTotal.WithLabelValues(r.tableLabel).Add(float64(n))
	}
	return n
}

func (r *Relay) track(key string, id uuid.UUID, cancel context.CancelFunc) func() {
	r.mu.Lock()
	if r.inflight[key] == nil {
		r.inflight[key] = make(map[uuid.UUID]context.CancelFunc)
	}
	r.inflight[key][id] = cancel
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.inflight[key], id)
		if len(r.inflight[key]) == 0 {
			delete(r.inflight, key)
		}
		r.mu.Unlock()
		cancel()
	}
}

func (r *Relay) runLoop(ctx context.Context, log *logrus.Entry) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx); err != nil {
				log.WithError(err).Debug("outbox: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(r.opts.ObserveQueueDepthEvery)
		}

		if _, err := r.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

func (r *Relay) listenRevocations(ctx context.Context) {
	for ctx.Err() == nil {
		if err := r.listenOnce(ctx); err != nil && ctx.Err() == nil {
			r.opts.Logger.WithError(err).WithField("channel", r.opts.RevokeChannel).Warn("outbox: revoke listener failed")
			select {
			case <-ctx.Done():
			case <-time.After(r.opts.PollInterval):
			}
		}
	}
}

func (r *Relay) listenOnce(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{r.opts.RevokeChannel}.Sanitize()); err != nil {
		return fmt.Errorf("outbox listen: %w", err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		cancelled := r.Cancel(n.Payload)
		r.opts.Logger.WithFields(logrus.Fields{
			"key":       n.Payload,
			"cancelled": cancelled,
		}).Info("outbox: revocation received")
	}
}

type claimed struct {
	ID       uuid.UUID
	Key      string
	Topic    string
	Payload  []byte
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

func (c claimed) fields(table string) logrus.Fields {
	return logrus.Fields{
		"table":    table,
		"key":      c.Key,
		"topic":    c.Topic,
		"event_id": c.EventID.String(),
		"sequence": c.Sequence,
		"attempts": c.Attempts,
	}
}

func (r *Relay) processOnce(ctx context.Context) (int, error) {
	now := time.Now()
	batch, err := r.claim(ctx, now, now.Add(-r.opts.LockTTL))
	if err != nil {
		return 0, err
	}

	for _, c := range batch {
		r.dispatchOne(ctx, c)
	}
	return len(batch), nil
}

func (r *Relay) dispatchOne(ctx context.Context, c claimed) {
	dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	untrack := r.track(c.Key, c.ID, cancel)

	start := time.Now()
	err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
		Meta: Meta{
			Table:    r.table,
			Key:      c.Key,
			Topic:    c.Topic,
			EventID:  c.EventID,
			Sequence: c.Sequence,
			Attempts: c.Attempts,
		},
		Payload: c.Payload,
	})
	untrack()
	latency := time.Since(start)

	log := r.opts.Logger.WithFields(c.fields(r.tableLabel))
	if err == nil {
		r.recordDispatch(c.Topic, "success", latency)
		if ackErr := r.ack(ctx, c.ID); ackErr != nil {
			log.WithError(ackErr).Warn("outbox: ack failed")
		}
		return
	}

	r.recordDispatch(c.Topic, "failure", latency)
	log.WithError(err).Warn("outbox: dispatch failed")
	lastErr := truncateError(err, r.opts.LastErrorMaxLen)

	if c.Attempts >= r.opts.MaxAttempts {
		r.m.deadTotal.WithLabelValues(r.tableLabel, c.Topic).Inc()
		if deadErr := r.release(ctx, c.ID, lastErr, time.Now()); deadErr != nil {
			log.WithError(deadErr).Warn("outbox: dead update failed")
		}
		return
	}

	next := time.Now().Add(backoff(c.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
	if nackErr := r.release(ctx, c.ID, lastErr, next); nackErr != nil {
		log.WithError(nackErr).Warn("outbox: nack failed")
	}
}

func (r *Relay) claim(ctx context.Context, now, lockCutoff time.Time) ([]claimed, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tableName := r.table.Sanitize()
	q := fmt.Sprintf(
		`SELECT id, key, topic, payload, event_id, sequence, attempts
		   FROM %s
		  WHERE published_at IS NULL
		    AND available_at <= $1
		    AND attempts < $2
		    AND (locked_at IS NULL OR locked_at < $3)
		  ORDER BY available_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`,
		tableName,
	)
	rows, err := tx.Query(ctx, q, now, r.opts.MaxAttempts, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox claim select: %w", err)
	}

	var items []claimed
	var ids []uuid.UUID
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.Key, &c.Topic, &c.Payload, &c.EventID, &c.Sequence, &c.Attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		c.Attempts++
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}

	if len(ids) > 0 {
		update := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, tableName)
		if _, err := tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return nil, fmt.Errorf("outbox claim update: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Relay) ack(ctx context.Context, id uuid.UUID) error {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET published_at = now(),
		        locked_at = NULL,
		        last_error = NULL
		  WHERE id = $1 AND published_at IS NULL`,
		r.table.Sanitize(),
	)
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("outbox ack: %w", err)
	}
	return nil
}

// release unlocks a failed message. Revoked messages are already published and stay untouched.
func (r *Relay) release(ctx context.Context, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET locked_at = NULL,
		        last_error = $2,
		        available_at = $3
		  WHERE id = $1 AND published_at IS NULL`,
		r.table.Sanitize(),
	)
	if _, err := r.pool.Exec(ctx, q, id, lastError, nextAvailable); err != nil {
		return fmt.Errorf("outbox release: %w", err)
	}
	return nil
}

func (r *Relay) observeQueueDepth(ctx context.Context) error {
	q := fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		   FROM %s WHERE published_at IS NULL`,
		r.table.Sanitize(),
	)
	var pending, locked int64
	if err := r.pool.QueryRow(ctx, q).Scan(&pending, &locked); err != nil {
		return fmt.Errorf("outbox queue depth: %w", err)
	}
	r.m.pending.WithLabelValues(r.tableLabel).Set(float64(pending))
	r.m.locked.WithLabelValues(r.tableLabel).Set(float64(locked))
	return nil
}

func (r *Relay) recordDispatch(topic, result string, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(r.tableLabel, topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.tableLabel, topic, result).Observe(latency.Seconds())
}
