//go:build integration

package outbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	mu        sync.Mutex
	failTopic string
	calls     []DispatchedMessage
}

func (d *stubDispatcher) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	d.mu.Lock()
	d.calls = append(d.calls, msg)
	d.mu.Unlock()
	if msg.Meta.Topic == d.failTopic {
		return errors.New("poison")
	}
	return nil
}

func newTaskTable(t *testing.T) (context.Context, *pgxpool.Pool, pgx.Identifier) {
	t.Helper()

	dsn := os.Getenv("OUTBOX_TEST_DSN")
	if dsn == "" {
		t.Skip("OUTBOX_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tableName := "tasks_it_" + uuid.NewString()[:8]
	table, err := ParseIdentifier("public." + tableName)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS pgcrypto`)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE %s (
  id           UUID        NOT NULL DEFAULT gen_random_uuid() PRIMARY KEY,
  key          TEXT        NOT NULL,
  topic        TEXT        NOT NULL,
  payload      JSONB       NOT NULL,
  event_id     UUID        NOT NULL UNIQUE,
  sequence     BIGSERIAL   NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  published_at TIMESTAMPTZ NULL,
  attempts     INT         NOT NULL DEFAULT 0,
  available_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  locked_at    TIMESTAMPTZ NULL,
  last_error   TEXT        NULL
)`, table.Sanitize()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table.Sanitize()))
	})
	return ctx, pool, table
}

func enqueue(t *testing.T, ctx context.Context, pool *pgxpool.Pool, table pgx.Identifier, msgs ...Message) {
	t.Helper()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	p := NewPublisher()
	for _, m := range msgs {
		_, err := p.Enqueue(ctx, tx, table, m)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
}

func TestRelay_Integration_DrainAndDead(t *testing.T) {
	ctx, pool, table := newTaskTable(t)

	eventFail, eventOK := uuid.New(), uuid.New()
	enqueue(t, ctx, pool, table,
		Message{Key: "file:1", Topic: "test.fail.v1", EventID: eventFail, Payload: []byte(`{"x":1}`)},
		Message{Key: "file:1", Topic: "test.ok.v1", EventID: eventOK, Payload: []byte(`{"y":2}`)},
	)

	t.Run("enqueue is idempotent by event_id", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback(ctx) }()

		evt := uuid.New()
		p := NewPublisher()
		seq1, err := p.Enqueue(ctx, tx, table, Message{Key: "file:2", Topic: "test.ok.v1", EventID: evt, Payload: []byte(`{}`)})
		require.NoError(t, err)
		seq2, err := p.Enqueue(ctx, tx, table, Message{Key: "file:2", Topic: "test.ok.v1", EventID: evt, Payload: []byte(`{}`)})
		require.NoError(t, err)
		require.Equal(t, seq1, seq2)
	})

	dispatcher := &stubDispatcher{failTopic: "test.fail.v1"}
	relay, err := NewRelay(pool, table, dispatcher, RelayOptions{
		BatchSize:              10,
		LockTTL:                time.Minute,
		DispatchTimeout:        10 * time.Second,
		MaxAttempts:            1,
		ObserveQueueDepthEvery: time.Hour,
	})
	require.NoError(t, err)

	n, err := relay.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, dispatcher.calls, 2)

	var published bool
	require.NoError(t, pool.QueryRow(ctx, fmt.Sprintf(`SELECT published_at IS NOT NULL FROM %s WHERE event_id=$1`, table.Sanitize()), eventOK).Scan(&published))
	require.True(t, published)

	state, err := State(ctx, pool, table, "file:1")
	require.NoError(t, err)
	require.Equal(t, int64(0), state.Pending)
	require.Equal(t, int64(1), state.Failed)
	require.Equal(t, "poison", state.LastError)

	// a dead message is never claimed again
	n, err = relay.Drain(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	retried, err := Retry(ctx, pool, table, "file:1")
	require.NoError(t, err)
	require.Equal(t, int64(1), retried)

	n, err = relay.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRelay_Integration_Revoke(t *testing.T) {
	ctx, pool, table := newTaskTable(t)

	enqueue(t, ctx, pool, table,
		Message{Key: "file:7", Topic: "test.ok.v1", EventID: uuid.New(), Payload: []byte(`{}`)},
		Message{Key: "file:8", Topic: "test.ok.v1", EventID: uuid.New(), Payload: []byte(`{}`)},
	)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	revoked, err := Revoke(ctx, tx, table, "tasks_it_revoke", "file:7")
	require.NoError(t, err)
	require.Equal(t, int64(1), revoked)
	require.NoError(t, tx.Commit(ctx))

	dispatcher := &stubDispatcher{}
	relay, err := NewRelay(pool, table, dispatcher, RelayOptions{BatchSize: 10, ObserveQueueDepthEvery: time.Hour})
	require.NoError(t, err)

	n, err := relay.Drain(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "file:8", dispatcher.calls[0].Meta.Key)

	// revoked messages are not retried
	retried, err := Retry(ctx, pool, table, "file:7")
	require.NoError(t, err)
	require.Zero(t, retried)
}

func TestRelay_Integration_CancelInFlight(t *testing.T) {
	ctx, pool, table := newTaskTable(t)

	enqueue(t, ctx, pool, table, Message{Key: "file:9", Topic: "test.slow.v1", EventID: uuid.New(), Payload: []byte(`{}`)})

	started := make(chan struct{})
	relay, err := NewRelay(pool, table, DispatcherFunc(func(ctx context.Context, msg DispatchedMessage) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}), RelayOptions{DispatchTimeout: 20 * time.Second, ObserveQueueDepthEvery: time.Hour})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := relay.Drain(ctx)
		done <- err
	}()

	<-started
	require.Equal(t, 1, relay.Cancel("file:9"))
	require.NoError(t, <-done)
	require.Zero(t, relay.Cancel("file:9"))

	state, err := State(ctx, pool, table, "file:9")
	require.NoError(t, err)
	require.Equal(t, int64(1), state.Failed)
}
