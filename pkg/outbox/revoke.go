package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/pkg/repo"
)

// RevokedError is stored as last_error on tasks removed by Revoke.
const RevokedError = "revoked"

// Revoke marks every pending task for key as published without dispatching it
// and notifies relays listening on channel to cancel in-flight work for key.
// The notification is delivered when tx commits.
func Revoke(ctx context.Context, tx repo.Tx, table pgx.Identifier, channel, key string) (int64, error) {
	if key == "" {
		return 0, invalidConfig("key is required")
	}
	q := fmt.Sprintf(
		`UPDATE %s
		    SET published_at = now(),
		        locked_at = NULL,
		        last_error = $2
		  WHERE key = $1 AND published_at IS NULL`,
		table.Sanitize(),
	)
	tag, err := tx.Exec(ctx, q, key, RevokedError)
	if err != nil {
		return 0, fmt.Errorf("outbox revoke: %w", err)
	}
	if channel != "" {
		if _, err := ParseChannel(channel); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, key); err != nil {
			return 0, fmt.Errorf("outbox revoke notify: %w", err)
		}
	}
	getMetrics().revokedTotal.WithLabelValues(TableLabel(table)).Add(float64(tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// Retry makes failed tasks for key available for another attempt.
// Revoked tasks are not retried.
func Retry(ctx context.Context, tx repo.Tx, table pgx.Identifier, key string) (int64, error) {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET attempts = 0,
		        available_at = now(),
		        locked_at = NULL
		  WHERE key = $1
		    AND published_at IS NULL
		    AND last_error IS NOT NULL`,
		table.Sanitize(),
	)
	tag, err := tx.Exec(ctx, q, key)
	if err != nil {
		return 0, fmt.Errorf("outbox retry: %w", err)
	}
	return tag.RowsAffected(), nil
}

// TaskState summarizes the tasks stored for a key.
type TaskState struct {
	Pending   int64
	Failed    int64
	LastError string
}

func State(ctx context.Context, tx repo.Tx, table pgx.Identifier, key string) (TaskState, error) {
	q := fmt.Sprintf(
		`SELECT count(*) FILTER (WHERE last_error IS NULL),
		        count(*) FILTER (WHERE last_error IS NOT NULL),
		        COALESCE((array_agg(last_error ORDER BY sequence DESC) FILTER (WHERE last_error IS NOT NULL))[1], '')
		   FROM %s
		  WHERE key = $1 AND published_at IS NULL`,
		table.Sanitize(),
	)
	var s TaskState
	if err := tx.QueryRow(ctx, q, key).Scan(&s.Pending, &s.Failed, &s.LastError); err != nil {
		return TaskState{}, fmt.Errorf("outbox state: %w", err)
	}
	return s, nil
}
