package repo

import (
	"context"
	"fmt"
	"hash/fnv"
)

// LockKey maps a lock name onto the bigint space of PostgreSQL advisory locks.
func LockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// AdvisoryXactLock blocks until the transaction-scoped advisory lock for name is held.
func AdvisoryXactLock(ctx context.Context, tx Tx, name string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::bigint)`, LockKey(name)); err != nil {
		return fmt.Errorf("advisory lock %s: %w", name, err)
	}
	return nil
}
