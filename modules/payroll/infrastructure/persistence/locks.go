package persistence

import (
	"context"

	"github.com/iota-uz/payroll-reconciler/pkg/repo"
)

// CanonicalLock serializes every write that creates agencies, units or departments.
const CanonicalLock = "payroll:canonical"

func LockCanonical(ctx context.Context, tx repo.Tx) error {
	return repo.AdvisoryXactLock(ctx, tx, CanonicalLock)
}
