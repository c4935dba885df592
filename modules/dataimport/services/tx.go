package services

import (
	"context"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/repo"
)

// inTx runs fn in the transaction bound to ctx, or in a new one.
func inTx[T any](ctx context.Context, fn func(txCtx context.Context) (T, error)) (T, error) {
	var out T
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		var err error
		out, err = fn(txCtx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// lockFile takes the file's transaction-scoped advisory lock. Stage steps,
// review decisions and deletion all serialize on it.
func lockFile(ctx context.Context, fileID int64) error {
	tx, err := composables.UseStrictTx(ctx)
	if err != nil {
		return err
	}
	return repo.AdvisoryXactLock(ctx, tx, upload.LockName(fileID))
}
