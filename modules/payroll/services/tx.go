package services

import (
	"context"

	"github.com/iota-uz/payroll-reconciler/pkg/composables"
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
