package services

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/events"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/outbox"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

// StageEnqueuer schedules a stage step in the transaction bound to ctx.
type StageEnqueuer interface {
	Enqueue(ctx context.Context, task events.StageTaskV1) error
}

type OutboxEnqueuer struct {
	publisher pkgoutbox.Publisher
	table     pgx.Identifier
}

func NewOutboxEnqueuer(publisher pkgoutbox.Publisher, table pgx.Identifier) *OutboxEnqueuer {
	return &OutboxEnqueuer{publisher: publisher, table: table}
}

func (e *OutboxEnqueuer) Enqueue(ctx context.Context, task events.StageTaskV1) error {
	tx, err := composables.UseStrictTx(ctx)
	if err != nil {
		return err
	}
	msg, err := outbox.Message(task)
	if err != nil {
		return err
	}
	_, err = e.publisher.Enqueue(ctx, tx, e.table, msg)
	return err
}

func (e *OutboxEnqueuer) Table() pgx.Identifier {
	return e.table
}
