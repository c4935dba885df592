package handlers

import (
	"context"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/events"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

// TransitionHandler starts the stage chain of every fired transition.
type TransitionHandler struct {
	enqueuer services.StageEnqueuer
}

func NewTransitionHandler(enqueuer services.StageEnqueuer) *TransitionHandler {
	return &TransitionHandler{enqueuer: enqueuer}
}

func RegisterTransitionHandlers(app application.Application, enqueuer services.StageEnqueuer) *TransitionHandler {
	handler := NewTransitionHandler(enqueuer)
	app.EventPublisher().Subscribe(handler.OnStatusChanged)
	return handler
}

// OnStatusChanged runs inside the transaction that changed the status, so
// the first step commits with the transition or not at all.
func (h *TransitionHandler) OnStatusChanged(ctx context.Context, ev *events.StatusChangedV1) error {
	if h == nil || h.enqueuer == nil || ev == nil {
		return nil
	}
	task, ok := events.NewStageTask(ev.FileID, ev.Transition)
	if !ok {
		return nil
	}
	composables.UseLogger(ctx).WithField("file_id", ev.FileID).
		WithField("transition", ev.Transition).
		WithField("first_step", task.Current()).
		Debug("enqueueing stage chain")
	return h.enqueuer.Enqueue(ctx, task)
}
