// Package outbox routes stage messages from the task table to the stage runner.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/events"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

var (
	ErrUnknownTopic    = serrors.NewError("IMPORT_UNKNOWN_TOPIC", "unknown task topic")
	ErrMalformedTask   = serrors.NewError("IMPORT_MALFORMED_TASK", "malformed stage task")
	ErrTaskKeyMismatch = serrors.NewError("IMPORT_TASK_KEY_MISMATCH", "task key does not match its file")
)

type StageHandler interface {
	Run(ctx context.Context, task events.StageTaskV1) error
}

type Dispatcher struct {
	stages StageHandler
}

func NewDispatcher(stages StageHandler) *Dispatcher {
	return &Dispatcher{stages: stages}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg pkgoutbox.DispatchedMessage) error {
	if msg.Meta.Topic != events.StageTopic {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, msg.Meta.Topic)
	}
	task, err := Decode(msg.Payload)
	if err != nil {
		return err
	}
	if task.Key() != msg.Meta.Key {
		return fmt.Errorf("%w: key %q, file %d", ErrTaskKeyMismatch, msg.Meta.Key, task.FileID)
	}
	return d.stages.Run(ctx, task)
}

func Decode(payload []byte) (events.StageTaskV1, error) {
	var task events.StageTaskV1
	if err := json.Unmarshal(payload, &task); err != nil {
		return events.StageTaskV1{}, fmt.Errorf("%w: %v", ErrMalformedTask, err)
	}
	if task.FileID <= 0 || task.Current() == "" {
		return events.StageTaskV1{}, fmt.Errorf("%w: file %d step %d of %d", ErrMalformedTask, task.FileID, task.Step, len(task.Steps))
	}
	return task, nil
}

// Message wraps task for the task table.
func Message(task events.StageTaskV1) (pkgoutbox.Message, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return pkgoutbox.Message{}, err
	}
	return pkgoutbox.Message{
		Key:     task.Key(),
		Topic:   events.StageTopic,
		EventID: task.EventID(),
		Payload: payload,
	}, nil
}
