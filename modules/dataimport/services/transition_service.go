package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/events"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/eventbus"
)

// TransitionService is the only writer of a file's status.
type TransitionService struct {
	repo  upload.Repository
	bus   eventbus.EventBus
	clock func() time.Time
}

func NewTransitionService(repo upload.Repository, bus eventbus.EventBus) *TransitionService {
	return &TransitionService{
		repo:  repo,
		bus:   bus,
		clock: time.Now,
	}
}

// Fire locks the file row, applies t and publishes StatusChangedV1 in the
// same transaction. Subscribers enqueue follow-up work with that transaction,
// so a failing subscriber rolls the transition back.
func (s *TransitionService) Fire(ctx context.Context, fileID int64, t upload.Transition) (*upload.File, error) {
	return inTx(ctx, func(txCtx context.Context) (*upload.File, error) {
		file, err := s.repo.LockFile(txCtx, fileID)
		if err != nil {
			return nil, err
		}
		from := file.Status
		to, err := from.Fire(t)
		if err != nil {
			return nil, err
		}
		if err := s.repo.SetStatus(txCtx, fileID, to); err != nil {
			return nil, mapPgErrorToServiceError(err)
		}
		file.Status = to

		err = s.bus.PublishE(txCtx, &events.StatusChangedV1{
			FileID:     fileID,
			Transition: t,
			From:       from,
			To:         to,
			At:         s.clock(),
		})
		if errors.Is(err, eventbus.ErrNoSubscribers) {
			composables.UseLogger(txCtx).WithField("file_id", fileID).Debug("status changed without subscribers")
		} else if err != nil {
			return nil, err
		}

		recordTransition(t)
		composables.UseLogger(txCtx).WithFields(logrus.Fields{
			"component":  "dataimport",
			"file_id":    fileID,
			"transition": t,
			"from":       from,
			"to":         to,
		}).Info("file status changed")
		return file, nil
	})
}

// FireFrom fires t only when the file is in t's source status and reports
// whether it did.
func (s *TransitionService) FireFrom(ctx context.Context, fileID int64, t upload.Transition) (bool, error) {
	return inTx(ctx, func(txCtx context.Context) (bool, error) {
		file, err := s.repo.LockFile(txCtx, fileID)
		if err != nil {
			return false, err
		}
		if file.Status != t.Source() {
			composables.UseLogger(txCtx).WithFields(logrus.Fields{
				"component":  "dataimport",
				"file_id":    fileID,
				"transition": t,
				"status":     file.Status,
			}).Warn("file not in source status, transition skipped")
			return false, nil
		}
		if _, err := s.Fire(txCtx, fileID, t); err != nil {
			return false, err
		}
		return true, nil
	})
}
