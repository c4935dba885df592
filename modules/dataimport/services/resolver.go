package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

// reviewTransition is fired once the review of kind is finished.
func reviewTransition(kind review.Kind) (upload.Transition, error) {
	switch kind {
	case review.KindRespondingAgency:
		return upload.SelectUnseenParentEmployer, nil
	case review.KindParentEmployer:
		return upload.SelectUnseenChildEmployer, nil
	case review.KindChildEmployer:
		return upload.SelectInvalidSalary, nil
	default:
		return "", fmt.Errorf("%w: %q", review.ErrUnknownKind, kind)
	}
}

// Resolver finds the raw names of a file that match no canonical alias and
// hands them to the review queues.
type Resolver struct {
	stage  *persistence.StageRepository
	queues review.Queues
}

func NewResolver(stage *persistence.StageRepository, queues review.Queues) *Resolver {
	return &Resolver{stage: stage, queues: queues}
}

func (r *Resolver) Unseen(ctx context.Context, file *upload.File, kind review.Kind) ([]review.Candidate, error) {
	switch kind {
	case review.KindRespondingAgency:
		return r.stage.UnseenAgencies(ctx, file.ID)
	case review.KindParentEmployer:
		return r.stage.UnseenUnits(ctx, file.ID)
	case review.KindChildEmployer:
		return r.stage.UnseenDepartments(ctx, file.ID, file.UploadID)
	default:
		return nil, fmt.Errorf("%w: %q", review.ErrUnknownKind, kind)
	}
}

// SelectUnseen enqueues the unseen candidates of kind and returns how many
// the file has. Item ids are stable, so a re-run enqueues nothing new.
func (r *Resolver) SelectUnseen(ctx context.Context, file *upload.File, kind review.Kind) (int, error) {
	candidates, err := r.Unseen(ctx, file, kind)
	if err != nil {
		return 0, err
	}
	q := r.queues.Queue(file.ID, kind)
	for _, c := range candidates {
		if _, err := q.Enqueue(ctx, c); err != nil {
			return 0, fmt.Errorf("enqueue %s candidate %q: %w", kind, c.Label(), err)
		}
	}
	recordReviewDepth(kind, int64(len(candidates)))
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component":  "review",
		"file_id":    file.ID,
		"kind":       kind,
		"candidates": len(candidates),
	}).Info("selected unseen names")
	return len(candidates), nil
}
