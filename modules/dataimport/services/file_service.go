package services

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

// FileStatus is an operator view of one file.
type FileStatus struct {
	File      *upload.File
	Tasks     pkgoutbox.TaskState
	Counts    persistence.StageCounts
	Remaining map[review.Kind]int64
}

type FileService struct {
	files         upload.Repository
	stage         *persistence.StageRepository
	queues        review.Queues
	tasks         pgx.Identifier
	revokeChannel string
}

func NewFileService(
	files upload.Repository,
	stage *persistence.StageRepository,
	queues review.Queues,
	tasks pgx.Identifier,
	revokeChannel string,
) *FileService {
	return &FileService{
		files:         files,
		stage:         stage,
		queues:        queues,
		tasks:         tasks,
		revokeChannel: revokeChannel,
	}
}

func (s *FileService) List(ctx context.Context) ([]*upload.File, error) {
	return s.files.ListFiles(ctx)
}

func (s *FileService) Status(ctx context.Context, fileID int64) (*FileStatus, error) {
	st, err := inTx(ctx, func(txCtx context.Context) (*FileStatus, error) {
		file, err := s.files.GetFile(txCtx, fileID)
		if err != nil {
			return nil, err
		}
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		tasks, err := pkgoutbox.State(txCtx, tx, s.tasks, file.Key())
		if err != nil {
			return nil, err
		}
		counts, err := s.stage.Counts(txCtx, fileID)
		if err != nil {
			return nil, err
		}
		return &FileStatus{File: file, Tasks: tasks, Counts: counts}, nil
	})
	if err != nil {
		return nil, err
	}
	st.Remaining = make(map[review.Kind]int64, len(review.Kinds()))
	for _, k := range review.Kinds() {
		n, err := s.queues.Queue(fileID, k).RemainingCount(ctx)
		if err != nil {
			return nil, err
		}
		st.Remaining[k] = n
	}
	return st, nil
}

// Resume makes the file's dead stages runnable again.
func (s *FileService) Resume(ctx context.Context, fileID int64) (int64, error) {
	return inTx(ctx, func(txCtx context.Context) (int64, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return 0, err
		}
		return pkgoutbox.Retry(txCtx, tx, s.tasks, upload.FileKey(fileID))
	})
}

// DeleteFile revokes the file's queued stages and cancels running ones,
// then removes the file with its derived rows, raw tables and review queues.
func (s *FileService) DeleteFile(ctx context.Context, fileID int64) (bool, error) {
	log := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "dataimport",
		"file_id":   fileID,
	})

	revoked, err := inTx(ctx, func(txCtx context.Context) (int64, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return 0, err
		}
		return pkgoutbox.Revoke(txCtx, tx, s.tasks, s.revokeChannel, upload.FileKey(fileID))
	})
	if err != nil {
		return false, err
	}
	if revoked == 0 {
		log.Debug("no pending stages to revoke")
	}

	deleted, err := inTx(ctx, func(txCtx context.Context) (bool, error) {
		if err := lockFile(txCtx, fileID); err != nil {
			return false, err
		}
		deleted, err := s.files.Delete(txCtx, fileID)
		if err != nil {
			return false, mapPgErrorToServiceError(err)
		}
		if err := staging.Drop(txCtx, fileID); err != nil {
			return false, err
		}
		return deleted, nil
	})
	if err != nil {
		return false, err
	}

	for _, k := range review.Kinds() {
		if err := s.queues.Queue(fileID, k).Purge(ctx); err != nil {
			return deleted, err
		}
	}
	log.WithFields(logrus.Fields{"revoked": revoked, "deleted": deleted}).Info("file deleted")
	return deleted, nil
}
