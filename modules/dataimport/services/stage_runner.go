package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/events"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/search"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

var ErrUnknownStep = serrors.NewError("IMPORT_UNKNOWN_STEP", "unknown stage step")

var tracer = otel.Tracer("github.com/iota-uz/payroll-reconciler/modules/dataimport")

type StageRunnerDeps struct {
	Files        upload.Repository
	Transitions  *TransitionService
	Resolver     *Resolver
	Materializer *Materializer
	Enqueuer     StageEnqueuer
	Stage        *persistence.StageRepository
	Indexer      search.Indexer
	// Resolve maps a stored upload path to a path on disk.
	Resolve func(ref string) string
}

// StageRunner executes one queued step of a chain.
type StageRunner struct {
	deps StageRunnerDeps
}

func NewStageRunner(deps StageRunnerDeps) *StageRunner {
	if deps.Resolve == nil {
		deps.Resolve = func(ref string) string { return ref }
	}
	if deps.Indexer == nil {
		deps.Indexer = search.NewNopIndexer(nil)
	}
	if deps.Stage == nil {
		deps.Stage = persistence.NewStageRepository()
	}
	return &StageRunner{deps: deps}
}

// Run executes task's current step under the file lock and enqueues the
// next step of the chain before committing. Tasks of deleted files are
// dropped.
func (r *StageRunner) Run(ctx context.Context, task events.StageTaskV1) (err error) {
	step := task.Current()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "dataimport.stage."+string(step), trace.WithAttributes(
		attribute.Int64("file_id", task.FileID),
		attribute.String("step", string(step)),
		attribute.String("chain_id", task.ChainID.String()),
		attribute.Int("position", task.Step),
	))
	log := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component": "dataimport",
		"file_id":   task.FileID,
		"step":      step,
		"chain_id":  task.ChainID,
	})
	defer func() {
		recordStage(step, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.WithError(err).Error("stage failed")
		}
		span.End()
	}()

	ctx = composables.WithLogger(ctx, log)
	return composables.InTx(ctx, func(txCtx context.Context) error {
		if err := lockFile(txCtx, task.FileID); err != nil {
			return err
		}
		ok, err := r.deps.Files.Exists(txCtx, task.FileID)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("file deleted, dropping stage")
			return nil
		}
		file, err := r.deps.Files.GetFile(txCtx, task.FileID)
		if err != nil {
			return err
		}

		if err := r.runStep(txCtx, file, step, log); err != nil {
			return err
		}

		next, ok := task.Next()
		if !ok {
			return nil
		}
		return r.deps.Enqueuer.Enqueue(txCtx, next)
	})
}

func (r *StageRunner) runStep(ctx context.Context, file *upload.File, step events.Step, log *logrus.Entry) error {
	var (
		n   int64
		err error
	)
	m := r.deps.Materializer
	switch step {
	case events.StepCopyToDatabase:
		n, err = staging.CreateFromFile(ctx, file.ID, r.deps.Resolve(file.Path))
	case events.StepSelectUnseenRespondingAgency:
		return r.selectUnseen(ctx, file, review.KindRespondingAgency)
	case events.StepInsertRespondingAgency:
		n, err = m.InsertAgencies(ctx, file)
	case events.StepSelectUnseenParentEmployer:
		return r.selectUnseen(ctx, file, review.KindParentEmployer)
	case events.StepInsertParentEmployer:
		n, err = m.InsertUnits(ctx, file)
	case events.StepSelectUnseenChildEmployer:
		return r.selectUnseen(ctx, file, review.KindChildEmployer)
	case events.StepInsertChildEmployer:
		n, err = m.InsertDepartments(ctx, file)
	case events.StepInsertPosition:
		n, err = m.InsertPositions(ctx, file)
	case events.StepSelectRawPerson:
		n, err = m.SelectRawPerson(ctx, file)
	case events.StepInsertPerson:
		n, err = m.InsertPersons(ctx, file)
	case events.StepSelectRawJob:
		n, err = m.SelectRawJob(ctx, file)
	case events.StepInsertJob:
		n, err = m.InsertJobs(ctx, file)
	case events.StepInsertSalary:
		n, err = m.InsertSalaries(ctx, file)
	case events.StepFinalize:
		return r.finalize(ctx, file, log)
	case events.StepIndex:
		return r.index(ctx, file, log)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	if err != nil {
		return err
	}
	log.WithField("rows", n).Info("stage done")
	return nil
}

// selectUnseen fires the review transition directly when nothing awaits review.
func (r *StageRunner) selectUnseen(ctx context.Context, file *upload.File, kind review.Kind) error {
	n, err := r.deps.Resolver.SelectUnseen(ctx, file, kind)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	t, err := reviewTransition(kind)
	if err != nil {
		return err
	}
	_, err = r.deps.Transitions.FireFrom(ctx, file.ID, t)
	return err
}

// finalize completes the file and reports raw rows that named no employer.
func (r *StageRunner) finalize(ctx context.Context, file *upload.File, log *logrus.Entry) error {
	counts, err := r.deps.Stage.Counts(ctx, file.ID)
	if err != nil {
		return err
	}
	if counts.Unattributed > 0 {
		recordUnattributed(counts.Unattributed)
		log.WithFields(logrus.Fields{
			"rows":         counts.Raw,
			"unattributed": counts.Unattributed,
		}).Warn("raw rows without employer were not imported")
	}
	_, err = r.deps.Transitions.FireFrom(ctx, file.ID, upload.Finish)
	return err
}

func (r *StageRunner) index(ctx context.Context, file *upload.File, log *logrus.Entry) error {
	if file.Status != upload.StatusComplete {
		log.WithField("status", file.Status).Warn("file not complete, skipping index")
		return nil
	}
	res, err := r.deps.Indexer.Index(ctx, search.IndexRequest{
		FileID:        file.ID,
		UploadID:      file.UploadID,
		ReportingYear: file.ReportingYear,
	})
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"units": res.Units, "salaries": res.Salaries}).Info("file indexed")
	return nil
}
