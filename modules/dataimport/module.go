package dataimport

import (
	"reflect"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/handlers"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/outbox"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/queue"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/search"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	payrollservices "github.com/iota-uz/payroll-reconciler/modules/payroll/services"
	"github.com/iota-uz/payroll-reconciler/pkg/application"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

const DefaultTasksTable = "public.data_import_outbox"

type ModuleOptions struct {
	Queues  review.Queues
	Indexer search.Indexer
	// Enqueuer replaces the task table, e.g. with a fake in tests.
	Enqueuer services.StageEnqueuer

	TasksTable    string
	RevokeChannel string
	// ResolveUpload maps a stored upload path to a path on disk.
	ResolveUpload func(ref string) string
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

// Module wires the import pipeline. It needs the payroll module registered
// first.
type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	table, err := pkgoutbox.ParseIdentifier(firstNonEmpty(m.opts.TasksTable, DefaultTasksTable))
	if err != nil {
		return err
	}
	if m.opts.RevokeChannel != "" {
		if _, err := pkgoutbox.ParseChannel(m.opts.RevokeChannel); err != nil {
			return err
		}
	}

	queues := m.opts.Queues
	if queues == nil {
		queues = queue.NewMemoryQueues(queue.Options{})
	}
	indexer := m.opts.Indexer
	if indexer == nil {
		indexer = search.NewNopIndexer(nil)
	}
	enqueuer := m.opts.Enqueuer
	if enqueuer == nil {
		enqueuer = services.NewOutboxEnqueuer(pkgoutbox.NewPublisher(), table)
	}

	if _, ok := app.Services()[reflect.TypeOf(payrollservices.AliasService{})]; !ok {
		return errPayrollMissing
	}
	aliases := application.GetService[payrollservices.AliasService](app)
	classification := application.GetService[payrollservices.ClassificationService](app)

	files := persistence.NewUploadRepository()
	stage := persistence.NewStageRepository()
	transitions := services.NewTransitionService(files, app.EventPublisher())
	resolver := services.NewResolver(stage, queues)
	materializer := services.NewMaterializer(stage, classification)
	runner := services.NewStageRunner(services.StageRunnerDeps{
		Files:        files,
		Transitions:  transitions,
		Resolver:     resolver,
		Materializer: materializer,
		Enqueuer:     enqueuer,
		Stage:        stage,
		Indexer:      indexer,
		Resolve:      m.opts.ResolveUpload,
	})

	app.RegisterServices(
		transitions,
		resolver,
		materializer,
		runner,
		outbox.NewDispatcher(runner),
		services.NewUploadService(files, transitions, m.opts.ResolveUpload),
		services.NewReviewService(files, stage, aliases, transitions, queues, table),
		services.NewFileService(files, stage, queues, table, m.opts.RevokeChannel),
	)
	handlers.RegisterTransitionHandlers(app, enqueuer)
	return nil
}

func (m *Module) Name() string {
	return "dataimport"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
