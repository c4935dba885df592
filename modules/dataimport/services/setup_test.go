package services_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/outbox"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/queue"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/search"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/modules/payroll"
	payrollservices "github.com/iota-uz/payroll-reconciler/modules/payroll/services"
	"github.com/iota-uz/payroll-reconciler/pkg/itf"
	pkgoutbox "github.com/iota-uz/payroll-reconciler/pkg/outbox"
)

var header = []string{
	"responding_agency", "employer", "department", "first_name", "last_name",
	"title", "salary", "extra_pay", "date_started", "data_year",
}

type fixture struct {
	env          *itf.TestEnvironment
	uploads      *services.UploadService
	review       *services.ReviewService
	files        *services.FileService
	transitions  *services.TransitionService
	materializer *services.Materializer
	aliases      *payrollservices.AliasService
	relay        *pkgoutbox.Relay
	indexer      *recordingIndexer
	dir          string
}

// recordingIndexer keeps the search documents built for each indexed file.
type recordingIndexer struct {
	mu       sync.Mutex
	units    map[int64][]search.UnitDoc
	salaries map[int64][]search.SalaryDoc
}

func newRecordingIndexer() *recordingIndexer {
	return &recordingIndexer{
		units:    map[int64][]search.UnitDoc{},
		salaries: map[int64][]search.SalaryDoc{},
	}
}

func (r *recordingIndexer) Index(ctx context.Context, req search.IndexRequest) (search.IndexResult, error) {
	units, err := search.UnitDocuments(ctx, req)
	if err != nil {
		return search.IndexResult{}, err
	}
	salaries, err := search.SalaryDocuments(ctx, req)
	if err != nil {
		return search.IndexResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[req.FileID] = units
	r.salaries[req.FileID] = salaries
	return search.IndexResult{Units: len(units), Salaries: len(salaries)}, nil
}

func (r *recordingIndexer) documents(fileID int64) ([]search.UnitDoc, []search.SalaryDoc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.units[fileID], r.salaries[fileID]
}

func setup(t *testing.T) *fixture {
	t.Helper()

	queues := queue.NewMemoryQueues(queue.Options{})
	indexer := newRecordingIndexer()
	env := itf.NewTestContext().
		WithModules(
			payroll.NewModule(),
			dataimport.NewModule(dataimport.ModuleOptions{
				Queues:        queues,
				Indexer:       indexer,
				RevokeChannel: "payroll_task_revoke",
			}),
		).
		Build(t)

	table, err := pkgoutbox.ParseIdentifier(dataimport.DefaultTasksTable)
	require.NoError(t, err)
	relay, err := pkgoutbox.NewRelay(env.Pool, table, itf.GetService[outbox.Dispatcher](env), pkgoutbox.RelayOptions{
		MaxAttempts: 1,
		BatchSize:   1,
	})
	require.NoError(t, err)

	return &fixture{
		env:          env,
		uploads:      itf.GetService[services.UploadService](env),
		review:       itf.GetService[services.ReviewService](env),
		files:        itf.GetService[services.FileService](env),
		transitions:  itf.GetService[services.TransitionService](env),
		materializer: itf.GetService[services.Materializer](env),
		aliases:      itf.GetService[payrollservices.AliasService](env),
		relay:        relay,
		indexer:      indexer,
		dir:          t.TempDir(),
	}
}

func (f *fixture) writeCSV(t *testing.T, name string, rows ...[]string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	out, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(out)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, out.Close())
	return path
}

// run runs every runnable stage and returns the file's status.
func (f *fixture) run(t *testing.T, fileID int64) *services.FileStatus {
	t.Helper()
	_, err := f.relay.Drain(f.env.Ctx)
	require.NoError(t, err)
	st, err := f.files.Status(f.env.Ctx, fileID)
	require.NoError(t, err)
	return st
}

// drain runs every runnable stage and fails on dead stages.
func (f *fixture) drain(t *testing.T, fileID int64) *services.FileStatus {
	t.Helper()
	st := f.run(t, fileID)
	require.Zero(t, st.Tasks.Failed, st.Tasks.LastError)
	return st
}

var reviewKinds = map[upload.Status]review.Kind{
	upload.StatusRespondingAgencyUnmatched: review.KindRespondingAgency,
	upload.StatusParentEmployerUnmatched:   review.KindParentEmployer,
	upload.StatusChildEmployerUnmatched:    review.KindChildEmployer,
}

// importFile uploads rows and runs the pipeline to completion, creating a
// new entity for every review item. It returns the file and the number of
// items flushed.
func (f *fixture) importFile(t *testing.T, name string, year int, rows ...[]string) (*upload.File, int) {
	t.Helper()
	file, err := f.uploads.Upload(f.env.Ctx, services.UploadInput{
		Path:          f.writeCSV(t, name, rows...),
		ReportingYear: year,
	})
	require.NoError(t, err)

	flushed := 0
	for i := 0; i < 10; i++ {
		st := f.drain(t, file.ID)
		if st.File.Status == upload.StatusComplete {
			return st.File, flushed
		}
		kind, ok := reviewKinds[st.File.Status]
		require.True(t, ok, "stuck in %s", st.File.Status)
		res, err := f.review.Flush(f.env.Ctx, file.ID, kind)
		require.NoError(t, err)
		require.True(t, res.Fired, "flush of %s did not advance the file", kind)
		flushed += res.Resolved
	}
	t.Fatalf("file %d did not complete", file.ID)
	return nil, 0
}

// importUntilFailure uploads rows and flushes review until a stage dies.
// It fails t when the file completes instead.
func (f *fixture) importUntilFailure(t *testing.T, name string, year int, rows ...[]string) *services.FileStatus {
	t.Helper()
	file, err := f.uploads.Upload(f.env.Ctx, services.UploadInput{
		Path:          f.writeCSV(t, name, rows...),
		ReportingYear: year,
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		st := f.run(t, file.ID)
		if st.Tasks.Failed > 0 {
			return st
		}
		require.NotEqual(t, upload.StatusComplete, st.File.Status, "file completed")
		kind, ok := reviewKinds[st.File.Status]
		require.True(t, ok, "stuck in %s", st.File.Status)
		_, err := f.review.Flush(f.env.Ctx, file.ID, kind)
		require.NoError(t, err)
	}
	t.Fatalf("file %d neither failed nor completed", file.ID)
	return nil
}

func (f *fixture) newVintage(t *testing.T) int64 {
	t.Helper()
	var id int64
	require.NoError(t, f.env.Pool.QueryRow(f.env.Ctx, `INSERT INTO data_import_upload (created_by) VALUES ('test') RETURNING id`).Scan(&id))
	return id
}
