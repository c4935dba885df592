package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

var scenarioRows = [][]string{
	{"City of X", "City of X", "", "Jane", "Doe", "Clerk", "50000", "", "2020-01-01", "2020"},
	{"City of X", "City of X", "Public Works", "John", "Roe", "Engineer", "$61,000.50", "", "2019-05-01", "2020"},
}

func (f *fixture) requireCanonical(t *testing.T, agencies, employers, positions, persons, jobs, salaries int64) {
	t.Helper()
	require.Equal(t, agencies, f.env.Count(t, "payroll_respondingagency", ""), "agencies")
	require.Equal(t, employers, f.env.Count(t, "payroll_employer", ""), "employers")
	require.Equal(t, positions, f.env.Count(t, "payroll_position", ""), "positions")
	require.Equal(t, persons, f.env.Count(t, "payroll_person", ""), "persons")
	require.Equal(t, jobs, f.env.Count(t, "payroll_job", ""), "jobs")
	require.Equal(t, salaries, f.env.Count(t, "payroll_salary", ""), "salaries")
}

func TestPipeline_NewFile(t *testing.T) {
	f := setup(t)

	file, flushed := f.importFile(t, "2020.csv", 2020, scenarioRows...)
	require.Equal(t, upload.StatusComplete, file.Status)
	// one agency and one unit; the department of a new unit needs no review
	require.Equal(t, 2, flushed)

	f.requireCanonical(t, 1, 2, 2, 2, 2, 2)
	require.Equal(t, int64(1), f.env.Count(t, "payroll_employer d JOIN payroll_employer u ON u.id = d.parent_id", "u.parent_id IS NULL"))
	require.Equal(t, int64(1), f.env.Count(t, "data_import_standardizedfile_responding_agencies", "standardizedfile_id = $1", file.ID))
	require.Equal(t, int64(1), f.env.Count(t, "payroll_salary", "amount = 61000.50"))
}

func TestPipeline_SameFileNextYear(t *testing.T) {
	f := setup(t)

	f.importFile(t, "2020.csv", 2020, scenarioRows...)

	next := make([][]string, len(scenarioRows))
	for i, r := range scenarioRows {
		row := append([]string(nil), r...)
		row[9] = "2021"
		next[i] = row
	}
	file, flushed := f.importFile(t, "2021.csv", 2021, next...)
	require.Equal(t, 0, flushed)
	require.Equal(t, upload.StatusComplete, file.Status)

	// people and jobs are re-identified; only salaries are new
	f.requireCanonical(t, 1, 2, 2, 2, 2, 4)
	require.Equal(t, int64(2), f.env.Count(t, staging.RawPerson(file.ID).Sanitize(), "matched"))
	require.Equal(t, int64(2), f.env.Count(t, "payroll_salary", "vintage_id = $1", file.UploadID))
}

func TestPipeline_TrimmedNamesMatchExistingAliases(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	_, err := f.aliases.CreateAgency(ctx, "City of X")
	require.NoError(t, err)
	_, err = f.aliases.CreateUnit(ctx, "City of X", f.newVintage(t))
	require.NoError(t, err)

	file, flushed := f.importFile(t, "padded.csv", 2020,
		[]string{" City of X ", " City of X ", "", "Jane", "Doe", "Clerk", "50000", "", "", "2020"},
	)
	require.Equal(t, 0, flushed)
	require.Equal(t, upload.StatusComplete, file.Status)
	require.Equal(t, int64(1), f.env.Count(t, "payroll_respondingagency", ""))
	require.Equal(t, int64(1), f.env.Count(t, "payroll_employer", ""))

	n, err := f.review.Remaining(ctx, file.ID, review.KindParentEmployer)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPipeline_PersonTieCreatesNewPerson(t *testing.T) {
	f := setup(t)

	f.importFile(t, "2020.csv", 2020,
		[]string{"City of X", "City of X", "", "Jane", "Doe", "Clerk", "50000", "", "2020-01-01", "2020"},
		[]string{"City of X", "City of X", "", "Jane", "Doe", "Analyst", "40000", "", "2020-01-01", "2020"},
	)
	// rows of one file never merge
	require.Equal(t, int64(2), f.env.Count(t, "payroll_person", ""))

	file, _ := f.importFile(t, "2021.csv", 2021,
		[]string{"City of X", "City of X", "", "Jane", "Doe", "Clerk", "52000", "", "2020-01-01", "2021"},
	)
	require.Equal(t, int64(3), f.env.Count(t, "payroll_person", ""))
	require.Equal(t, int64(0), f.env.Count(t, staging.RawPerson(file.ID).Sanitize(), "matched"))
}

func TestMaterializer_PopulateIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	file, _ := f.importFile(t, "2020.csv", 2020, scenarioRows...)
	f.requireCanonical(t, 1, 2, 2, 2, 2, 2)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.materializer.PopulateModelsFromRawData(ctx, file))
		f.requireCanonical(t, 1, 2, 2, 2, 2, 2)
	}
}

func TestFileService_DeleteFile(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	file, _ := f.importFile(t, "2020.csv", 2020, scenarioRows...)

	deleted, err := f.files.DeleteFile(ctx, file.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	require.Zero(t, f.env.Count(t, "data_import_standardizedfile", ""))
	require.Zero(t, f.env.Count(t, "payroll_employer", ""))
	require.Zero(t, f.env.Count(t, "payroll_salary", ""))

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		ok, err := staging.Exists(txCtx, file.ID)
		require.False(t, ok)
		return err
	})
	require.NoError(t, err)

	deleted, err = f.files.DeleteFile(ctx, file.ID)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestFileService_DeleteRevokesPendingStages(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	file, err := f.uploads.Upload(ctx, services.UploadInput{
		Path:          f.writeCSV(t, "2020.csv", scenarioRows...),
		ReportingYear: 2020,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), f.env.Count(t, "data_import_outbox", "key = $1 AND published_at IS NULL", file.Key()))

	_, err = f.files.DeleteFile(ctx, file.ID)
	require.NoError(t, err)
	require.Zero(t, f.env.Count(t, "data_import_outbox", "key = $1 AND published_at IS NULL", file.Key()))

	n, err := f.relay.Drain(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPipeline_SalaryWithoutAmountsStopsImport(t *testing.T) {
	f := setup(t)

	st := f.importUntilFailure(t, "2020.csv", 2020,
		scenarioRows[0],
		[]string{"City of X", "City of X", "", "Ann", "Poe", "Clerk", "", "", "2020-01-01", "2020"},
	)
	require.Equal(t, upload.StatusSalaryUnvalidated, st.File.Status)
	require.Equal(t, int64(1), st.Tasks.Failed)
	require.Contains(t, st.Tasks.LastError, "neither amount nor extra pay")
	require.Zero(t, f.env.Count(t, "payroll_salary", ""))
}

func TestPipeline_UnparsableAmountIsRejected(t *testing.T) {
	f := setup(t)

	st := f.importUntilFailure(t, "2020.csv", 2020,
		scenarioRows[0],
		[]string{"City of X", "City of X", "", "Ann", "Poe", "Clerk", "50000", "n/a", "", "2020"},
	)
	require.Equal(t, upload.StatusSalaryUnvalidated, st.File.Status)
	require.Contains(t, st.Tasks.LastError, "1 raw rows have an amount that is not a number")
	require.Contains(t, st.Tasks.LastError, `"n/a"`)
	require.Zero(t, f.env.Count(t, "payroll_salary", ""))
}

func TestMaterializer_InsertJobsReusesJobCommittedMeanwhile(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	file, _ := f.importFile(t, "2020.csv", 2020, scenarioRows...)
	rawJob := staging.RawJob(file.ID).Sanitize()

	// The file's jobs now exist under ids it never assigned, as when another
	// file commits the same identities between select_raw_job and insert_job.
	f.env.Exec(t, `DELETE FROM payroll_salary`)
	f.env.Exec(t, `UPDATE `+rawJob+` SET job_id = nextval(pg_get_serial_sequence('payroll_job', 'id'))`)
	require.Equal(t, int64(2), f.env.Count(t, rawJob+" rj", "NOT EXISTS (SELECT 1 FROM payroll_job j WHERE j.id = rj.job_id)"))

	err := composables.InTx(ctx, func(txCtx context.Context) error {
		if _, err := f.materializer.InsertJobs(txCtx, file); err != nil {
			return err
		}
		_, err := f.materializer.InsertSalaries(txCtx, file)
		return err
	})
	require.NoError(t, err)

	f.requireCanonical(t, 1, 2, 2, 2, 2, 2)
	require.Zero(t, f.env.Count(t, rawJob+" rj", "NOT EXISTS (SELECT 1 FROM payroll_job j WHERE j.id = rj.job_id)"))
}

func TestFileService_StatusCountsRowsWithoutEmployer(t *testing.T) {
	f := setup(t)

	file, _ := f.importFile(t, "2020.csv", 2020,
		scenarioRows[0],
		[]string{"ISBE", "All Elementary/High School Employees", "", "Ann", "Poe", "Teacher", "40000", "", "", "2020"},
	)
	require.Equal(t, upload.StatusComplete, file.Status)

	st, err := f.files.Status(f.env.Ctx, file.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), st.Counts.Raw)
	require.Equal(t, int64(1), st.Counts.Unattributed)
	require.Equal(t, int64(1), f.env.Count(t, "payroll_salary", ""))
}
