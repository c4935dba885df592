package services_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
)

func TestReviewService_MergeRewritesRawRows(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	_, err := f.aliases.CreateAgency(ctx, "Cook County")
	require.NoError(t, err)
	unit, err := f.aliases.CreateUnit(ctx, "City of X", f.newVintage(t))
	require.NoError(t, err)
	_, err = f.aliases.CreateUnit(ctx, "Village of Y", f.newVintage(t))
	require.NoError(t, err)

	file, err := f.uploads.Upload(ctx, services.UploadInput{
		Path: f.writeCSV(t, "x.csv",
			[]string{"Cook County", "City of X.", "", "Jane", "Doe", "Clerk", "50000", "", "", "2020"},
			[]string{"Cook County", "City of X.", "", "John", "Roe", "Clerk", "51000", "", "", "2020"},
		),
		ReportingYear: 2020,
	})
	require.NoError(t, err)

	st := f.drain(t, file.ID)
	require.Equal(t, upload.StatusParentEmployerUnmatched, st.File.Status)
	require.Equal(t, int64(1), st.Remaining[review.KindParentEmployer])

	item, ok, err := f.review.Checkout(ctx, file.ID, review.KindParentEmployer, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, review.ParentEmployerCandidate{Name: "City of X."}, item.Candidate)

	suggestions, err := f.review.Suggest(ctx, item, 5)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	require.Equal(t, "City of X", suggestions[0].Name)
	require.Equal(t, unit.ID(), suggestions[0].OwnerID)

	d, err := f.review.Resolve(ctx, file.ID, item, &suggestions[0].AliasID)
	require.NoError(t, err)
	require.True(t, d.Merged)
	require.Equal(t, unit.ID(), d.OwnerID)
	require.Equal(t, int64(2), d.Rewritten)
	require.Zero(t, d.Remaining)
	require.True(t, d.Fired)

	require.Equal(t, int64(2), f.env.Count(t, staging.RawPayroll(file.ID).Sanitize(), "employer = 'City of X'"))
	require.Equal(t, int64(2), f.env.Count(t, "payroll_employeralias", "employer_id = $1", unit.ID()))
	require.Equal(t, int64(1), f.env.Count(t, "payroll_employeralias", "employer_id = $1 AND preferred", unit.ID()))

	st = f.drain(t, file.ID)
	require.Equal(t, upload.StatusComplete, st.File.Status)
	require.Equal(t, int64(2), f.env.Count(t, "payroll_employer", ""))
	require.Equal(t, int64(2), f.env.Count(t, "payroll_salary", ""))
}

func TestReviewService_ExistingUnitDepartmentIsReviewed(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	_, err := f.aliases.CreateAgency(ctx, "City of X")
	require.NoError(t, err)
	unit, err := f.aliases.CreateUnit(ctx, "City of X", f.newVintage(t))
	require.NoError(t, err)

	file, err := f.uploads.Upload(ctx, services.UploadInput{
		Path: f.writeCSV(t, "x.csv",
			[]string{"City of X", "City of X", "Fire Department", "Jane", "Doe", "Firefighter", "70000", "", "", "2020"},
		),
		ReportingYear: 2020,
	})
	require.NoError(t, err)

	st := f.drain(t, file.ID)
	require.Equal(t, upload.StatusChildEmployerUnmatched, st.File.Status)

	item, ok, err := f.review.Checkout(ctx, file.ID, review.KindChildEmployer, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, review.ChildEmployerCandidate{Name: "Fire Department", Parent: "City of X"}, item.Candidate)

	d, err := f.review.Resolve(ctx, file.ID, item, nil)
	require.NoError(t, err)
	require.False(t, d.Merged)
	require.True(t, d.Fired)

	st = f.drain(t, file.ID)
	require.Equal(t, upload.StatusComplete, st.File.Status)
	require.Equal(t, int64(1), f.env.Count(t, "payroll_employer", "parent_id = $1", unit.ID()))
	require.Equal(t, int64(1), f.env.Count(t,
		"payroll_employer e JOIN payroll_employeruniverse u ON u.id = e.universe_id",
		"e.parent_id = $1 AND u.name = 'Fire'", unit.ID()))
}

func TestReviewService_RequeueAndRemaining(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	file, err := f.uploads.Upload(ctx, services.UploadInput{
		Path: f.writeCSV(t, "x.csv",
			[]string{"Agency A", "City of X", "", "Jane", "Doe", "Clerk", "1", "", "", "2020"},
			[]string{"Agency B", "City of X", "", "John", "Roe", "Clerk", "1", "", "", "2020"},
			[]string{"Agency C", "City of X", "", "Ann", "Poe", "Clerk", "1", "", "", "2020"},
		),
		ReportingYear: 2020,
	})
	require.NoError(t, err)
	f.drain(t, file.ID)

	kind := review.KindRespondingAgency
	n, err := f.review.Remaining(ctx, file.ID, kind)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	item, ok, err := f.review.Checkout(ctx, file.ID, kind, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.review.Requeue(ctx, file.ID, kind, item.ID))

	for i := 0; i < 2; i++ {
		item, ok, err := f.review.Checkout(ctx, file.ID, kind, 0)
		require.NoError(t, err)
		require.True(t, ok)
		d, err := f.review.Resolve(ctx, file.ID, item, nil)
		require.NoError(t, err)
		require.False(t, d.Fired)
	}

	n, err = f.review.Remaining(ctx, file.ID, kind)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	st, err := f.files.Status(ctx, file.ID)
	require.NoError(t, err)
	require.Equal(t, upload.StatusRespondingAgencyUnmatched, st.File.Status)
	require.Equal(t, int64(2), f.env.Count(t, "payroll_respondingagency", ""))
}

func TestReviewService_FlushWaitsForSelectStage(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	file, err := f.uploads.Upload(ctx, services.UploadInput{
		Path:          f.writeCSV(t, "x.csv", scenarioRows...),
		ReportingYear: 2020,
	})
	require.NoError(t, err)

	// the copy stage has not run, so the queue is empty only because nothing was selected yet
	res, err := f.review.Flush(ctx, file.ID, review.KindRespondingAgency)
	require.NoError(t, err)
	require.False(t, res.Fired)
	require.Zero(t, res.Resolved)

	st := f.drain(t, file.ID)
	require.Equal(t, upload.StatusRespondingAgencyUnmatched, st.File.Status)
	require.Equal(t, int64(1), st.Remaining[review.KindRespondingAgency])

	res, err = f.review.Flush(ctx, file.ID, review.KindRespondingAgency)
	require.NoError(t, err)
	require.True(t, res.Fired)
	require.Equal(t, 1, res.Resolved)
}
