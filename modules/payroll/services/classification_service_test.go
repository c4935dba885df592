package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/classification"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
)

const taxonomyCSV = `Entity,Entity Type,Chicago,Cook or Collar
Skokie,Municipal,False,True
Oakton Community College,Higher Education,False,True
`

const populationCSV = `name,classification,geoid,population,data_year
Skokie,village,1770122,"64,773",2016
Skokie,CDP,0000001,10,2016
`

func TestClassificationService_ClassifyUnits(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	_, err := f.reference.LoadTaxonomy(ctx, strings.NewReader(taxonomyCSV))
	require.NoError(t, err)
	_, err = f.reference.LoadPopulation(ctx, strings.NewReader(populationCSV))
	require.NoError(t, err)

	direct, err := f.aliases.CreateUnit(ctx, "Village of Skokie", f.vintage)
	require.NoError(t, err)
	_, err = f.aliases.Merge(ctx, unitScope(), preferredAliasID(t, f, direct.ID()), "skokie")
	require.NoError(t, err)
	isbe, err := f.aliases.CreateUnit(ctx, "District 65", f.vintage)
	require.NoError(t, err)
	ibhe, err := f.aliases.CreateUnit(ctx, "Oakton", f.vintage)
	require.NoError(t, err)
	unknown, err := f.aliases.CreateUnit(ctx, "Mystery Authority", f.vintage)
	require.NoError(t, err)

	res, err := f.classification.ClassifyUnits(ctx, []UnitInput{
		{EmployerID: direct.ID(), ReportedByISBE: true},
		{EmployerID: isbe.ID(), ReportedByISBE: true, ReportedByIBHE: true},
		{EmployerID: ibhe.ID(), ReportedByIBHE: true},
		{EmployerID: unknown.ID()},
	})
	require.NoError(t, err)
	require.Equal(t, ClassifyResult{Classified: 3, Unclassified: 1, Populated: 1}, res)

	require.Equal(t, classification.Municipal, entityType(t, f, direct.ID()))
	require.Equal(t, classification.SchoolDistrict, entityType(t, f, isbe.ID()))
	require.Equal(t, classification.HigherEducation, entityType(t, f, ibhe.ID()))
	require.Equal(t, "", entityType(t, f, unknown.ID()))

	var population int64
	require.NoError(t, f.env.Pool.QueryRow(ctx, `SELECT population FROM payroll_employerpopulation WHERE employer_id = $1`, direct.ID()).Scan(&population))
	require.Equal(t, int64(64773), population)

	// a second run leaves population alone
	res, err = f.classification.ClassifyUnits(ctx, []UnitInput{{EmployerID: direct.ID()}})
	require.NoError(t, err)
	require.Equal(t, 0, res.Populated)
	require.Equal(t, int64(1), f.env.Count(t, "payroll_employerpopulation", ""))
}

func TestClassificationService_ClassifyDepartments(t *testing.T) {
	f := setup(t)
	ctx := f.env.Ctx

	unit, err := f.aliases.CreateUnit(ctx, "City of X", f.vintage)
	require.NoError(t, err)
	police, err := f.aliases.CreateDepartment(ctx, unit.ID(), "Police", f.vintage)
	require.NoError(t, err)
	fire, err := f.aliases.CreateDepartment(ctx, unit.ID(), "Fire Department", f.vintage)
	require.NoError(t, err)
	board, err := f.aliases.CreateDepartment(ctx, unit.ID(), "Police Pension Board", f.vintage)
	require.NoError(t, err)

	res, err := f.classification.ClassifyDepartments(ctx, []int64{police.ID(), fire.ID(), board.ID()})
	require.NoError(t, err)
	require.Equal(t, 2, res.Classified)
	require.Equal(t, 1, res.Unclassified)

	require.Equal(t, "Police", universe(t, f, police.ID()))
	require.Equal(t, "Fire", universe(t, f, fire.ID()))
	require.Equal(t, "", universe(t, f, board.ID()))
}

func unitScope() alias.Scope { return alias.Scope{Owner: alias.OwnerEmployer} }

func preferredAliasID(t *testing.T, f *fixture, employerID int64) int64 {
	t.Helper()
	var id int64
	require.NoError(t, f.env.Pool.QueryRow(f.env.Ctx, `SELECT id FROM payroll_employeralias WHERE employer_id = $1 AND preferred`, employerID).Scan(&id))
	return id
}

func entityType(t *testing.T, f *fixture, employerID int64) string {
	t.Helper()
	var out *string
	require.NoError(t, f.env.Pool.QueryRow(f.env.Ctx, `
		SELECT t.entity_type FROM payroll_employer e
		  LEFT JOIN payroll_employertaxonomy t ON t.id = e.taxonomy_id
		 WHERE e.id = $1`, employerID).Scan(&out))
	if out == nil {
		return ""
	}
	return *out
}

func universe(t *testing.T, f *fixture, employerID int64) string {
	t.Helper()
	var out *string
	require.NoError(t, f.env.Pool.QueryRow(f.env.Ctx, `
		SELECT u.name FROM payroll_employer e
		  LEFT JOIN payroll_employeruniverse u ON u.id = e.universe_id
		 WHERE e.id = $1`, employerID).Scan(&out))
	if out == nil {
		return ""
	}
	return *out
}
