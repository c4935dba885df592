package classification

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyUniverse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want Universe
	}{
		{"Police Department", UniversePolice},
		{"Village of Oak Park PD", UniversePolice},
		{"Department of Public Safety", UniversePolice},
		{"Illinois State Police", UniverseNone},
		{"State Police and City Police", UniversePolice},
		{"Board of Fire and Police Commissioners", UniverseFire},
		{"Police Pension Board", UniverseNone},
		{"Police Commission", UniverseNone},
		{"Fire Department", UniverseFire},
		{"Orland FPD", UniverseFire},
		{"Firearms Training", UniverseNone},
		{"Department of Public Works", UniverseNone},
		{"Updated Records", UniverseNone},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyUniverse(tc.name), tc.name)
	}
}

func TestUniverseOf_PreferredFirst(t *testing.T) {
	t.Parallel()

	require.Equal(t, UniverseFire, UniverseOf([]string{"Fire Dept", "Police"}))
	require.Equal(t, UniversePolice, UniverseOf([]string{"Streets", "PD"}))
	require.Equal(t, UniverseNone, UniverseOf(nil))
}

func TestResolveTaxonomy_Precedence(t *testing.T) {
	t.Parallel()

	municipal := Taxonomy{EntityType: Municipal, CookOrCollar: true}
	lookup := func(alias string) (Taxonomy, bool) {
		if alias == "Village of Skokie" {
			return municipal, true
		}
		return Taxonomy{}, false
	}

	got, rule := ResolveTaxonomy(UnitFacts{
		Aliases:        []string{"Skokie", "Village of Skokie"},
		ReportedByISBE: true,
		ReportedByIBHE: true,
	}, lookup)
	require.Equal(t, RuleDirect, rule)
	require.Equal(t, municipal, got)

	got, rule = ResolveTaxonomy(UnitFacts{Aliases: []string{"District 65"}, ReportedByISBE: true, ReportedByIBHE: true}, lookup)
	require.Equal(t, RuleISBE, rule)
	require.Equal(t, SchoolDistrict, got.EntityType)

	got, rule = ResolveTaxonomy(UnitFacts{Aliases: []string{"Oakton"}, ReportedByIBHE: true}, lookup)
	require.Equal(t, RuleIBHE, rule)
	require.Equal(t, HigherEducation, got.EntityType)

	got, rule = ResolveTaxonomy(UnitFacts{Aliases: []string{"Mystery Unit"}}, lookup)
	require.Equal(t, RuleNone, rule)
	require.Equal(t, Taxonomy{}, got)
}

func TestMatchPopulation(t *testing.T) {
	t.Parallel()

	records := []PopulationRecord{
		{Name: "Springfield", Classification: "city", GeoID: "72000", Population: 116000},
		{Name: "Springfield", Classification: "village", GeoID: "71995", Population: 1200},
		{Name: "Cook", Classification: "county", GeoID: "031", Population: 5100000},
		{Name: "Cook", Classification: "city", GeoID: "99999", Population: 10},
		{Name: "Maine Township", Classification: "township", GeoID: "45", Population: 130000},
		{Name: "Twin", Classification: "village", GeoID: "002", Population: 500},
		{Name: "Twin", Classification: "town", GeoID: "001", Population: 500},
	}

	got, ok := MatchPopulation(Municipal, []string{"  SPRINGFIELD "}, records)
	require.True(t, ok)
	require.Equal(t, "72000", got.GeoID)

	got, ok = MatchPopulation(County, []string{"cook"}, records)
	require.True(t, ok)
	require.Equal(t, "031", got.GeoID)

	got, ok = MatchPopulation(Township, []string{"Maine"}, records)
	require.True(t, ok)
	require.Equal(t, int64(130000), got.Population)

	got, ok = MatchPopulation(Township, []string{"Maine   TOWNSHIP"}, records)
	require.True(t, ok)
	require.Equal(t, "45", got.GeoID)

	got, ok = MatchPopulation(Municipal, []string{"Twin"}, records)
	require.True(t, ok)
	require.Equal(t, "001", got.GeoID)

	_, ok = MatchPopulation(SchoolDistrict, []string{"Springfield"}, records)
	require.False(t, ok)

	_, ok = MatchPopulation(Municipal, []string{"Nowhere"}, records)
	require.False(t, ok)
}
