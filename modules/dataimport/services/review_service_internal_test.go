package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
)

func TestRankSuggestions(t *testing.T) {
	t.Parallel()

	aliases := []alias.Alias{
		{ID: 1, OwnerID: 10, Name: "Village of Oak Park"},
		{ID: 2, OwnerID: 20, Name: "City of Chicago", Preferred: true},
		{ID: 3, OwnerID: 30, Name: "Chicago Park District"},
	}

	got := rankSuggestions("chicago", aliases, 0)
	require.Len(t, got, 3)
	require.Equal(t, "City of Chicago", got[0].Name)
	require.Equal(t, "Chicago Park District", got[1].Name)
	require.Equal(t, "Village of Oak Park", got[2].Name)

	got = rankSuggestions("chicago", aliases, 1)
	require.Len(t, got, 1)

	require.Nil(t, rankSuggestions("x", nil, 3))
}

func TestReviewTransition(t *testing.T) {
	t.Parallel()

	want := map[review.Kind]upload.Transition{
		review.KindRespondingAgency: upload.SelectUnseenParentEmployer,
		review.KindParentEmployer:   upload.SelectUnseenChildEmployer,
		review.KindChildEmployer:    upload.SelectInvalidSalary,
	}
	for k, tr := range want {
		got, err := reviewTransition(k)
		require.NoError(t, err)
		require.Equal(t, tr, got)
		// a kind's review runs while the file sits in the transition's source status
		require.NotEmpty(t, tr.Source())
	}

	_, err := reviewTransition("salary")
	require.ErrorIs(t, err, review.ErrUnknownKind)
}

func TestCandidateName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Fire", candidateName(review.ChildEmployerCandidate{Name: "Fire", Parent: "Skokie"}))
	require.Equal(t, "Skokie", candidateName(review.ParentEmployerCandidate{Name: "Skokie"}))
	require.Equal(t, "Cook County", candidateName(review.RespondingAgencyCandidate{Name: "Cook County"}))
}
