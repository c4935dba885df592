package review

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	for _, c := range []Candidate{
		RespondingAgencyCandidate{Name: "Cook County"},
		ParentEmployerCandidate{Name: "City of X"},
		ChildEmployerCandidate{Name: "Public Works", Parent: "City of X"},
	} {
		b, err := Encode(c)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
}

func TestEncode_Envelope(t *testing.T) {
	t.Parallel()

	b, err := Encode(ChildEmployerCandidate{Name: "Fire", Parent: "Skokie"})
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1,"kind":"child_employer","payload":{"name":"Fire","parent":"Skokie"}}`, string(b))
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"v":2,"kind":"parent_employer","payload":{"name":"X"}}`))
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Decode([]byte(`{"v":1,"kind":"salary","payload":{}}`))
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedItem)

	_, err = Decode([]byte(`{"v":1,"kind":"parent_employer","payload":{"name":7}}`))
	require.ErrorIs(t, err, ErrMalformedItem)
}

func TestItemID(t *testing.T) {
	t.Parallel()

	a := ItemID(ParentEmployerCandidate{Name: "City of X"})
	require.Equal(t, a, ItemID(ParentEmployerCandidate{Name: "City of X"}))
	require.NotEqual(t, a, ItemID(RespondingAgencyCandidate{Name: "City of X"}))
	require.NotEqual(t, a, ItemID(ParentEmployerCandidate{Name: "City of Y"}))
	require.Len(t, a, 36)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	k, err := ParseKind("child_employer")
	require.NoError(t, err)
	require.Equal(t, KindChildEmployer, k)

	_, err = ParseKind("salary")
	require.ErrorIs(t, err, ErrUnknownKind)
}
