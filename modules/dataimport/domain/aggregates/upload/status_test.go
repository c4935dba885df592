package upload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_FireHappyPath(t *testing.T) {
	t.Parallel()

	s := StatusUploaded
	for _, tr := range []Transition{CopyToDatabase, SelectUnseenParentEmployer, SelectUnseenChildEmployer, SelectInvalidSalary, Finish} {
		next, err := s.Fire(tr)
		require.NoError(t, err, tr)
		require.Equal(t, tr.Target(), next)
		require.Equal(t, s, tr.Source())
		s = next
	}
	require.Equal(t, StatusComplete, s)
	require.True(t, s.Terminal())
}

func TestStatus_FireIllegal(t *testing.T) {
	t.Parallel()

	for _, s := range statuses {
		for tr, e := range transitions {
			if e.from == s {
				continue
			}
			got, err := s.Fire(tr)
			require.ErrorIs(t, err, ErrIllegalTransition, "%s from %s", tr, s)
			require.Equal(t, s, got)
		}
	}

	_, err := StatusUploaded.Fire("rewind")
	require.ErrorIs(t, err, ErrUnknownTransition)
}

func TestParse(t *testing.T) {
	t.Parallel()

	s, err := ParseStatus("complete")
	require.NoError(t, err)
	require.Equal(t, StatusComplete, s)
	_, err = ParseStatus("done")
	require.ErrorIs(t, err, ErrUnknownStatus)

	tr, err := ParseTransition("finish")
	require.NoError(t, err)
	require.Equal(t, Finish, tr)
	_, err = ParseTransition("restart")
	require.ErrorIs(t, err, ErrUnknownTransition)
}

func TestFileKey(t *testing.T) {
	t.Parallel()

	f := &File{ID: 42}
	require.Equal(t, "file:42", f.Key())
	require.Equal(t, "payroll:file:42", LockName(42))
}
