package outbox

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	t.Parallel()

	ident, err := ParseIdentifier(" public.data_import_outbox ")
	require.NoError(t, err)
	require.Equal(t, pgx.Identifier{"public", "data_import_outbox"}, ident)
	require.Equal(t, "public.data_import_outbox", TableLabel(ident))

	ident, err = ParseIdentifier("data_import_outbox")
	require.NoError(t, err)
	require.Equal(t, pgx.Identifier{"data_import_outbox"}, ident)

	for _, bad := range []string{"", "a.b.c", "public.", "drop table;", "public.x-y"} {
		_, err := ParseIdentifier(bad)
		require.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}

func TestParseChannel(t *testing.T) {
	t.Parallel()

	ch, err := ParseChannel("payroll_task_revoke")
	require.NoError(t, err)
	require.Equal(t, "payroll_task_revoke", ch)

	_, err = ParseChannel("bad channel")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
