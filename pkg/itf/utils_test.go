package itf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeDBName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "testupload_valid_csv", sanitizeDBName("TestUpload/valid.csv"))
	require.Equal(t, "test_db", sanitizeDBName("///"))
	require.Equal(t, "t_2020_file", sanitizeDBName("2020 file"))

	long := "TestMaterializer_PopulateModelsFromRawData/running_twice_adds_no_rows_for_any_canonical_table"
	got := sanitizeDBName(long)
	require.LessOrEqual(t, len(got), maxDBNameLength)
	require.True(t, strings.HasPrefix(got, "testmaterializer_populatemodels"))
	require.Equal(t, got, sanitizeDBName(long))
	require.NotEqual(t, got, sanitizeDBName(long+"_other"))
}
