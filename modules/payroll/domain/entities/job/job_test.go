package job

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestSalary_IsWage(t *testing.T) {
	t.Parallel()

	require.True(t, Salary{Amount: amount("18.50")}.IsWage())
	require.False(t, Salary{Amount: amount("1000")}.IsWage())
	require.False(t, Salary{Amount: amount("52000.00")}.IsWage())
	require.False(t, Salary{ExtraPay: amount("10")}.IsWage())
}
