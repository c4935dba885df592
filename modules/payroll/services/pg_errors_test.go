package services

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapPgErrorToServiceError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code string
	}{
		{"no rows", pgx.ErrNoRows, "PAYROLL_NOT_FOUND"},
		{"alias", &pgconn.PgError{Code: "23505", ConstraintName: "payroll_employeralias_parent_name_key"}, "PAYROLL_ALIAS_CONFLICT"},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "other"}, "PAYROLL_CONFLICT"},
		{"preferred", &pgconn.PgError{Code: "23P01", ConstraintName: "payroll_employeralias_one_preferred"}, "PAYROLL_PREFERRED_ALIAS_CONFLICT"},
		{"fk", &pgconn.PgError{Code: "23503"}, "PAYROLL_PARENT_NOT_FOUND"},
		{"salary", &pgconn.PgError{Code: "23514", ConstraintName: "payroll_salary_amount_or_extra"}, "PAYROLL_SALARY_EMPTY"},
		{"single level", &pgconn.PgError{Code: "23000", ConstraintName: "payroll_employer_single_level"}, "PAYROLL_SINGLE_LEVEL"},
		{"other", &pgconn.PgError{Code: "40001"}, "PAYROLL_INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var se *ServiceError
			require.True(t, errors.As(mapPgErrorToServiceError(tc.err), &se))
			require.Equal(t, tc.code, se.Code)
			require.ErrorIs(t, se, tc.err)
		})
	}

	plain := errors.New("plain")
	require.Same(t, plain, mapPgErrorToServiceError(plain))
	require.NoError(t, mapPgErrorToServiceError(nil))
}
