package main

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/services"
	payrollservices "github.com/iota-uz/payroll-reconciler/modules/payroll/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return classify(err)
}

// classify maps errors that reach the top without an explicit code.
func classify(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, upload.ErrIllegalTransition),
		errors.Is(err, payrollservices.ErrReferenceFormat),
		errors.Is(err, payrollservices.ErrInvalidTag),
		errors.Is(err, payrollservices.ErrScopeMismatch),
		errors.Is(err, payrollservices.ErrNotAUnit),
		errors.Is(err, payrollservices.ErrEmptyName):
		return exitValidation
	case errors.Is(err, review.ErrUnknownKind),
		errors.Is(err, review.ErrMalformedItem),
		errors.Is(err, review.ErrUnsupportedVersion),
		errors.Is(err, review.ErrItemNotFound),
		errors.Is(err, upload.ErrUnknownStatus):
		return exitUsage
	}

	var se *services.ServiceError
	if errors.As(err, &se) {
		return serviceCode(se.Code)
	}
	var pse *payrollservices.ServiceError
	if errors.As(err, &pse) {
		return serviceCode(pse.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "23") {
			return exitDBWrite
		}
		return exitDB
	}
	return 1
}

func serviceCode(code string) int {
	switch {
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return exitUsage
	case strings.HasSuffix(code, "_VALIDATION"), strings.HasSuffix(code, "_INVALID_STATUS"):
		return exitValidation
	case strings.HasSuffix(code, "_CONFLICT"),
		strings.HasSuffix(code, "_CHECK_VIOLATION"),
		strings.HasSuffix(code, "_UNRESOLVED"),
		strings.HasSuffix(code, "_INTEGRITY"):
		return exitDBWrite
	default:
		return exitDB
	}
}
