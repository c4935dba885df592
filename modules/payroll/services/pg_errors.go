package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type ServiceError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(code, message string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Cause: cause}
}

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError("PAYROLL_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		switch pgErr.ConstraintName {
		case "payroll_respondingagencyalias_name_key", "payroll_employeralias_parent_name_key":
			return newServiceError("PAYROLL_ALIAS_CONFLICT", "alias already exists", err)
		case "payroll_position_employer_title_key":
			return newServiceError("PAYROLL_POSITION_CONFLICT", "position already exists", err)
		case "payroll_salary_source_record_key":
			return newServiceError("PAYROLL_SALARY_CONFLICT", "salary already imported", err)
		default:
			return newServiceError("PAYROLL_CONFLICT", "unique constraint violated", err)
		}
	case "23P01": // exclusion_violation
		recordWriteConflict("preferred")
		if strings.HasSuffix(pgErr.ConstraintName, "_one_preferred") {
			return newServiceError("PAYROLL_PREFERRED_ALIAS_CONFLICT", "more than one preferred alias", err)
		}
		return newServiceError("PAYROLL_CONFLICT", "exclusion constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError("PAYROLL_PARENT_NOT_FOUND", "foreign key violation", err)
	case "23514": // check_violation
		recordWriteConflict("check")
		if pgErr.ConstraintName == "payroll_salary_amount_or_extra" {
			return newServiceError("PAYROLL_SALARY_EMPTY", "salary has neither amount nor extra pay", err)
		}
		return newServiceError("PAYROLL_CHECK_VIOLATION", "check constraint violated", err)
	case "23000": // integrity_constraint_violation (single-level trigger)
		recordWriteConflict("hierarchy")
		if pgErr.ConstraintName == "payroll_employer_single_level" {
			return newServiceError("PAYROLL_SINGLE_LEVEL", "departments cannot have departments", err)
		}
		return newServiceError("PAYROLL_CONFLICT", "integrity constraint violated", err)
	default:
		return newServiceError("PAYROLL_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
