package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

var ErrValidation = serrors.NewError("IMPORT_VALIDATION", "invalid upload")

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

// validationError rejects an upload; errors.Is(err, ErrValidation) holds.
func validationError(message string, cause error) *ServiceError {
	if cause == nil {
		cause = ErrValidation
	} else {
		cause = fmt.Errorf("%w: %w", ErrValidation, cause)
	}
	recordRejected()
	return newServiceError(ErrValidation.Code, message, cause)
}

func mapPgErrorToServiceError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return newServiceError("IMPORT_NOT_FOUND", "not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		if pgErr.ConstraintName == "data_import_standardizedfile_upload_id_key" {
			return newServiceError("IMPORT_FILE_CONFLICT", "upload already has a file", err)
		}
		return newServiceError("IMPORT_CONFLICT", "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError("IMPORT_NOT_FOUND", "referenced row does not exist", err)
	case "23514": // check_violation
		recordWriteConflict("check")
		if pgErr.ConstraintName == "data_import_standardizedfile_status_check" {
			return newServiceError("IMPORT_INVALID_STATUS", "invalid file status", err)
		}
		if pgErr.ConstraintName == "payroll_salary_amount_or_extra" {
			return newServiceError("IMPORT_SALARY_CHECK_VIOLATION", "salary row has neither amount nor extra pay", err)
		}
		return newServiceError("IMPORT_CHECK_VIOLATION", "check constraint violated", err)
	case "23502": // not_null_violation
		recordWriteConflict("not_null")
		return newServiceError("IMPORT_UNRESOLVED", fmt.Sprintf("raw rows reference unresolved entities (%s)", pgErr.ColumnName), err)
	case "23000", "23P01":
		recordWriteConflict("integrity")
		return newServiceError("IMPORT_INTEGRITY", "canonical invariant violated", err)
	case "22P02": // invalid_text_representation
		return validationError("raw value does not parse", err)
	case "57014": // query_canceled
		return newServiceError("IMPORT_CANCELED", "stage canceled", err)
	default:
		return newServiceError("IMPORT_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
