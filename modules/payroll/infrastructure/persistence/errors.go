package persistence

import "github.com/iota-uz/payroll-reconciler/pkg/serrors"

var (
	ErrAgencyNotFound   = serrors.NewError("PAYROLL_AGENCY_NOT_FOUND", "responding agency not found")
	ErrEmployerNotFound = serrors.NewError("PAYROLL_EMPLOYER_NOT_FOUND", "employer not found")
	ErrAliasNotFound    = serrors.NewError("PAYROLL_ALIAS_NOT_FOUND", "alias not found")
	ErrAliasTaken       = serrors.NewError("PAYROLL_ALIAS_TAKEN", "alias belongs to another entity")
	ErrUnknownOwner     = serrors.NewError("PAYROLL_UNKNOWN_ALIAS_OWNER", "unknown alias owner")
)
