package dataimport

import "github.com/iota-uz/payroll-reconciler/pkg/serrors"

var errPayrollMissing = serrors.NewError("IMPORT_PAYROLL_MISSING", "dataimport requires the payroll module")
