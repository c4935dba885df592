package job

import (
	"github.com/shopspring/decimal"
)

// wageCeiling separates hourly wages reported in the salary column from annual salaries.
var wageCeiling = decimal.NewFromInt(1000)

// Salary is the pay of one job in one vintage.
type Salary struct {
	Amount   decimal.NullDecimal
	ExtraPay decimal.NullDecimal
}

// IsWage reports an amount small enough to be an hourly wage.
func (s Salary) IsWage() bool {
	return s.Amount.Valid && s.Amount.Decimal.LessThan(wageCeiling)
}
