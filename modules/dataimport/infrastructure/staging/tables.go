package staging

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Raw staging tables are addressed by name; the naming is a contract.

func RawPayroll(fileID int64) pgx.Identifier {
	return pgx.Identifier{fmt.Sprintf("raw_payroll_%d", fileID)}
}

func RawPerson(fileID int64) pgx.Identifier {
	return pgx.Identifier{fmt.Sprintf("raw_person_%d", fileID)}
}

func RawJob(fileID int64) pgx.Identifier {
	return pgx.Identifier{fmt.Sprintf("raw_job_%d", fileID)}
}
