package search

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/job"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

const (
	unitDocsQuery = `
		SELECT u.id,
		       COALESCE(ua.name, ''),
		       COALESCE(t.entity_type, ''),
		       pop.population,
		       count(DISTINCT j.person_id),
		       COALESCE(sum(COALESCE(s.amount, 0) + COALESCE(s.extra_pay, 0)), 0)::text
		  FROM payroll_salary s
		  JOIN payroll_job j ON j.id = s.job_id
		  JOIN payroll_position p ON p.id = j.position_id
		  JOIN payroll_employer e ON e.id = p.employer_id
		  JOIN payroll_employer u ON u.id = COALESCE(e.parent_id, e.id)
		  LEFT JOIN payroll_employeralias ua ON ua.employer_id = u.id AND ua.preferred
		  LEFT JOIN payroll_employertaxonomy t ON t.id = u.taxonomy_id
		  LEFT JOIN LATERAL (
		      SELECT population FROM payroll_employerpopulation
		       WHERE employer_id = u.id
		       ORDER BY data_year DESC
		       LIMIT 1
		  ) pop ON TRUE
		 WHERE s.vintage_id = $1
		 GROUP BY u.id, ua.name, t.entity_type, pop.population
		 ORDER BY u.id`

	salaryDocsQuery = `
		SELECT s.id, per.id, COALESCE(per.first_name, ''), COALESCE(per.last_name, ''),
		       p.title, e.id, COALESCE(ea.name, ''), COALESCE(ua.name, ''),
		       s.amount::text, s.extra_pay::text, j.start_date
		  FROM payroll_salary s
		  JOIN payroll_job j ON j.id = s.job_id
		  JOIN payroll_person per ON per.id = j.person_id
		  JOIN payroll_position p ON p.id = j.position_id
		  JOIN payroll_employer e ON e.id = p.employer_id
		  LEFT JOIN payroll_employeralias ea ON ea.employer_id = e.id AND ea.preferred
		  LEFT JOIN payroll_employeralias ua ON ua.employer_id = COALESCE(e.parent_id, e.id) AND ua.preferred
		 WHERE s.vintage_id = $1
		 ORDER BY s.id`
)

// UnitDocuments builds one document per unit paid by the upload.
func UnitDocuments(ctx context.Context, req IndexRequest) ([]UnitDoc, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, unitDocsQuery, req.UploadID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unit documents")
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnitDoc, error) {
		var (
			d           UnitDoc
			expenditure string
		)
		if err := row.Scan(&d.EmployerID, &d.Name, &d.Taxonomy, &d.Population, &d.Headcount, &expenditure); err != nil {
			return UnitDoc{}, err
		}
		amount, err := decimal.NewFromString(expenditure)
		if err != nil {
			return UnitDoc{}, err
		}
		d.Expenditure = amount
		d.SizeClass = SizeClass(d.Population)
		d.Year = req.ReportingYear
		return d, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan unit document")
	}
	return docs, nil
}

func SalaryDocuments(ctx context.Context, req IndexRequest) ([]SalaryDoc, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, salaryDocsQuery, req.UploadID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query salary documents")
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SalaryDoc, error) {
		var (
			d                SalaryDoc
			amount, extraPay *string
			start            *time.Time
		)
		if err := row.Scan(&d.SalaryID, &d.PersonID, &d.FirstName, &d.LastName, &d.Title,
			&d.EmployerID, &d.Employer, &d.Unit, &amount, &extraPay, &start); err != nil {
			return SalaryDoc{}, err
		}
		var err error
		if d.Amount, err = nullDecimal(amount); err != nil {
			return SalaryDoc{}, err
		}
		if d.ExtraPay, err = nullDecimal(extraPay); err != nil {
			return SalaryDoc{}, err
		}
		d.IsWage = job.Salary{Amount: d.Amount, ExtraPay: d.ExtraPay}.IsWage()
		d.StartDate = start
		d.Year = req.ReportingYear
		return d, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan salary document")
	}
	return docs, nil
}

func nullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
