package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/aggregates/employer"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

const (
	employerFindQuery = `
		SELECT e.id, e.parent_id, e.taxonomy_id, e.universe_id, e.vintage_id, COALESCE(p.name, '')
		  FROM payroll_employer e
		  LEFT JOIN payroll_employeralias p
		    ON p.employer_id = e.id AND p.preferred`
)

type EmployerRepository struct{}

func NewEmployerRepository() employer.Repository {
	return &EmployerRepository{}
}

func (r *EmployerRepository) GetByID(ctx context.Context, id int64) (*employer.Employer, error) {
	return r.one(ctx, employerFindQuery+" WHERE e.id = $1", id)
}

// FindUnit resolves a unit alias.
func (r *EmployerRepository) FindUnit(ctx context.Context, name string) (*employer.Employer, error) {
	return r.one(ctx, employerFindQuery+`
		 WHERE e.id = (SELECT employer_id FROM payroll_employeralias WHERE parent_key = 0 AND name = $1)`, name)
}

// FindDepartment resolves a department alias among the departments of parentID.
func (r *EmployerRepository) FindDepartment(ctx context.Context, parentID int64, name string) (*employer.Employer, error) {
	return r.one(ctx, employerFindQuery+`
		 WHERE e.id = (SELECT employer_id FROM payroll_employeralias WHERE parent_key = $1 AND name = $2)`, parentID, name)
}

// Create inserts the employer and its preferred alias.
func (r *EmployerRepository) Create(ctx context.Context, e *employer.Employer) (*employer.Employer, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var id int64
	if err := tx.QueryRow(
		ctx,
		`INSERT INTO payroll_employer (parent_id, taxonomy_id, universe_id, vintage_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		e.ParentID(),
		e.TaxonomyID(),
		e.UniverseID(),
		e.VintageID(),
	).Scan(&id); err != nil {
		return nil, errors.Wrap(err, "failed to insert employer")
	}
	if _, err := upsertPreferredAlias(ctx, tx, alias.OwnerEmployer, id, e.Name()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *EmployerRepository) SetTaxonomy(ctx context.Context, id int64, taxonomyID *int64) error {
	return r.update(ctx, `UPDATE payroll_employer SET taxonomy_id = $1 WHERE id = $2`, taxonomyID, id)
}

func (r *EmployerRepository) SetUniverse(ctx context.Context, id int64, universeID *int64) error {
	return r.update(ctx, `UPDATE payroll_employer SET universe_id = $1 WHERE id = $2`, universeID, id)
}

func (r *EmployerRepository) Departments(ctx context.Context, parentID int64) ([]*employer.Employer, error) {
	return r.query(ctx, employerFindQuery+" WHERE e.parent_id = $1 ORDER BY e.id", parentID)
}

func (r *EmployerRepository) update(ctx context.Context, q string, value *int64, id int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	ct, err := tx.Exec(ctx, q, value, id)
	if err != nil {
		return errors.Wrap(err, "failed to update employer")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(ErrEmployerNotFound, "id %d", id)
	}
	return nil
}

func (r *EmployerRepository) one(ctx context.Context, q string, args ...any) (*employer.Employer, error) {
	employers, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(employers) == 0 {
		return nil, ErrEmployerNotFound
	}
	return employers[0], nil
}

func (r *EmployerRepository) query(ctx context.Context, q string, args ...any) ([]*employer.Employer, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	employers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*employer.Employer, error) {
		var (
			id, vintageID                    int64
			parentID, taxonomyID, universeID *int64
			name                             string
		)
		if err := row.Scan(&id, &parentID, &taxonomyID, &universeID, &vintageID, &name); err != nil {
			return nil, err
		}
		opts := []employer.Option{employer.WithID(id)}
		if parentID != nil {
			opts = append(opts, employer.WithParent(*parentID))
		}
		if taxonomyID != nil {
			opts = append(opts, employer.WithTaxonomy(*taxonomyID))
		}
		if universeID != nil {
			opts = append(opts, employer.WithUniverse(*universeID))
		}
		return employer.New(name, vintageID, opts...), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan employer row")
	}
	return employers, nil
}
