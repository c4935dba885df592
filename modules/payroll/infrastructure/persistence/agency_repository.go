package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/aggregates/agency"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

const (
	agencyFindQuery = `
		SELECT a.id, a.tag, COALESCE(p.name, '')
		  FROM payroll_respondingagency a
		  LEFT JOIN payroll_respondingagencyalias p
		    ON p.responding_agency_id = a.id AND p.preferred`
)

type AgencyRepository struct{}

func NewAgencyRepository() agency.Repository {
	return &AgencyRepository{}
}

func (r *AgencyRepository) GetByID(ctx context.Context, id int64) (*agency.RespondingAgency, error) {
	agencies, err := r.queryAgencies(ctx, agencyFindQuery+" WHERE a.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(agencies) == 0 {
		return nil, errors.Wrapf(ErrAgencyNotFound, "id %d", id)
	}
	return agencies[0], nil
}

// FindByAlias resolves an exact alias name.
func (r *AgencyRepository) FindByAlias(ctx context.Context, name string) (*agency.RespondingAgency, error) {
	q := agencyFindQuery + `
		 WHERE a.id = (SELECT responding_agency_id FROM payroll_respondingagencyalias WHERE name = $1)`
	agencies, err := r.queryAgencies(ctx, q, name)
	if err != nil {
		return nil, err
	}
	if len(agencies) == 0 {
		return nil, errors.Wrapf(ErrAgencyNotFound, "alias %q", name)
	}
	return agencies[0], nil
}

// Create inserts the agency and its preferred alias.
func (r *AgencyRepository) Create(ctx context.Context, a *agency.RespondingAgency) (*agency.RespondingAgency, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var id int64
	if err := tx.QueryRow(ctx, `INSERT INTO payroll_respondingagency (tag) VALUES ($1) RETURNING id`, tagValue(a.Tag())).Scan(&id); err != nil {
		return nil, errors.Wrap(err, "failed to insert responding agency")
	}
	if _, err := upsertPreferredAlias(ctx, tx, alias.OwnerAgency, id, a.Name()); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *AgencyRepository) SetTag(ctx context.Context, id int64, tag *agency.Tag) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	ct, err := tx.Exec(ctx, `UPDATE payroll_respondingagency SET tag = $1 WHERE id = $2`, tagValue(tag), id)
	if err != nil {
		return errors.Wrap(err, "failed to update tag")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(ErrAgencyNotFound, "id %d", id)
	}
	return nil
}

func (r *AgencyRepository) List(ctx context.Context) ([]*agency.RespondingAgency, error) {
	return r.queryAgencies(ctx, agencyFindQuery+" ORDER BY a.id")
}

func tagValue(t *agency.Tag) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

func (r *AgencyRepository) queryAgencies(ctx context.Context, query string, args ...any) ([]*agency.RespondingAgency, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	agencies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*agency.RespondingAgency, error) {
		var (
			id   int64
			tag  *string
			name string
		)
		if err := row.Scan(&id, &tag, &name); err != nil {
			return nil, err
		}
		opts := []agency.Option{agency.WithID(id)}
		if tag != nil {
			opts = append(opts, agency.WithTag(agency.Tag(*tag)))
		}
		return agency.New(name, opts...), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan responding agency row")
	}
	return agencies, nil
}
