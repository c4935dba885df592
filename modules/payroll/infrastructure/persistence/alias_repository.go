package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/repo"
)

type aliasTable struct {
	name     string
	ownerCol string
	columns  string // id, owner, parent key, name, preferred
	// insert lists the columns written by an insert; values binds $1 owner, $2 name, $3 preferred.
	insert string
	values string
	// namespace restricts a name lookup to the namespace of owner $1.
	namespace string
	conflict  string
}

const employerParentKey = `(SELECT COALESCE(parent_id, 0) FROM payroll_employer WHERE id = $1)`

var aliasTables = map[alias.Owner]aliasTable{
	alias.OwnerAgency: {
		name:      "payroll_respondingagencyalias",
		ownerCol:  "responding_agency_id",
		columns:   "id, responding_agency_id, 0::bigint, name, preferred",
		insert:    "responding_agency_id, name, preferred",
		values:    "$1, $2, $3",
		namespace: "$1::bigint IS NOT NULL",
		conflict:  "(name)",
	},
	alias.OwnerEmployer: {
		name:      "payroll_employeralias",
		ownerCol:  "employer_id",
		columns:   "id, employer_id, parent_key, name, preferred",
		insert:    "employer_id, parent_key, name, preferred",
		values:    "$1, " + employerParentKey + ", $2, $3",
		namespace: "parent_key = " + employerParentKey,
		conflict:  "(parent_key, name)",
	},
}

func tableFor(owner alias.Owner) (aliasTable, error) {
	t, ok := aliasTables[owner]
	if !ok {
		return aliasTable{}, errors.Wrapf(ErrUnknownOwner, "owner %q", owner)
	}
	return t, nil
}

type AliasRepository struct{}

func NewAliasRepository() alias.Repository {
	return &AliasRepository{}
}

func (r *AliasRepository) GetByID(ctx context.Context, owner alias.Owner, id int64) (alias.Alias, error) {
	t, err := tableFor(owner)
	if err != nil {
		return alias.Alias{}, err
	}
	rows, err := queryAliases(ctx, owner, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.columns, t.name), id)
	if err != nil {
		return alias.Alias{}, err
	}
	if len(rows) == 0 {
		return alias.Alias{}, errors.Wrapf(ErrAliasNotFound, "%s alias %d", owner, id)
	}
	return rows[0], nil
}

func (r *AliasRepository) Add(ctx context.Context, owner alias.Owner, ownerID int64, name string) (alias.Alias, error) {
	t, err := tableFor(owner)
	if err != nil {
		return alias.Alias{}, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return alias.Alias{}, errors.Wrap(err, "failed to get transaction")
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT %s DO NOTHING`,
		t.name, t.insert, t.values, t.conflict,
	)
	if _, err := tx.Exec(ctx, q, ownerID, name, false); err != nil {
		return alias.Alias{}, errors.Wrap(err, "failed to insert alias")
	}

	rows, err := queryAliases(ctx, owner, fmt.Sprintf(
		`SELECT %s FROM %s WHERE name = $2 AND %s`, t.columns, t.name, t.namespace,
	), ownerID, name)
	if err != nil {
		return alias.Alias{}, err
	}
	if len(rows) == 0 {
		return alias.Alias{}, errors.Wrapf(ErrAliasNotFound, "%s alias %q", owner, name)
	}
	if rows[0].OwnerID != ownerID {
		return alias.Alias{}, errors.Wrapf(ErrAliasTaken, "%q is an alias of %s %d", name, owner, rows[0].OwnerID)
	}
	return rows[0], nil
}

// SetPreferred makes name the preferred alias of ownerID.
func (r *AliasRepository) SetPreferred(ctx context.Context, owner alias.Owner, ownerID int64, name string) (alias.Alias, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return alias.Alias{}, errors.Wrap(err, "failed to get transaction")
	}
	id, err := upsertPreferredAlias(ctx, tx, owner, ownerID, name)
	if err != nil {
		return alias.Alias{}, err
	}
	return r.GetByID(ctx, owner, id)
}

// upsertPreferredAlias inserts or promotes name and demotes the owner's other
// preferred aliases in one statement. A nil id means the name is taken by
// another owner in the same namespace.
func upsertPreferredAlias(ctx context.Context, tx repo.Tx, owner alias.Owner, ownerID int64, name string) (int64, error) {
	t, err := tableFor(owner)
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf(
		`WITH upserted AS (
		     INSERT INTO %[1]s AS a (%[3]s) VALUES (%[4]s)
		     ON CONFLICT %[5]s DO UPDATE SET preferred = TRUE
		     WHERE a.%[2]s = EXCLUDED.%[2]s
		     RETURNING id
		 ), demoted AS (
		     UPDATE %[1]s SET preferred = FALSE
		      WHERE %[2]s = $1
		        AND preferred
		        AND id NOT IN (SELECT id FROM upserted)
		        AND EXISTS (SELECT 1 FROM upserted)
		     RETURNING id
		 )
		 SELECT (SELECT id FROM upserted), (SELECT count(*) FROM demoted)`,
		t.name, t.ownerCol, t.insert, t.values, t.conflict,
	)

	var id *int64
	var demoted int64
	if err := tx.QueryRow(ctx, q, ownerID, name, true).Scan(&id, &demoted); err != nil {
		return 0, errors.Wrap(err, "failed to upsert preferred alias")
	}
	if id == nil {
		return 0, errors.Wrapf(ErrAliasTaken, "%q is an alias of another %s", name, owner)
	}
	return *id, nil
}

func (r *AliasRepository) ListByOwner(ctx context.Context, owner alias.Owner, ownerID int64) ([]alias.Alias, error) {
	t, err := tableFor(owner)
	if err != nil {
		return nil, err
	}
	return queryAliases(ctx, owner, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1 ORDER BY preferred DESC, id`,
		t.columns, t.name, t.ownerCol,
	), ownerID)
}

func (r *AliasRepository) ListByScope(ctx context.Context, scope alias.Scope) ([]alias.Alias, error) {
	t, err := tableFor(scope.Owner)
	if err != nil {
		return nil, err
	}
	if scope.Owner == alias.OwnerAgency {
		return queryAliases(ctx, scope.Owner, fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, t.columns, t.name))
	}
	return queryAliases(ctx, scope.Owner, fmt.Sprintf(
		`SELECT %s FROM %s WHERE parent_key = $1 ORDER BY name`, t.columns, t.name,
	), scope.ParentKey)
}

func queryAliases(ctx context.Context, owner alias.Owner, q string, args ...any) ([]alias.Alias, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (alias.Alias, error) {
		a := alias.Alias{Owner: owner}
		err := row.Scan(&a.ID, &a.OwnerID, &a.ParentKey, &a.Name, &a.Preferred)
		return a, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan alias row")
	}
	return out, nil
}
