package persistence

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/classification"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

// TaxonomyReference is one row of the reference taxonomy list.
type TaxonomyReference struct {
	Entity   string
	Taxonomy classification.Taxonomy
}

// ReferenceRepository reads and replaces the reference data used to
// classify employers, and owns the small lookup tables they resolve to.
type ReferenceRepository struct{}

func NewReferenceRepository() *ReferenceRepository {
	return &ReferenceRepository{}
}

// ReplaceTaxonomy swaps the reference taxonomy for rows and inserts any new
// taxonomy combinations into payroll_employertaxonomy.
func (r *ReferenceRepository) ReplaceTaxonomy(ctx context.Context, rows []TaxonomyReference) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM payroll_reference_taxonomy`); err != nil {
		return 0, errors.Wrap(err, "failed to clear reference taxonomy")
	}
	n, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"payroll_reference_taxonomy"},
		[]string{"entity", "entity_type", "chicago", "cook_or_collar"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			t := rows[i].Taxonomy
			return []any{rows[i].Entity, t.EntityType, t.Chicago, t.CookOrCollar}, nil
		}),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to copy reference taxonomy")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO payroll_employertaxonomy (entity_type, chicago, cook_or_collar)
		SELECT DISTINCT entity_type, chicago, cook_or_collar FROM payroll_reference_taxonomy
		ON CONFLICT (entity_type, chicago, cook_or_collar) DO NOTHING`); err != nil {
		return 0, errors.Wrap(err, "failed to insert taxonomies")
	}
	return n, nil
}

func (r *ReferenceRepository) ReplacePopulation(ctx context.Context, rows []classification.PopulationRecord) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM payroll_reference_population`); err != nil {
		return 0, errors.Wrap(err, "failed to clear reference population")
	}
	n, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"payroll_reference_population"},
		[]string{"name", "classification", "geoid", "population", "data_year"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			p := rows[i]
			return []any{p.Name, p.Classification, p.GeoID, p.Population, p.DataYear}, nil
		}),
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to copy reference population")
	}
	return n, nil
}

// LookupTaxonomy returns the reference taxonomy by lower-cased entity name.
// When an entity appears more than once the first loaded row wins.
func (r *ReferenceRepository) LookupTaxonomy(ctx context.Context, names []string) (map[string]classification.Taxonomy, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(n)))
	}
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT ON (lower(trim(entity))) lower(trim(entity)), entity_type, chicago, cook_or_collar
		  FROM payroll_reference_taxonomy
		 WHERE lower(trim(entity)) = ANY($1)
		 ORDER BY lower(trim(entity)), id`, lowered)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reference taxonomy")
	}
	defer rows.Close()

	out := make(map[string]classification.Taxonomy)
	for rows.Next() {
		var name string
		var t classification.Taxonomy
		if err := rows.Scan(&name, &t.EntityType, &t.Chicago, &t.CookOrCollar); err != nil {
			return nil, errors.Wrap(err, "failed to scan reference taxonomy row")
		}
		out[name] = t
	}
	return out, errors.Wrap(rows.Err(), "reference taxonomy rows")
}

// PopulationRecords returns reference rows in the given census classifications.
func (r *ReferenceRepository) PopulationRecords(ctx context.Context, classes []string) ([]classification.PopulationRecord, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, `
		SELECT name, classification, geoid, population, data_year
		  FROM payroll_reference_population
		 WHERE lower(classification) = ANY($1)`, lowerAll(classes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reference population")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (classification.PopulationRecord, error) {
		var p classification.PopulationRecord
		err := row.Scan(&p.Name, &p.Classification, &p.GeoID, &p.Population, &p.DataYear)
		return p, err
	})
	return out, errors.Wrap(err, "failed to scan reference population row")
}

// TaxonomyID finds or creates the taxonomy row for t.
func (r *ReferenceRepository) TaxonomyID(ctx context.Context, t classification.Taxonomy) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	var id int64
	err = tx.QueryRow(ctx, `
		WITH ins AS (
		    INSERT INTO payroll_employertaxonomy (entity_type, chicago, cook_or_collar)
		    VALUES ($1, $2, $3)
		    ON CONFLICT (entity_type, chicago, cook_or_collar) DO NOTHING
		    RETURNING id
		)
		SELECT id FROM ins
		UNION ALL
		SELECT id FROM payroll_employertaxonomy WHERE entity_type = $1 AND chicago = $2 AND cook_or_collar = $3
		LIMIT 1`, t.EntityType, t.Chicago, t.CookOrCollar).Scan(&id)
	return id, errors.Wrap(err, "failed to resolve taxonomy")
}

// EntityType returns the entity type of a taxonomy id.
func (r *ReferenceRepository) EntityType(ctx context.Context, taxonomyID int64) (string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get transaction")
	}
	var entityType string
	err = tx.QueryRow(ctx, `SELECT entity_type FROM payroll_employertaxonomy WHERE id = $1`, taxonomyID).Scan(&entityType)
	return entityType, errors.Wrap(err, "failed to read taxonomy")
}

func (r *ReferenceRepository) UniverseID(ctx context.Context, u classification.Universe) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM payroll_employeruniverse WHERE name = $1`, string(u)).Scan(&id)
	return id, errors.Wrapf(err, "failed to resolve universe %q", u)
}

// SetPopulation records a population for the employer unless one exists for the year.
func (r *ReferenceRepository) SetPopulation(ctx context.Context, employerID int64, population int64, dataYear int) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to get transaction")
	}
	ct, err := tx.Exec(ctx, `
		INSERT INTO payroll_employerpopulation (employer_id, population, data_year)
		VALUES ($1, $2, $3)
		ON CONFLICT (employer_id, data_year) DO NOTHING`, employerID, population, dataYear)
	if err != nil {
		return false, errors.Wrap(err, "failed to insert employer population")
	}
	return ct.RowsAffected() == 1, nil
}

// HasPopulation reports whether any population row exists for the employer.
func (r *ReferenceRepository) HasPopulation(ctx context.Context, employerID int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to get transaction")
	}
	var ok bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payroll_employerpopulation WHERE employer_id = $1)`, employerID).Scan(&ok)
	return ok, errors.Wrap(err, "failed to check employer population")
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
