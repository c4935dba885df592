package persistence

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/repo"
)

// Queries below are templates over the file's raw tables: {raw}, {raw_person}
// and {raw_job} are replaced with sanitized identifiers. Writes take the vintage as $1.

// rawEmployer resolves each raw row to its employer: the department when the
// row names one, else the unit. Rows whose employer is not canonical drop out.
const rawEmployer = `
	raw_employer AS (
		SELECT r.*,
		       CASE WHEN r.department IS NULL THEN u.employer_id ELSE d.employer_id END AS employer_id
		  FROM {raw} r
		  JOIN payroll_employeralias u
		    ON u.parent_key = 0 AND u.name = r.employer
		  LEFT JOIN payroll_employeralias d
		    ON r.department IS NOT NULL AND d.parent_key = u.employer_id AND d.name = r.department
	)`

const startDate = `
	CASE
		WHEN re.date_started ~ '^\d{4}-\d{1,2}-\d{1,2}$' THEN re.date_started::date
		WHEN re.date_started ~ '^\d{1,2}/\d{1,2}/\d{4}$' THEN to_date(re.date_started, 'MM/DD/YYYY')
	END`

// keyedRecords carries every raw row's job identity.
const keyedRecords = `
	keyed AS (
		SELECT re.record_id, rp.person_id, pos.id AS position_id, ` + startDate + ` AS start_date
		  FROM raw_employer re
		  JOIN {raw_person} rp ON rp.record_id = re.record_id
		  JOIN payroll_position pos
		    ON pos.employer_id = re.employer_id AND pos.title = COALESCE(re.title, 'Employee')
	)`

// moneyText strips currency formatting from a raw amount; blank is NULL.
func moneyText(col string) string {
	return `NULLIF(regexp_replace(` + col + `, '[$,\s]', '', 'g'), '')`
}

// money casts a raw amount. Text that is not a number fails the statement.
func money(col string) string {
	return moneyText(col) + `::numeric`
}

const numericPattern = `'^[-+]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$'`

const (
	unseenAgenciesQuery = `
		SELECT DISTINCT r.responding_agency
		  FROM {raw} r
		 WHERE r.responding_agency IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM payroll_respondingagencyalias a WHERE a.name = r.responding_agency)
		 ORDER BY 1`

	unseenUnitsQuery = `
		SELECT DISTINCT r.employer
		  FROM {raw} r
		 WHERE r.employer IS NOT NULL
		   AND NOT EXISTS (SELECT 1 FROM payroll_employeralias a WHERE a.parent_key = 0 AND a.name = r.employer)
		 ORDER BY 1`

	// Departments of units introduced by this upload are created without review.
	unseenDepartmentsQuery = `
		SELECT DISTINCT r.employer, r.department
		  FROM {raw} r
		  JOIN payroll_employeralias u ON u.parent_key = 0 AND u.name = r.employer
		  JOIN payroll_employer e ON e.id = u.employer_id
		 WHERE r.department IS NOT NULL
		   AND e.vintage_id <> $1::bigint
		   AND NOT EXISTS (
		       SELECT 1 FROM payroll_employeralias d
		        WHERE d.parent_key = u.employer_id AND d.name = r.department)
		 ORDER BY 1, 2`

	pendingAgenciesQuery = `
		CREATE TEMP TABLE pending_agency ON COMMIT DROP AS
		SELECT n.name, nextval(pg_get_serial_sequence('payroll_respondingagency', 'id')) AS id
		  FROM (` + unseenAgenciesQuery + `) n (name)`

	insertAgenciesQuery      = `INSERT INTO payroll_respondingagency (id) SELECT id FROM pending_agency`
	insertAgencyAliasesQuery = `
		INSERT INTO payroll_respondingagencyalias (responding_agency_id, name, preferred)
		SELECT id, name, TRUE FROM pending_agency
		ON CONFLICT DO NOTHING`

	linkAgenciesQuery = `
		INSERT INTO data_import_standardizedfile_responding_agencies (standardizedfile_id, respondingagency_id)
		SELECT DISTINCT $1::bigint, a.responding_agency_id
		  FROM {raw} r
		  JOIN payroll_respondingagencyalias a ON a.name = r.responding_agency
		ON CONFLICT DO NOTHING`

	pendingUnitsQuery = `
		CREATE TEMP TABLE pending_unit ON COMMIT DROP AS
		SELECT n.name, nextval(pg_get_serial_sequence('payroll_employer', 'id')) AS id
		  FROM (` + unseenUnitsQuery + `) n (name)`

	insertUnitsQuery       = `INSERT INTO payroll_employer (id, vintage_id) SELECT id, $1::bigint FROM pending_unit`
	insertUnitAliasesQuery = `
		INSERT INTO payroll_employeralias (employer_id, parent_key, name, preferred)
		SELECT id, 0, name, TRUE FROM pending_unit
		ON CONFLICT DO NOTHING`

	pendingDepartmentsQuery = `
		CREATE TEMP TABLE pending_department ON COMMIT DROP AS
		SELECT n.parent_id, n.name, nextval(pg_get_serial_sequence('payroll_employer', 'id')) AS id
		  FROM (
		      SELECT DISTINCT u.employer_id AS parent_id, r.department AS name
		        FROM {raw} r
		        JOIN payroll_employeralias u ON u.parent_key = 0 AND u.name = r.employer
		       WHERE r.department IS NOT NULL
		         AND NOT EXISTS (
		             SELECT 1 FROM payroll_employeralias d
		              WHERE d.parent_key = u.employer_id AND d.name = r.department)
		  ) n`

	insertDepartmentsQuery = `
		INSERT INTO payroll_employer (id, parent_id, vintage_id)
		SELECT id, parent_id, $1::bigint FROM pending_department`
	insertDepartmentAliasesQuery = `
		INSERT INTO payroll_employeralias (employer_id, parent_key, name, preferred)
		SELECT id, parent_id, name, TRUE FROM pending_department
		ON CONFLICT DO NOTHING`

	unitsToClassifyQuery = `
		SELECT u.employer_id,
		       COALESCE(bool_or(ag.tag = 'ISBE'), FALSE),
		       COALESCE(bool_or(ag.tag = 'IBHE'), FALSE)
		  FROM {raw} r
		  JOIN payroll_employeralias u ON u.parent_key = 0 AND u.name = r.employer
		  JOIN payroll_employer e ON e.id = u.employer_id AND e.taxonomy_id IS NULL
		  LEFT JOIN payroll_respondingagencyalias aa ON aa.name = r.responding_agency
		  LEFT JOIN payroll_respondingagency ag ON ag.id = aa.responding_agency_id
		 GROUP BY u.employer_id
		 ORDER BY u.employer_id`

	departmentsToClassifyQuery = `
		SELECT DISTINCT d.employer_id
		  FROM {raw} r
		  JOIN payroll_employeralias u ON u.parent_key = 0 AND u.name = r.employer
		  JOIN payroll_employeralias d ON d.parent_key = u.employer_id AND d.name = r.department
		  JOIN payroll_employer e ON e.id = d.employer_id AND e.universe_id IS NULL
		 ORDER BY 1`

	insertPositionsQuery = `
		WITH ` + rawEmployer + `
		INSERT INTO payroll_position (employer_id, title, vintage_id)
		SELECT DISTINCT re.employer_id, COALESCE(re.title, 'Employee'), $1::bigint
		  FROM raw_employer re
		ON CONFLICT (employer_id, title) DO NOTHING`

	createRawPersonQuery = `
		CREATE TABLE IF NOT EXISTS {raw_person} (
			record_id UUID PRIMARY KEY,
			person_id BIGINT NOT NULL,
			matched   BOOLEAN NOT NULL
		)`

	// A row links to an existing person only when exactly one person of an
	// earlier vintage has its name and a job at its employer.
	selectRawPersonQuery = `
		WITH ` + rawEmployer + `
		INSERT INTO {raw_person} (record_id, person_id, matched)
		SELECT re.record_id,
		       COALESCE(m.person_id, nextval(pg_get_serial_sequence('payroll_person', 'id'))),
		       m.person_id IS NOT NULL
		  FROM raw_employer re
		  LEFT JOIN LATERAL (
		      SELECT min(p.id) AS person_id
		        FROM payroll_person p
		       WHERE p.first_name IS NOT DISTINCT FROM re.first_name
		         AND p.last_name IS NOT DISTINCT FROM re.last_name
		         AND p.vintage_id <> $1::bigint
		         AND EXISTS (
		             SELECT 1
		               FROM payroll_job j
		               JOIN payroll_position pos ON pos.id = j.position_id
		              WHERE j.person_id = p.id AND pos.employer_id = re.employer_id)
		      HAVING count(*) = 1
		  ) m ON TRUE
		 WHERE NOT EXISTS (SELECT 1 FROM {raw_person} x WHERE x.record_id = re.record_id)
		ON CONFLICT (record_id) DO NOTHING`

	insertPersonsQuery = `
		INSERT INTO payroll_person (id, first_name, last_name, vintage_id)
		SELECT rp.person_id, r.first_name, r.last_name, $1::bigint
		  FROM {raw_person} rp
		  JOIN {raw} r ON r.record_id = rp.record_id
		 WHERE NOT rp.matched
		ON CONFLICT (id) DO NOTHING`

	createRawJobQuery = `
		CREATE TABLE IF NOT EXISTS {raw_job} (
			record_id UUID PRIMARY KEY,
			job_id    BIGINT NOT NULL
		)`

	selectRawJobQuery = `
		WITH ` + rawEmployer + `, ` + keyedRecords + `,
		pending AS (
			SELECT k.* FROM keyed k
			 WHERE NOT EXISTS (SELECT 1 FROM {raw_job} x WHERE x.record_id = k.record_id)
		),
		identities AS MATERIALIZED (
			SELECT i.person_id, i.position_id, i.start_date,
			       COALESCE(
			           (SELECT j.id FROM payroll_job j
			             WHERE j.person_id = i.person_id
			               AND j.position_id = i.position_id
			               AND j.start_date IS NOT DISTINCT FROM i.start_date),
			           nextval(pg_get_serial_sequence('payroll_job', 'id'))
			       ) AS job_id
			  FROM (SELECT DISTINCT person_id, position_id, start_date FROM pending) i
		)
		INSERT INTO {raw_job} (record_id, job_id)
		SELECT p.record_id, i.job_id
		  FROM pending p
		  JOIN identities i
		    ON i.person_id = p.person_id
		   AND i.position_id = p.position_id
		   AND i.start_date IS NOT DISTINCT FROM p.start_date
		ON CONFLICT (record_id) DO NOTHING`

	// A job with the same identity may have been committed by another file
	// since select_raw_job assigned the id.
	remapRawJobQuery = `
		WITH ` + rawEmployer + `, ` + keyedRecords + `
		UPDATE {raw_job} rj
		   SET job_id = j.id
		  FROM keyed k
		  JOIN payroll_job j
		    ON j.person_id = k.person_id
		   AND j.position_id = k.position_id
		   AND j.start_date IS NOT DISTINCT FROM k.start_date
		 WHERE k.record_id = rj.record_id
		   AND rj.job_id <> j.id`

	insertJobsQuery = `
		WITH ` + rawEmployer + `, ` + keyedRecords + `
		INSERT INTO payroll_job (id, person_id, position_id, start_date, vintage_id)
		SELECT DISTINCT ON (rj.job_id) rj.job_id, k.person_id, k.position_id, k.start_date, $1::bigint
		  FROM {raw_job} rj
		  JOIN keyed k ON k.record_id = rj.record_id
		 WHERE NOT EXISTS (SELECT 1 FROM payroll_job j WHERE j.id = rj.job_id)
		 ORDER BY rj.job_id
		ON CONFLICT DO NOTHING`

	insertSalariesQuery = `
		INSERT INTO payroll_salary (job_id, amount, extra_pay, vintage_id, source_record_id)
		SELECT s.job_id, s.amount, s.extra_pay, $1::bigint, s.record_id
		  FROM (
		      SELECT rj.job_id, r.record_id,
		             {salary} AS amount,
		             {extra_pay} AS extra_pay
		        FROM {raw} r
		        JOIN {raw_job} rj ON rj.record_id = r.record_id
		  ) s
		ON CONFLICT (source_record_id) DO NOTHING`

	invalidMoneyQuery = `
		SELECT count(*) OVER (), r.record_id::text, COALESCE(r.salary, ''), COALESCE(r.extra_pay, '')
		  FROM {raw} r
		  JOIN {raw_job} rj ON rj.record_id = r.record_id
		 WHERE {salary_text} !~ ` + numericPattern + `
		    OR {extra_pay_text} !~ ` + numericPattern + `
		 ORDER BY r.record_id
		 LIMIT $1`

	// Rows without an employer never reach raw_job.
	unattributedQuery = `SELECT count(*) FROM {raw} WHERE employer IS NULL`

	rewriteAgencyQuery = `UPDATE {raw} SET responding_agency = $2 WHERE responding_agency = $1`
	rewriteUnitQuery   = `UPDATE {raw} SET employer = $2 WHERE employer = $1`
	// Any raw spelling of the unit counts as the same parent.
	rewriteDepartmentQuery = `
		UPDATE {raw} SET department = $3
		 WHERE department = $2
		   AND employer IN (
		       SELECT name FROM payroll_employeralias WHERE parent_key = 0 AND employer_id = $1)`
)

// UnitFacts is one unit reported in a file, with the tags of the agencies
// that reported it.
type UnitFacts struct {
	EmployerID     int64
	ReportedByISBE bool
	ReportedByIBHE bool
}

// StageCounts is the size of a file's staged and derived data.
type StageCounts struct {
	Raw     int64
	Persons int64
	Jobs    int64
	// Unattributed raw rows name no employer and are not imported.
	Unattributed int64
}

// StageRepository runs the set-based steps of an import against one
// file's raw tables. Every write is idempotent against unchanged raw data.
type StageRepository struct{}

func NewStageRepository() *StageRepository {
	return &StageRepository{}
}

func render(q string, fileID int64) string {
	return strings.NewReplacer(
		"{raw}", staging.RawPayroll(fileID).Sanitize(),
		"{raw_person}", staging.RawPerson(fileID).Sanitize(),
		"{raw_job}", staging.RawJob(fileID).Sanitize(),
		"{salary}", money("r.salary"),
		"{extra_pay}", money("r.extra_pay"),
		"{salary_text}", moneyText("r.salary"),
		"{extra_pay_text}", moneyText("r.extra_pay"),
	).Replace(q)
}

func (r *StageRepository) UnseenAgencies(ctx context.Context, fileID int64) ([]review.Candidate, error) {
	names, err := r.names(ctx, render(unseenAgenciesQuery, fileID))
	if err != nil {
		return nil, err
	}
	out := make([]review.Candidate, 0, len(names))
	for _, n := range names {
		out = append(out, review.RespondingAgencyCandidate{Name: n})
	}
	return out, nil
}

func (r *StageRepository) UnseenUnits(ctx context.Context, fileID int64) ([]review.Candidate, error) {
	names, err := r.names(ctx, render(unseenUnitsQuery, fileID))
	if err != nil {
		return nil, err
	}
	out := make([]review.Candidate, 0, len(names))
	for _, n := range names {
		out = append(out, review.ParentEmployerCandidate{Name: n})
	}
	return out, nil
}

func (r *StageRepository) UnseenDepartments(ctx context.Context, fileID, vintageID int64) ([]review.Candidate, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, render(unseenDepartmentsQuery, fileID), vintageID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select unseen departments")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (review.Candidate, error) {
		var c review.ChildEmployerCandidate
		err := row.Scan(&c.Parent, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan department candidate")
	}
	return out, nil
}

// InsertAgencies creates every agency still unmatched and links all the
// file's agencies to it. It returns the number of agencies created.
func (r *StageRepository) InsertAgencies(ctx context.Context, fileID int64) (int64, error) {
	tx, err := strictTx(ctx)
	if err != nil {
		return 0, err
	}
	n, err := createPending(ctx, tx, "pending_agency",
		render(pendingAgenciesQuery, fileID), insertAgenciesQuery, insertAgencyAliasesQuery)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, render(linkAgenciesQuery, fileID), fileID); err != nil {
		return 0, errors.Wrap(err, "failed to link agencies")
	}
	return n, nil
}

func (r *StageRepository) InsertUnits(ctx context.Context, fileID, vintageID int64) (int64, error) {
	tx, err := strictTx(ctx)
	if err != nil {
		return 0, err
	}
	return createPending(ctx, tx, "pending_unit",
		render(pendingUnitsQuery, fileID), insertUnitsQuery, insertUnitAliasesQuery, vintageID)
}

func (r *StageRepository) InsertDepartments(ctx context.Context, fileID, vintageID int64) (int64, error) {
	tx, err := strictTx(ctx)
	if err != nil {
		return 0, err
	}
	return createPending(ctx, tx, "pending_department",
		render(pendingDepartmentsQuery, fileID), insertDepartmentsQuery, insertDepartmentAliasesQuery, vintageID)
}

// createPending materializes the missing entities with preassigned ids, then
// inserts them and their preferred aliases under the canonical lock.
func createPending(ctx context.Context, tx pgx.Tx, temp, pending, entities, aliases string, args ...any) (int64, error) {
	if err := persistence.LockCanonical(ctx, tx); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{temp}.Sanitize()); err != nil {
		return 0, errors.Wrapf(err, "failed to drop %s", temp)
	}
	if _, err := tx.Exec(ctx, pending); err != nil {
		return 0, errors.Wrapf(err, "failed to collect %s", temp)
	}
	ct, err := tx.Exec(ctx, entities, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to insert %s", temp)
	}
	if _, err := tx.Exec(ctx, aliases); err != nil {
		return 0, errors.Wrapf(err, "failed to insert aliases of %s", temp)
	}
	return ct.RowsAffected(), nil
}

func (r *StageRepository) UnitsToClassify(ctx context.Context, fileID int64) ([]UnitFacts, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, render(unitsToClassifyQuery, fileID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to select units to classify")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnitFacts, error) {
		var f UnitFacts
		err := row.Scan(&f.EmployerID, &f.ReportedByISBE, &f.ReportedByIBHE)
		return f, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan unit row")
	}
	return out, nil
}

func (r *StageRepository) DepartmentsToClassify(ctx context.Context, fileID int64) ([]int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, render(departmentsToClassifyQuery, fileID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to select departments to classify")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan department id")
	}
	return ids, nil
}

func (r *StageRepository) InsertPositions(ctx context.Context, fileID, vintageID int64) (int64, error) {
	return r.exec(ctx, "insert positions", render(insertPositionsQuery, fileID), vintageID)
}

// SelectRawPerson records the person of every raw row in raw_person_<id>.
func (r *StageRepository) SelectRawPerson(ctx context.Context, fileID, vintageID int64) (int64, error) {
	if _, err := r.exec(ctx, "create raw person table", render(createRawPersonQuery, fileID)); err != nil {
		return 0, err
	}
	return r.exec(ctx, "select raw person", render(selectRawPersonQuery, fileID), vintageID)
}

func (r *StageRepository) InsertPersons(ctx context.Context, fileID, vintageID int64) (int64, error) {
	return r.exec(ctx, "insert persons", render(insertPersonsQuery, fileID), vintageID)
}

// SelectRawJob records the job of every raw row in raw_job_<id>, reusing
// existing jobs with the same identity.
func (r *StageRepository) SelectRawJob(ctx context.Context, fileID int64) (int64, error) {
	if _, err := r.exec(ctx, "create raw job table", render(createRawJobQuery, fileID)); err != nil {
		return 0, err
	}
	return r.exec(ctx, "select raw job", render(selectRawJobQuery, fileID))
}

// InsertJobs creates the jobs recorded in raw_job_<id>. Under the canonical
// lock it first points raw rows at jobs that already carry their identity.
func (r *StageRepository) InsertJobs(ctx context.Context, fileID, vintageID int64) (int64, error) {
	tx, err := strictTx(ctx)
	if err != nil {
		return 0, err
	}
	if err := persistence.LockCanonical(ctx, tx); err != nil {
		return 0, err
	}
	if _, err := r.exec(ctx, "remap raw jobs", render(remapRawJobQuery, fileID)); err != nil {
		return 0, err
	}
	return r.exec(ctx, "insert jobs", render(insertJobsQuery, fileID), vintageID)
}

func (r *StageRepository) InsertSalaries(ctx context.Context, fileID, vintageID int64) (int64, error) {
	return r.exec(ctx, "insert salaries", render(insertSalariesQuery, fileID), vintageID)
}

// InvalidMoney is a raw row whose salary or extra pay is not a number.
type InvalidMoney struct {
	RecordID string
	Salary   string
	ExtraPay string
}

// InvalidMoney returns the number of raw rows with an amount that does not
// parse, and up to limit of them.
func (r *StageRepository) InvalidMoney(ctx context.Context, fileID int64, limit int) (int64, []InvalidMoney, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, render(invalidMoneyQuery, fileID), limit)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to select invalid amounts")
	}
	var total int64
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (InvalidMoney, error) {
		var m InvalidMoney
		err := row.Scan(&total, &m.RecordID, &m.Salary, &m.ExtraPay)
		return m, err
	})
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to scan invalid amount")
	}
	return total, out, nil
}

// RewriteAgency points raw rows reporting from at the canonical spelling to.
func (r *StageRepository) RewriteAgency(ctx context.Context, fileID int64, from, to string) (int64, error) {
	return r.exec(ctx, "rewrite agency", render(rewriteAgencyQuery, fileID), from, to)
}

func (r *StageRepository) RewriteUnit(ctx context.Context, fileID int64, from, to string) (int64, error) {
	return r.exec(ctx, "rewrite unit", render(rewriteUnitQuery, fileID), from, to)
}

func (r *StageRepository) RewriteDepartment(ctx context.Context, fileID, unitID int64, from, to string) (int64, error) {
	return r.exec(ctx, "rewrite department", render(rewriteDepartmentQuery, fileID), unitID, from, to)
}

// Counts reports staged and derived row counts; missing tables count zero.
func (r *StageRepository) Counts(ctx context.Context, fileID int64) (StageCounts, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return StageCounts{}, errors.Wrap(err, "failed to get transaction")
	}
	var c StageCounts
	targets := []struct {
		table pgx.Identifier
		dst   *int64
	}{
		{staging.RawPayroll(fileID), &c.Raw},
		{staging.RawPerson(fileID), &c.Persons},
		{staging.RawJob(fileID), &c.Jobs},
	}
	for _, t := range targets {
		ok, err := tableExists(ctx, tx, t.table)
		if err != nil {
			return StageCounts{}, err
		}
		if !ok {
			continue
		}
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM "+t.table.Sanitize()).Scan(t.dst); err != nil {
			return StageCounts{}, errors.Wrapf(err, "failed to count %s", t.table.Sanitize())
		}
		if t.dst == &c.Raw {
			if err := tx.QueryRow(ctx, render(unattributedQuery, fileID)).Scan(&c.Unattributed); err != nil {
				return StageCounts{}, errors.Wrap(err, "failed to count unattributed rows")
			}
		}
	}
	return c, nil
}

func tableExists(ctx context.Context, tx repo.Tx, t pgx.Identifier) (bool, error) {
	var ok bool
	if err := tx.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, t.Sanitize()).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "failed to check table")
	}
	return ok, nil
}

func (r *StageRepository) names(ctx context.Context, q string, args ...any) ([]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select names")
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan name")
	}
	return out, nil
}

func (r *StageRepository) exec(ctx context.Context, what, q string, args ...any) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	ct, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to %s", what)
	}
	return ct.RowsAffected(), nil
}

// strictTx returns the context transaction; temp tables need one.
func strictTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := composables.UseStrictTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "bulk create requires a transaction")
	}
	return tx, nil
}
