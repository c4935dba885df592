// Package staging loads uploaded payroll CSVs into per-file raw tables.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	ferrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/csvutil"
)

// ISBEPlaceholder is the employer value ISBE reports for school districts;
// the actual district is in the department column.
const ISBEPlaceholder = "all elementary/high school employees"

const (
	colAgency = iota
	colEmployer
	colDepartment
	colFirstName
	colLastName
	colTitle
	colSalary
	colExtraPay
	colDateStarted
	colDataYear
)

// Create drops and recreates raw_payroll_<fileID> in the context transaction
// and streams src into it with COPY. It returns the number of loaded rows.
func Create(ctx context.Context, fileID int64, src io.Reader) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, ferrors.Wrap(err, "failed to get transaction")
	}
	table := RawPayroll(fileID)
	name := table.Sanitize()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return 0, ferrors.Wrap(err, "failed to drop raw table")
	}
	if _, err := tx.Exec(ctx, createRawPayroll(name)); err != nil {
		return 0, ferrors.Wrap(err, "failed to create raw table")
	}

	cr := csvutil.NewReader(src)
	header, err := csvutil.ReadHeader(cr)
	if err != nil {
		return 0, ferrors.Wrap(err, "failed to read header")
	}
	if missing := csvutil.Missing(header, Columns); len(missing) > 0 {
		return 0, fmt.Errorf("%w: %v", ErrMissingColumns, missing)
	}

	rows := &rowSource{csv: cr, idx: csvutil.Index(header)}
	n, err := tx.CopyFrom(ctx, table, Columns, pgx.CopyFromFunc(rows.next))
	if err != nil {
		return 0, ferrors.Wrapf(err, "failed to copy rows (line %d)", rows.line)
	}
	if rows.unattributed > 0 {
		composables.UseLogger(ctx).WithFields(logrus.Fields{
			"file_id":      fileID,
			"rows":         n,
			"unattributed": rows.unattributed,
		}).Warn("staged rows without employer")
	}

	for _, col := range []string{"employer", "department", "responding_agency"} {
		idx := pgx.Identifier{fmt.Sprintf("raw_payroll_%d_%s_idx", fileID, col)}.Sanitize()
		if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx, name, col)); err != nil {
			return 0, ferrors.Wrapf(err, "failed to index %s", col)
		}
	}
	return n, nil
}

// CreateFromFile decodes the CSV at path and stages it.
func CreateFromFile(ctx context.Context, fileID int64, path string) (int64, error) {
	r, _, closeFn, err := Open(path)
	if err != nil {
		return 0, ferrors.Wrap(err, "failed to open source")
	}
	defer func() { _ = closeFn() }()
	return Create(ctx, fileID, r)
}

// Drop removes every raw table of the file. Missing tables are ignored.
func Drop(ctx context.Context, fileID int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return ferrors.Wrap(err, "failed to get transaction")
	}
	for _, t := range []pgx.Identifier{RawJob(fileID), RawPerson(fileID), RawPayroll(fileID)} {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+t.Sanitize()); err != nil {
			return ferrors.Wrapf(err, "failed to drop %s", t.Sanitize())
		}
	}
	return nil
}

// Exists reports whether the file has been staged.
func Exists(ctx context.Context, fileID int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, ferrors.Wrap(err, "failed to get transaction")
	}
	var ok bool
	err = tx.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, RawPayroll(fileID).Sanitize()).Scan(&ok)
	if err != nil {
		return false, ferrors.Wrap(err, "failed to check raw table")
	}
	return ok, nil
}

func createRawPayroll(name string) string {
	return `CREATE TABLE ` + name + ` (
		record_id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		responding_agency VARCHAR NULL,
		employer          VARCHAR NULL,
		department        VARCHAR NULL,
		first_name        VARCHAR NULL,
		last_name         VARCHAR NULL,
		title             VARCHAR NULL,
		salary            VARCHAR NULL,
		extra_pay         VARCHAR NULL,
		date_started      VARCHAR NULL,
		data_year         INT NULL
	)`
}

type rowSource struct {
	csv interface {
		Read() ([]string, error)
	}
	idx  map[string]int
	line int
	// unattributed counts rows left without an employer.
	unattributed int
}

// next yields one normalized record per CSV row, skipping blank rows.
func (s *rowSource) next() ([]any, error) {
	for {
		rec, err := s.csv.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		s.line++
		if values, ok := normalizeRecord(rec, s.idx); ok {
			if values[colEmployer].(*string) == nil {
				s.unattributed++
			}
			return values, nil
		}
	}
}

func normalizeRecord(rec []string, idx map[string]int) ([]any, bool) {
	cells := make([]*string, len(Columns))
	empty := true
	for i, col := range Columns {
		cells[i] = cell(csvutil.Field(rec, idx, col))
		if cells[i] != nil {
			empty = false
		}
	}
	if empty {
		return nil, false
	}

	if e := cells[colEmployer]; e != nil && strings.EqualFold(*e, ISBEPlaceholder) {
		cells[colEmployer], cells[colDepartment] = cells[colDepartment], nil
	}

	out := make([]any, len(Columns))
	for i := range Columns {
		if i == colDataYear {
			out[i] = year(cells[i])
			continue
		}
		out[i] = cells[i]
	}
	return out, true
}

// cell normalizes to NFC and trims. Empty cells are NULL.
func cell(v string) *string {
	v = strings.TrimSpace(norm.NFC.String(v))
	if v == "" {
		return nil
	}
	return &v
}

func year(v *string) *int32 {
	if v == nil {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSuffix(*v, ".0"), 10, 32)
	if err != nil {
		return nil
	}
	y := int32(n)
	return &y
}
