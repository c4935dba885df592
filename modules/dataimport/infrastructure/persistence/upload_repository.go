package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

var ErrFileNotFound = serrors.NewError("IMPORT_FILE_NOT_FOUND", "standardized file not found")

const (
	fileSelectQuery = `
		SELECT id, upload_id, standardized_file, reporting_year, status, created_at, updated_at
		  FROM data_import_standardizedfile`

	uploadInsertQuery = `INSERT INTO data_import_upload (created_by) VALUES ($1) RETURNING id`

	fileInsertQuery = `
		INSERT INTO data_import_standardizedfile (upload_id, standardized_file, reporting_year)
		VALUES ($1, $2, $3)
		RETURNING id`
)

type UploadRepository struct{}

func NewUploadRepository() upload.Repository {
	return &UploadRepository{}
}

func (r *UploadRepository) Create(ctx context.Context, params upload.CreateParams) (*upload.File, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var uploadID int64
	if err := tx.QueryRow(ctx, uploadInsertQuery, params.CreatedBy).Scan(&uploadID); err != nil {
		return nil, errors.Wrap(err, "failed to insert upload")
	}
	var fileID int64
	if err := tx.QueryRow(ctx, fileInsertQuery, uploadID, params.Path, params.ReportingYear).Scan(&fileID); err != nil {
		return nil, errors.Wrap(err, "failed to insert standardized file")
	}
	return r.GetFile(ctx, fileID)
}

func (r *UploadRepository) GetFile(ctx context.Context, id int64) (*upload.File, error) {
	return r.one(ctx, fileSelectQuery+" WHERE id = $1", id)
}

func (r *UploadRepository) LockFile(ctx context.Context, id int64) (*upload.File, error) {
	return r.one(ctx, fileSelectQuery+" WHERE id = $1 FOR UPDATE", id)
}

func (r *UploadRepository) Exists(ctx context.Context, id int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to get transaction")
	}
	var ok bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM data_import_standardizedfile WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "failed to check file")
	}
	return ok, nil
}

func (r *UploadRepository) SetStatus(ctx context.Context, id int64, status upload.Status) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	ct, err := tx.Exec(ctx, `UPDATE data_import_standardizedfile SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return errors.Wrap(err, "failed to update status")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(ErrFileNotFound, "id %d", id)
	}
	return nil
}

func (r *UploadRepository) ListFiles(ctx context.Context) ([]*upload.File, error) {
	return r.query(ctx, fileSelectQuery+" ORDER BY id")
}

// Delete removes the upload, which cascades to the file, its agency links
// and every canonical row of that vintage.
func (r *UploadRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to get transaction")
	}
	ct, err := tx.Exec(ctx, `
		DELETE FROM data_import_upload
		 WHERE id = (SELECT upload_id FROM data_import_standardizedfile WHERE id = $1)`, id)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete upload")
	}
	return ct.RowsAffected() > 0, nil
}

func (r *UploadRepository) one(ctx context.Context, query string, id int64) (*upload.File, error) {
	files, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrFileNotFound, "id %d", id)
	}
	return files[0], nil
}

func (r *UploadRepository) query(ctx context.Context, query string, args ...any) ([]*upload.File, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*upload.File, error) {
		var (
			f      upload.File
			status string
		)
		if err := row.Scan(&f.ID, &f.UploadID, &f.Path, &f.ReportingYear, &status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		st, err := upload.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
		return &f, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan standardized file row")
	}
	return files, nil
}
