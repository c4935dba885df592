package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/staging"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/constants"
)

type UploadInput struct {
	Path          string  `validate:"required"`
	ReportingYear int     `validate:"required,gte=1990"`
	CreatedBy     *string `validate:"omitempty,max=255"`
}

type UploadService struct {
	files       upload.Repository
	transitions *TransitionService
	resolve     func(ref string) string
	clock       func() time.Time
}

func NewUploadService(files upload.Repository, transitions *TransitionService, resolve func(ref string) string) *UploadService {
	if resolve == nil {
		resolve = func(ref string) string { return ref }
	}
	return &UploadService{
		files:       files,
		transitions: transitions,
		resolve:     resolve,
		clock:       time.Now,
	}
}

// Validate rejects inputs that must never reach the database.
func (s *UploadService) Validate(in UploadInput) (*staging.Meta, error) {
	if err := constants.Validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, validationError("invalid upload", err)
		}
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return nil, validationError(strings.Join(fields, "; "), err)
	}
	if now := s.clock().Year(); in.ReportingYear > now {
		return nil, validationError(fmt.Sprintf("reporting year %d is in the future", in.ReportingYear), nil)
	}

	path := s.resolve(in.Path)
	if _, err := os.Stat(path); err != nil {
		return nil, validationError(fmt.Sprintf("cannot read %s", path), err)
	}
	meta, err := staging.ReadMeta(path)
	if err != nil {
		if errors.Is(err, staging.ErrNotText) {
			return nil, validationError("upload is not a CSV", err)
		}
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, validationError(fmt.Sprintf("missing columns: %s", strings.Join(meta.Missing, ", ")), err)
	}
	return meta, nil
}

// Upload validates the file, records the upload and starts the import.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*upload.File, error) {
	meta, err := s.Validate(in)
	if err != nil {
		return nil, err
	}
	file, err := inTx(ctx, func(txCtx context.Context) (*upload.File, error) {
		file, err := s.files.Create(txCtx, upload.CreateParams{
			CreatedBy:     in.CreatedBy,
			Path:          in.Path,
			ReportingYear: in.ReportingYear,
		})
		if err != nil {
			return nil, mapPgErrorToServiceError(err)
		}
		return s.transitions.Fire(txCtx, file.ID, upload.CopyToDatabase)
	})
	if err != nil {
		return nil, err
	}
	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"component":      "dataimport",
		"file_id":        file.ID,
		"upload_id":      file.UploadID,
		"reporting_year": file.ReportingYear,
		"encoding":       meta.Encoding,
	}).Info("upload accepted")
	return file, nil
}
