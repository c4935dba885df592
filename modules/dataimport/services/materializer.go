package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/infrastructure/persistence"
	payrollservices "github.com/iota-uz/payroll-reconciler/modules/payroll/services"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

const invalidMoneySample = 5

// Materializer turns a file's reviewed raw rows into canonical rows. Each
// method is safe to re-run against unchanged raw data.
type Materializer struct {
	stage          *persistence.StageRepository
	classification *payrollservices.ClassificationService
}

func NewMaterializer(stage *persistence.StageRepository, classification *payrollservices.ClassificationService) *Materializer {
	return &Materializer{stage: stage, classification: classification}
}

func (m *Materializer) InsertAgencies(ctx context.Context, file *upload.File) (int64, error) {
	n, err := m.stage.InsertAgencies(ctx, file.ID)
	return n, mapPgErrorToServiceError(err)
}

// InsertUnits creates the file's unmatched units and classifies every
// unit of the file that has no taxonomy yet.
func (m *Materializer) InsertUnits(ctx context.Context, file *upload.File) (int64, error) {
	return inTx(ctx, func(txCtx context.Context) (int64, error) {
		n, err := m.stage.InsertUnits(txCtx, file.ID, file.UploadID)
		if err != nil {
			return 0, mapPgErrorToServiceError(err)
		}
		facts, err := m.stage.UnitsToClassify(txCtx, file.ID)
		if err != nil {
			return 0, err
		}
		units := make([]payrollservices.UnitInput, 0, len(facts))
		for _, f := range facts {
			units = append(units, payrollservices.UnitInput{
				EmployerID:     f.EmployerID,
				ReportedByISBE: f.ReportedByISBE,
				ReportedByIBHE: f.ReportedByIBHE,
			})
		}
		res, err := m.classification.ClassifyUnits(txCtx, units)
		if err != nil {
			return 0, err
		}
		recordUnclassified(res.Unclassified)
		composables.UseLogger(txCtx).WithFields(logrus.Fields{
			"file_id":      file.ID,
			"created":      n,
			"classified":   res.Classified,
			"unclassified": res.Unclassified,
			"populated":    res.Populated,
		}).Info("units materialized")
		return n, nil
	})
}

func (m *Materializer) InsertDepartments(ctx context.Context, file *upload.File) (int64, error) {
	return inTx(ctx, func(txCtx context.Context) (int64, error) {
		n, err := m.stage.InsertDepartments(txCtx, file.ID, file.UploadID)
		if err != nil {
			return 0, mapPgErrorToServiceError(err)
		}
		ids, err := m.stage.DepartmentsToClassify(txCtx, file.ID)
		if err != nil {
			return 0, err
		}
		if _, err := m.classification.ClassifyDepartments(txCtx, ids); err != nil {
			return 0, err
		}
		return n, nil
	})
}

func (m *Materializer) InsertPositions(ctx context.Context, file *upload.File) (int64, error) {
	n, err := m.stage.InsertPositions(ctx, file.ID, file.UploadID)
	return n, mapPgErrorToServiceError(err)
}

func (m *Materializer) SelectRawPerson(ctx context.Context, file *upload.File) (int64, error) {
	n, err := m.stage.SelectRawPerson(ctx, file.ID, file.UploadID)
	return n, mapPgErrorToServiceError(err)
}

func (m *Materializer) InsertPersons(ctx context.Context, file *upload.File) (int64, error) {
	n, err := m.stage.InsertPersons(ctx, file.ID, file.UploadID)
	return n, mapPgErrorToServiceError(err)
}

func (m *Materializer) SelectRawJob(ctx context.Context, file *upload.File) (int64, error) {
	n, err := m.stage.SelectRawJob(ctx, file.ID)
	return n, mapPgErrorToServiceError(err)
}

func (m *Materializer) InsertJobs(ctx context.Context, file *upload.File) (int64, error) {
	n, err := m.stage.InsertJobs(ctx, file.ID, file.UploadID)
	return n, mapPgErrorToServiceError(err)
}

// InsertSalaries rejects the file when an amount does not parse. Rows with
// neither amount nor extra pay fail the salary CHECK.
func (m *Materializer) InsertSalaries(ctx context.Context, file *upload.File) (int64, error) {
	total, sample, err := m.stage.InvalidMoney(ctx, file.ID, invalidMoneySample)
	if err != nil {
		return 0, err
	}
	if total > 0 {
		records := make([]string, 0, len(sample))
		for _, s := range sample {
			records = append(records, fmt.Sprintf("%s (salary %q, extra pay %q)", s.RecordID, s.Salary, s.ExtraPay))
		}
		return 0, validationError(fmt.Sprintf("%d raw rows have an amount that is not a number: %s",
			total, strings.Join(records, "; ")), nil)
	}
	n, err := m.stage.InsertSalaries(ctx, file.ID, file.UploadID)
	return n, mapPgErrorToServiceError(err)
}

// PopulateModelsFromRawData runs every insert of the pipeline in one
// transaction, in pipeline order. A second run adds no rows.
func (m *Materializer) PopulateModelsFromRawData(ctx context.Context, file *upload.File) error {
	steps := []func(context.Context, *upload.File) (int64, error){
		m.InsertAgencies,
		m.InsertUnits,
		m.InsertDepartments,
		m.InsertPositions,
		m.SelectRawPerson,
		m.InsertPersons,
		m.SelectRawJob,
		m.InsertJobs,
		m.InsertSalaries,
	}
	return composables.InTx(ctx, func(txCtx context.Context) error {
		for _, step := range steps {
			if _, err := step(txCtx, file); err != nil {
				return err
			}
		}
		return nil
	})
}
