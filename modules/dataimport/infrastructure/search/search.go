// Package search hands finished imports to the external search index.
package search

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type IndexRequest struct {
	FileID        int64
	UploadID      int64
	ReportingYear int
}

type Indexer interface {
	Index(ctx context.Context, req IndexRequest) (IndexResult, error)
}

type IndexResult struct {
	Units    int
	Salaries int
}

// UnitDoc summarizes one unit's payroll for a reporting year.
type UnitDoc struct {
	EmployerID  int64           `json:"employer_id"`
	Name        string          `json:"name"`
	Taxonomy    string          `json:"taxonomy,omitempty"`
	SizeClass   string          `json:"size_class"`
	Population  *int64          `json:"population,omitempty"`
	Headcount   int64           `json:"headcount"`
	Expenditure decimal.Decimal `json:"expenditure"`
	Year        int             `json:"year"`
}

type SalaryDoc struct {
	SalaryID   int64               `json:"salary_id"`
	PersonID   int64               `json:"person_id"`
	FirstName  string              `json:"first_name,omitempty"`
	LastName   string              `json:"last_name,omitempty"`
	Title      string              `json:"title"`
	EmployerID int64               `json:"employer_id"`
	Employer   string              `json:"employer"`
	Unit       string              `json:"unit"`
	Amount     decimal.NullDecimal `json:"amount"`
	ExtraPay   decimal.NullDecimal `json:"extra_pay"`
	IsWage     bool                `json:"is_wage"`
	StartDate  *time.Time          `json:"start_date,omitempty"`
	Year       int                 `json:"year"`
}

// SizeClass buckets a unit by population.
func SizeClass(population *int64) string {
	switch {
	case population == nil:
		return "unknown"
	case *population < 10_000:
		return "small"
	case *population < 100_000:
		return "medium"
	default:
		return "large"
	}
}

// NopIndexer logs the hand-off; used when no search backend is configured.
type NopIndexer struct {
	log *logrus.Entry
}

func NewNopIndexer(log *logrus.Entry) *NopIndexer {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = logrus.NewEntry(l)
	}
	return &NopIndexer{log: log.WithField("component", "search")}
}

func (n *NopIndexer) Index(_ context.Context, req IndexRequest) (IndexResult, error) {
	n.log.WithFields(logrus.Fields{
		"file_id":        req.FileID,
		"upload_id":      req.UploadID,
		"reporting_year": req.ReportingYear,
	}).Info("search: no index configured, skipping hand-off")
	return IndexResult{}, nil
}
