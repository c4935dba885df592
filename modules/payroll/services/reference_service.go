package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/aggregates/agency"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/classification"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/pkg/csvutil"
	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

var (
	ErrReferenceFormat = serrors.NewError("PAYROLL_REFERENCE_FORMAT", "malformed reference file")
	ErrInvalidTag      = serrors.NewError("PAYROLL_INVALID_TAG", "tag must be ISBE or IBHE")
)

var (
	taxonomyColumns   = []string{"entity", "entity_type", "chicago", "cook_or_collar"}
	populationColumns = []string{"name", "classification", "geoid", "population", "data_year"}
)

// ReferenceService loads the reference lists the classification cascade reads.
type ReferenceService struct {
	reference *persistence.ReferenceRepository
	agencies  agency.Repository
}

func NewReferenceService(reference *persistence.ReferenceRepository, agencies agency.Repository) *ReferenceService {
	return &ReferenceService{
		reference: reference,
		agencies:  agencies,
	}
}

// LoadTaxonomy replaces the reference taxonomy with the rows of a CSV.
func (s *ReferenceService) LoadTaxonomy(ctx context.Context, r io.Reader) (int64, error) {
	rows, err := ParseTaxonomyCSV(r)
	if err != nil {
		return 0, err
	}
	return inTx(ctx, func(txCtx context.Context) (int64, error) {
		n, err := s.reference.ReplaceTaxonomy(txCtx, rows)
		return n, mapPgErrorToServiceError(err)
	})
}

// LoadPopulation replaces the reference population with the rows of a CSV.
func (s *ReferenceService) LoadPopulation(ctx context.Context, r io.Reader) (int64, error) {
	rows, err := ParsePopulationCSV(r)
	if err != nil {
		return 0, err
	}
	return inTx(ctx, func(txCtx context.Context) (int64, error) {
		n, err := s.reference.ReplacePopulation(txCtx, rows)
		return n, mapPgErrorToServiceError(err)
	})
}

// TagAgency sets or clears (empty tag) the tag of the agency aliased name.
func (s *ReferenceService) TagAgency(ctx context.Context, name, tag string) (*agency.RespondingAgency, error) {
	var t *agency.Tag
	if tag != "" {
		v := agency.Tag(strings.ToUpper(strings.TrimSpace(tag)))
		if !v.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTag, tag)
		}
		t = &v
	}
	return inTx(ctx, func(txCtx context.Context) (*agency.RespondingAgency, error) {
		a, err := s.agencies.FindByAlias(txCtx, strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if err := s.agencies.SetTag(txCtx, a.ID(), t); err != nil {
			return nil, err
		}
		return s.agencies.GetByID(txCtx, a.ID())
	})
}

func ParseTaxonomyCSV(r io.Reader) ([]persistence.TaxonomyReference, error) {
	var out []persistence.TaxonomyReference
	err := readReference(r, taxonomyColumns, func(line int, get func(string) string) error {
		entity := get("entity")
		if entity == "" {
			return nil
		}
		chicago, err := parseFlag(get("chicago"))
		if err != nil {
			return fmt.Errorf("line %d: chicago: %w", line, err)
		}
		collar, err := parseFlag(get("cook_or_collar"))
		if err != nil {
			return fmt.Errorf("line %d: cook_or_collar: %w", line, err)
		}
		entityType := get("entity_type")
		if entityType == "" {
			return fmt.Errorf("line %d: entity_type is empty", line)
		}
		out = append(out, persistence.TaxonomyReference{
			Entity: entity,
			Taxonomy: classification.Taxonomy{
				EntityType:   entityType,
				Chicago:      chicago,
				CookOrCollar: collar,
			},
		})
		return nil
	})
	return out, err
}

func ParsePopulationCSV(r io.Reader) ([]classification.PopulationRecord, error) {
	var out []classification.PopulationRecord
	err := readReference(r, populationColumns, func(line int, get func(string) string) error {
		name := get("name")
		if name == "" {
			return nil
		}
		population, err := strconv.ParseInt(strings.ReplaceAll(get("population"), ",", ""), 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: population: %w", line, err)
		}
		year, err := strconv.Atoi(get("data_year"))
		if err != nil {
			return fmt.Errorf("line %d: data_year: %w", line, err)
		}
		out = append(out, classification.PopulationRecord{
			Name:           name,
			Classification: get("classification"),
			GeoID:          get("geoid"),
			Population:     population,
			DataYear:       year,
		})
		return nil
	})
	return out, err
}

func readReference(r io.Reader, required []string, row func(line int, get func(string) string) error) error {
	cr := csvutil.NewReader(r)
	header, err := csvutil.ReadHeader(cr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReferenceFormat, err)
	}
	if missing := csvutil.Missing(header, required); len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %s", ErrReferenceFormat, strings.Join(missing, ", "))
	}
	idx := csvutil.Index(header)

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrReferenceFormat, line, err)
		}
		get := func(col string) string { return csvutil.Field(rec, idx, col) }
		if err := row(line, get); err != nil {
			return fmt.Errorf("%w: %v", ErrReferenceFormat, err)
		}
	}
}

func parseFlag(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "", "0", "f", "false", "n", "no":
		return false, nil
	case "1", "t", "true", "y", "yes":
		return true, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", v)
	}
}
