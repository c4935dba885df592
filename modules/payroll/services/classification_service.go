package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/aggregates/employer"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/classification"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
)

// UnitInput describes one unit reported in a file.
type UnitInput struct {
	EmployerID     int64
	ReportedByISBE bool
	ReportedByIBHE bool
}

type ClassifyResult struct {
	Classified   int
	Unclassified int
	Populated    int
}

type ClassificationService struct {
	aliases   alias.Repository
	employers employer.Repository
	reference *persistence.ReferenceRepository
}

func NewClassificationService(
	aliases alias.Repository,
	employers employer.Repository,
	reference *persistence.ReferenceRepository,
) *ClassificationService {
	return &ClassificationService{
		aliases:   aliases,
		employers: employers,
		reference: reference,
	}
}

// ClassifyUnits runs the taxonomy cascade for units and enriches the
// population-bearing ones. Units matching no rule keep a null taxonomy.
func (s *ClassificationService) ClassifyUnits(ctx context.Context, units []UnitInput) (ClassifyResult, error) {
	if len(units) == 0 {
		return ClassifyResult{}, nil
	}
	return inTx(ctx, func(txCtx context.Context) (ClassifyResult, error) {
		log := composables.UseLogger(txCtx).WithField("component", "classification")

		names := make(map[int64][]string, len(units))
		var all []string
		for _, u := range units {
			aliases, err := s.aliases.ListByOwner(txCtx, alias.OwnerEmployer, u.EmployerID)
			if err != nil {
				return ClassifyResult{}, err
			}
			for _, a := range aliases {
				names[u.EmployerID] = append(names[u.EmployerID], a.Name)
				all = append(all, a.Name)
			}
		}

		refs, err := s.reference.LookupTaxonomy(txCtx, all)
		if err != nil {
			return ClassifyResult{}, err
		}
		lookup := func(name string) (classification.Taxonomy, bool) {
			t, ok := refs[strings.ToLower(strings.TrimSpace(name))]
			return t, ok
		}

		var res ClassifyResult
		populations := make(map[string][]classification.PopulationRecord)
		for _, u := range units {
			t, rule := classification.ResolveTaxonomy(classification.UnitFacts{
				Aliases:        names[u.EmployerID],
				ReportedByISBE: u.ReportedByISBE,
				ReportedByIBHE: u.ReportedByIBHE,
			}, lookup)
			recordUnitClassified(rule)

			if rule == classification.RuleNone {
				res.Unclassified++
				log.WithFields(logrus.Fields{
					"employer_id": u.EmployerID,
					"aliases":     names[u.EmployerID],
				}).Warn("unit matched no taxonomy rule")
				continue
			}

			taxonomyID, err := s.reference.TaxonomyID(txCtx, t)
			if err != nil {
				return ClassifyResult{}, err
			}
			if err := s.employers.SetTaxonomy(txCtx, u.EmployerID, &taxonomyID); err != nil {
				return ClassifyResult{}, mapPgErrorToServiceError(err)
			}
			res.Classified++

			ok, err := s.enrichPopulation(txCtx, u.EmployerID, t.EntityType, names[u.EmployerID], populations)
			if err != nil {
				return ClassifyResult{}, err
			}
			if ok {
				res.Populated++
			}
		}
		return res, nil
	})
}

func (s *ClassificationService) enrichPopulation(
	ctx context.Context,
	employerID int64,
	entityType string,
	aliases []string,
	cache map[string][]classification.PopulationRecord,
) (bool, error) {
	classes := classification.PopulationClasses(entityType)
	if classes == nil {
		return false, nil
	}
	has, err := s.reference.HasPopulation(ctx, employerID)
	if err != nil || has {
		return false, err
	}

	records, cached := cache[entityType]
	if !cached {
		records, err = s.reference.PopulationRecords(ctx, classes)
		if err != nil {
			return false, err
		}
		cache[entityType] = records
	}

	match, ok := classification.MatchPopulation(entityType, aliases, records)
	recordPopulation(ok)
	if !ok {
		return false, nil
	}
	return s.reference.SetPopulation(ctx, employerID, match.Population, match.DataYear)
}

// ClassifyDepartments tags departments with a universe, preferred alias first.
func (s *ClassificationService) ClassifyDepartments(ctx context.Context, ids []int64) (ClassifyResult, error) {
	if len(ids) == 0 {
		return ClassifyResult{}, nil
	}
	return inTx(ctx, func(txCtx context.Context) (ClassifyResult, error) {
		var res ClassifyResult
		universes := make(map[classification.Universe]int64)
		for _, id := range ids {
			aliases, err := s.aliases.ListByOwner(txCtx, alias.OwnerEmployer, id)
			if err != nil {
				return ClassifyResult{}, err
			}
			names := make([]string, 0, len(aliases))
			for _, a := range aliases {
				names = append(names, a.Name)
			}

			u := classification.UniverseOf(names)
			recordDepartmentClassified(u)
			if u == classification.UniverseNone {
				res.Unclassified++
				continue
			}

			universeID, ok := universes[u]
			if !ok {
				universeID, err = s.reference.UniverseID(txCtx, u)
				if err != nil {
					return ClassifyResult{}, err
				}
				universes[u] = universeID
			}
			if err := s.employers.SetUniverse(txCtx, id, &universeID); err != nil {
				return ClassifyResult{}, mapPgErrorToServiceError(err)
			}
			res.Classified++
		}
		return res, nil
	})
}
