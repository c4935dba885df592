package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/aggregates/agency"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/aggregates/employer"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/domain/entities/alias"
	"github.com/iota-uz/payroll-reconciler/modules/payroll/infrastructure/persistence"
	"github.com/iota-uz/payroll-reconciler/pkg/composables"
	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

var (
	ErrScopeMismatch = serrors.NewError("PAYROLL_ALIAS_SCOPE_MISMATCH", "alias belongs to a different namespace")
	ErrNotAUnit      = serrors.NewError("PAYROLL_NOT_A_UNIT", "departments can only belong to units")
	ErrEmptyName     = serrors.NewError("PAYROLL_EMPTY_NAME", "name is empty")
)

// AliasService owns every write to the canonical agency and employer graph.
type AliasService struct {
	aliases   alias.Repository
	agencies  agency.Repository
	employers employer.Repository
}

func NewAliasService(aliases alias.Repository, agencies agency.Repository, employers employer.Repository) *AliasService {
	return &AliasService{
		aliases:   aliases,
		agencies:  agencies,
		employers: employers,
	}
}

// Merge records name as a non-preferred alias of the entity that owns the
// alias matchID and returns that alias. The alias must live in scope.
func (s *AliasService) Merge(ctx context.Context, scope alias.Scope, matchID int64, name string) (alias.Alias, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return alias.Alias{}, ErrEmptyName
	}
	return inTx(ctx, func(txCtx context.Context) (alias.Alias, error) {
		matched, err := s.aliases.GetByID(txCtx, scope.Owner, matchID)
		if err != nil {
			return alias.Alias{}, err
		}
		if matched.ParentKey != scope.ParentKey {
			return alias.Alias{}, fmt.Errorf("%w: alias %d is in namespace %d, not %d", ErrScopeMismatch, matchID, matched.ParentKey, scope.ParentKey)
		}
		if matched.Name == name {
			return matched, nil
		}
		if _, err := s.aliases.Add(txCtx, scope.Owner, matched.OwnerID, name); err != nil {
			return alias.Alias{}, mapPgErrorToServiceError(err)
		}
		return matched, nil
	})
}

// CreateAgency returns the agency aliased name, creating it when none exists.
func (s *AliasService) CreateAgency(ctx context.Context, name string) (*agency.RespondingAgency, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	return inTx(ctx, func(txCtx context.Context) (*agency.RespondingAgency, error) {
		if err := lockCanonical(txCtx); err != nil {
			return nil, err
		}
		existing, err := s.agencies.FindByAlias(txCtx, name)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, persistence.ErrAgencyNotFound) {
			return nil, err
		}
		created, err := s.agencies.Create(txCtx, agency.New(name))
		if err != nil {
			return nil, mapPgErrorToServiceError(err)
		}
		recordCreated("agency")
		return created, nil
	})
}

// CreateUnit returns the unit aliased name, creating it with vintageID when none exists.
func (s *AliasService) CreateUnit(ctx context.Context, name string, vintageID int64) (*employer.Employer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	return inTx(ctx, func(txCtx context.Context) (*employer.Employer, error) {
		if err := lockCanonical(txCtx); err != nil {
			return nil, err
		}
		existing, err := s.employers.FindUnit(txCtx, name)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, persistence.ErrEmployerNotFound) {
			return nil, err
		}
		created, err := s.employers.Create(txCtx, employer.New(name, vintageID))
		if err != nil {
			return nil, mapPgErrorToServiceError(err)
		}
		recordCreated("unit")
		return created, nil
	})
}

// CreateDepartment returns the department of parentID aliased name, creating it when none exists.
func (s *AliasService) CreateDepartment(ctx context.Context, parentID int64, name string, vintageID int64) (*employer.Employer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	return inTx(ctx, func(txCtx context.Context) (*employer.Employer, error) {
		if err := lockCanonical(txCtx); err != nil {
			return nil, err
		}
		parent, err := s.employers.GetByID(txCtx, parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsUnit() {
			return nil, fmt.Errorf("%w: employer %d is a department", ErrNotAUnit, parentID)
		}
		existing, err := s.employers.FindDepartment(txCtx, parentID, name)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, persistence.ErrEmployerNotFound) {
			return nil, err
		}
		created, err := s.employers.Create(txCtx, employer.New(name, vintageID, employer.WithParent(parentID)))
		if err != nil {
			return nil, mapPgErrorToServiceError(err)
		}
		recordCreated("department")
		return created, nil
	})
}

// SetPreferred makes name the preferred alias of the owner, demoting the previous one.
func (s *AliasService) SetPreferred(ctx context.Context, owner alias.Owner, ownerID int64, name string) (alias.Alias, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return alias.Alias{}, ErrEmptyName
	}
	return inTx(ctx, func(txCtx context.Context) (alias.Alias, error) {
		a, err := s.aliases.SetPreferred(txCtx, owner, ownerID, name)
		return a, mapPgErrorToServiceError(err)
	})
}

func (s *AliasService) FindUnit(ctx context.Context, name string) (*employer.Employer, error) {
	return s.employers.FindUnit(ctx, name)
}

func (s *AliasService) Aliases(ctx context.Context, owner alias.Owner, ownerID int64) ([]alias.Alias, error) {
	return s.aliases.ListByOwner(ctx, owner, ownerID)
}

// Namespace lists every alias in scope.
func (s *AliasService) Namespace(ctx context.Context, scope alias.Scope) ([]alias.Alias, error) {
	return s.aliases.ListByScope(ctx, scope)
}

func lockCanonical(ctx context.Context) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	return persistence.LockCanonical(ctx, tx)
}
