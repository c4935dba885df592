package employer

import "context"

// Employer is a unit (no parent) or a department of a unit.
type Employer struct {
	id         int64
	parentID   *int64
	taxonomyID *int64
	universeID *int64
	vintageID  int64
	name       string
}

type Option func(*Employer)

func WithID(id int64) Option {
	return func(e *Employer) {
		e.id = id
	}
}

func WithParent(parentID int64) Option {
	return func(e *Employer) {
		e.parentID = &parentID
	}
}

func WithTaxonomy(taxonomyID int64) Option {
	return func(e *Employer) {
		e.taxonomyID = &taxonomyID
	}
}

func WithUniverse(universeID int64) Option {
	return func(e *Employer) {
		e.universeID = &universeID
	}
}

func New(name string, vintageID int64, opts ...Option) *Employer {
	e := &Employer{name: name, vintageID: vintageID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Employer) ID() int64 {
	return e.id
}

func (e *Employer) ParentID() *int64 {
	return e.parentID
}

func (e *Employer) TaxonomyID() *int64 {
	return e.taxonomyID
}

func (e *Employer) UniverseID() *int64 {
	return e.universeID
}

func (e *Employer) VintageID() int64 {
	return e.vintageID
}

// Name is the preferred alias.
func (e *Employer) Name() string {
	return e.name
}

func (e *Employer) IsUnit() bool {
	return e.parentID == nil
}

func (e *Employer) IsDepartment() bool {
	return e.parentID != nil
}

// ParentKey is the alias namespace: 0 for units, the parent id for departments.
func (e *Employer) ParentKey() int64 {
	if e.parentID == nil {
		return 0
	}
	return *e.parentID
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*Employer, error)
	FindUnit(ctx context.Context, name string) (*Employer, error)
	FindDepartment(ctx context.Context, parentID int64, name string) (*Employer, error)
	Create(ctx context.Context, e *Employer) (*Employer, error)
	SetTaxonomy(ctx context.Context, id int64, taxonomyID *int64) error
	SetUniverse(ctx context.Context, id int64, universeID *int64) error
	Departments(ctx context.Context, parentID int64) ([]*Employer, error)
}
