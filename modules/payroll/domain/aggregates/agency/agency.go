package agency

import "context"

// Tag marks agencies whose reports drive taxonomy overrides.
type Tag string

const (
	TagISBE Tag = "ISBE"
	TagIBHE Tag = "IBHE"
)

func (t Tag) Valid() bool {
	return t == TagISBE || t == TagIBHE
}

type RespondingAgency struct {
	id   int64
	tag  *Tag
	name string
}

type Option func(*RespondingAgency)

func WithID(id int64) Option {
	return func(a *RespondingAgency) {
		a.id = id
	}
}

func WithTag(t Tag) Option {
	return func(a *RespondingAgency) {
		a.tag = &t
	}
}

// New builds an agency whose preferred alias is name.
func New(name string, opts ...Option) *RespondingAgency {
	a := &RespondingAgency{name: name}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *RespondingAgency) ID() int64 {
	return a.id
}

func (a *RespondingAgency) Tag() *Tag {
	return a.tag
}

// Name is the preferred alias.
func (a *RespondingAgency) Name() string {
	return a.name
}

type Repository interface {
	GetByID(ctx context.Context, id int64) (*RespondingAgency, error)
	FindByAlias(ctx context.Context, name string) (*RespondingAgency, error)
	Create(ctx context.Context, a *RespondingAgency) (*RespondingAgency, error)
	SetTag(ctx context.Context, id int64, tag *Tag) error
	List(ctx context.Context) ([]*RespondingAgency, error)
}
