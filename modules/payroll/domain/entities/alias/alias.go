package alias

import (
	"context"
	"fmt"
)

// Owner is the closed set of canonical entities that carry aliases.
type Owner string

const (
	OwnerAgency   Owner = "agency"
	OwnerEmployer Owner = "employer"
)

// Alias is one name variant of an agency or employer.
type Alias struct {
	ID        int64
	Owner     Owner
	OwnerID   int64
	ParentKey int64
	Name      string
	Preferred bool
}

func (a Alias) String() string {
	return fmt.Sprintf("%s#%d %q (preferred=%t)", a.Owner, a.OwnerID, a.Name, a.Preferred)
}

// Scope selects an alias namespace: agencies, units (ParentKey 0) or the
// departments of one unit.
type Scope struct {
	Owner     Owner
	ParentKey int64
}

type Repository interface {
	GetByID(ctx context.Context, owner Owner, id int64) (Alias, error)
	// Add inserts a non-preferred alias. Re-adding an alias of the same owner is a no-op.
	Add(ctx context.Context, owner Owner, ownerID int64, name string) (Alias, error)
	// SetPreferred inserts or promotes name and demotes every sibling in one statement.
	SetPreferred(ctx context.Context, owner Owner, ownerID int64, name string) (Alias, error)
	ListByOwner(ctx context.Context, owner Owner, ownerID int64) ([]Alias, error)
	ListByScope(ctx context.Context, scope Scope) ([]Alias, error)
}
