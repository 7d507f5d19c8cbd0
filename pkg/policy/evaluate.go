package policy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Target describes the row an operation touches.
type Target struct {
	// OwnerID is the owning user of the row, resolved through the parent
	// for rules with a Parent.
	OwnerID uuid.UUID
	// Changed lists the columns an update writes, or the columns an insert
	// sets to something other than their default.
	Changed []string
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool
	// Rule names the admitting rule, or "system" for the trusted principal.
	Rule string
}

// Evaluate decides whether p may perform op on a row of table.
// Every rule covering op is tried and the first one that admits wins;
// a table without policy, or without a rule for op, denies. Inserts and
// updates that write an admin column are denied to non-admins first.
func (s *Set) Evaluate(p Principal, table string, op Operation, t Target) Decision {
	if p.System {
		return Decision{Allowed: true, Rule: "system"}
	}
	tp, ok := s.tables[table]
	if !ok {
		return Decision{}
	}
	if (op == Insert || op == Update) && !p.Admin {
		for _, col := range t.Changed {
			if slices.Contains(tp.AdminColumns, col) {
				return Decision{}
			}
		}
	}
	for _, r := range tp.Rules {
		if r.Covers(op) && r.admits(p, t) {
			return Decision{Allowed: true, Rule: r.Name}
		}
	}
	return Decision{}
}

func (r Rule) admits(p Principal, t Target) bool {
	switch r.Kind {
	case AllowAll:
		return true
	case AdminOnly:
		return p.Admin
	case OwnerOrAdmin:
		if p.Admin {
			return true
		}
		return p.Authenticated() && t.OwnerID == p.UserID
	default:
		return false
	}
}

// Filter returns the predicate that restricts a read of table to the rows p
// may see, or nil when p sees every row. Column names are unqualified.
func (s *Set) Filter(p Principal, table string) squirrel.Sqlizer {
	if p.System {
		return nil
	}
	tp, ok := s.tables[table]
	if !ok {
		return squirrel.Expr("FALSE")
	}

	var owned squirrel.Or
	for _, r := range tp.Rules {
		if !r.Covers(Select) {
			continue
		}
		switch r.Kind {
		case AllowAll:
			return nil
		case AdminOnly:
			if p.Admin {
				return nil
			}
		case OwnerOrAdmin:
			if p.Admin {
				return nil
			}
			if !p.Authenticated() {
				continue
			}
			if r.Parent == nil {
				owned = append(owned, squirrel.Expr(r.OwnerColumn+" = ?", p.UserID))
				continue
			}
			owned = append(owned, squirrel.Expr(
				fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s = ?)",
					r.Parent.ForeignKey, r.Parent.Key, r.Parent.Table, r.Parent.OwnerColumn),
				p.UserID,
			))
		}
	}
	switch len(owned) {
	case 0:
		return squirrel.Expr("FALSE")
	case 1:
		return owned[0]
	default:
		return owned
	}
}

// ErrPrincipalDisabled is returned for a user that no longer exists or whose
// account is not active.
var ErrPrincipalDisabled = errors.New("account suspended or inactive")

// AdminLookup answers whether a user carries the admin flag. Implementations
// must read outside row security so the check cannot recurse into the
// policies it serves, and return ErrPrincipalDisabled for users that must
// not act at all.
type AdminLookup interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Resolver turns an authenticated user id into a Principal.
type Resolver struct {
	lookup AdminLookup
}

// NewResolver creates a Resolver backed by lookup.
func NewResolver(lookup AdminLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve returns the principal for userID. uuid.Nil resolves to Anonymous.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID) (Principal, error) {
	if userID == uuid.Nil {
		return Anonymous, nil
	}
	admin, err := r.lookup.IsAdmin(ctx, userID)
	if errors.Is(err, ErrPrincipalDisabled) {
		return Anonymous, err
	}
	if err != nil {
		return Anonymous, fmt.Errorf("resolve principal %s: %w", userID, err)
	}
	return Principal{UserID: userID, Admin: admin}, nil
}
