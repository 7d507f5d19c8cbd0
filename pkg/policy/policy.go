// Package policy describes row level access rules once and uses them twice:
// rendered as PostgreSQL row security policies, and evaluated in process
// before the store issues a statement.
package policy

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Operation is a row level operation.
type Operation string

const (
	Select Operation = "select"
	Insert Operation = "insert"
	Update Operation = "update"
	Delete Operation = "delete"
)

// Operations lists every operation in a fixed order.
var Operations = []Operation{Select, Insert, Update, Delete}

// Kind is the shape of a rule's predicate.
type Kind int

const (
	// OwnerOrAdmin admits the row's owner or any admin.
	OwnerOrAdmin Kind = iota
	// AllowAll admits everyone.
	AllowAll
	// AdminOnly admits admins only.
	AdminOnly
)

func (k Kind) String() string {
	switch k {
	case OwnerOrAdmin:
		return "owner-or-admin"
	case AllowAll:
		return "allow-all"
	case AdminOnly:
		return "admin-only"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Parent expresses ownership through a foreign key: the row belongs to
// whoever owns the referenced parent row.
type Parent struct {
	Table       string // parent table, e.g. orders
	ForeignKey  string // column on the child, e.g. order_id
	Key         string // referenced column on the parent, e.g. id
	OwnerColumn string // owner column on the parent, e.g. user_id
}

// Rule is one policy on one table.
type Rule struct {
	Name string
	Kind Kind
	// Operations the rule covers; empty means all of them.
	Operations []Operation
	// OwnerColumn holds the owning user id for OwnerOrAdmin rules.
	OwnerColumn string
	// Parent is set when the owner lives on a parent row.
	Parent *Parent
}

// Covers reports whether the rule applies to op.
func (r Rule) Covers(op Operation) bool {
	return len(r.Operations) == 0 || slices.Contains(r.Operations, op)
}

func (r Rule) validate(table string) error {
	if r.Name == "" {
		return fmt.Errorf("policy on %s: rule without name", table)
	}
	for _, op := range r.Operations {
		if !slices.Contains(Operations, op) {
			return fmt.Errorf("policy %s: unknown operation %q", r.Name, op)
		}
	}
	if r.Kind != OwnerOrAdmin {
		return nil
	}
	if r.Parent == nil && r.OwnerColumn == "" {
		return fmt.Errorf("policy %s: owner rule needs an owner column or parent", r.Name)
	}
	if p := r.Parent; p != nil && (p.Table == "" || p.ForeignKey == "" || p.Key == "" || p.OwnerColumn == "") {
		return fmt.Errorf("policy %s: incomplete parent reference", r.Name)
	}
	return nil
}

// TablePolicy is the rule set of one table. Rules combine with OR.
type TablePolicy struct {
	Table string
	Rules []Rule
	// AdminColumns may only be changed by an admin, whatever the rules say.
	AdminColumns []string
}

// Config names the database objects the rendered policies depend on.
type Config struct {
	// Role is the database role application sessions switch to.
	Role string
	// PrincipalTable holds the users; its primary key is id.
	PrincipalTable string
	// AdminColumn is the boolean admin flag on PrincipalTable.
	AdminColumn string
	// Setting is the transaction-local setting that carries the user id.
	Setting string
	// StatusColumn, when set, is the account status on PrincipalTable.
	// Only rows holding ActiveStatus resolve to a principal.
	StatusColumn string
	ActiveStatus string
}

// DefaultConfig matches the procurement schema.
var DefaultConfig = Config{
	Role:           "procure_app",
	PrincipalTable: "users",
	AdminColumn:    "is_admin",
	Setting:        "app.user_id",
	StatusColumn:   "subscription_status",
	ActiveStatus:   "active",
}

// Set is the complete rule set keyed by table name.
type Set struct {
	cfg    Config
	tables map[string]TablePolicy
	order  []string
}

// NewSet validates and indexes table policies.
func NewSet(cfg Config, tables ...TablePolicy) (*Set, error) {
	if cfg.Role == "" || cfg.PrincipalTable == "" || cfg.AdminColumn == "" || cfg.Setting == "" {
		return nil, fmt.Errorf("policy config is incomplete: %+v", cfg)
	}
	s := &Set{cfg: cfg, tables: make(map[string]TablePolicy, len(tables))}
	for _, tp := range tables {
		if tp.Table == "" {
			return nil, fmt.Errorf("table policy without table name")
		}
		if _, dup := s.tables[tp.Table]; dup {
			return nil, fmt.Errorf("duplicate policy for table %s", tp.Table)
		}
		if len(tp.Rules) == 0 {
			return nil, fmt.Errorf("table %s has no rules", tp.Table)
		}
		names := make(map[string]bool, len(tp.Rules))
		for _, r := range tp.Rules {
			if err := r.validate(tp.Table); err != nil {
				return nil, err
			}
			if names[r.Name] {
				return nil, fmt.Errorf("duplicate rule %s on %s", r.Name, tp.Table)
			}
			names[r.Name] = true
		}
		s.tables[tp.Table] = tp
		s.order = append(s.order, tp.Table)
	}
	return s, nil
}

// Config returns the configuration the set was built with.
func (s *Set) Config() Config { return s.cfg }

// Table returns the policy for a table.
func (s *Set) Table(name string) (TablePolicy, bool) {
	tp, ok := s.tables[name]
	return tp, ok
}

// Tables returns the protected table names in registration order.
func (s *Set) Tables() []string {
	return slices.Clone(s.order)
}

// Principal is the identity a statement runs as.
type Principal struct {
	UserID uuid.UUID
	Admin  bool
	// System marks a trusted process that bypasses row security entirely,
	// e.g. the trend scraper or account recovery.
	System bool
}

// Anonymous is the unauthenticated principal.
var Anonymous = Principal{}

// SystemPrincipal returns the trusted out-of-band principal.
func SystemPrincipal() Principal {
	return Principal{System: true}
}

// Authenticated reports whether the principal names a user.
func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil
}

func (p Principal) String() string {
	switch {
	case p.System:
		return "system"
	case !p.Authenticated():
		return "anonymous"
	case p.Admin:
		return "admin:" + p.UserID.String()
	default:
		return "user:" + p.UserID.String()
	}
}
