package policy

import (
	"fmt"
	"strings"

	"github.com/marshallshelly/procuredb/pkg/schema"
)

const (
	// UserIDFunc returns the session's user id, or NULL.
	UserIDFunc = "app_user_id"
	// IsAdminFunc reports whether the session user is an admin. It runs as
	// its owner so the lookup bypasses row security.
	IsAdminFunc = "app_is_admin"
)

// Predicate renders the rule as a SQL boolean expression over table.
func (s *Set) Predicate(table string, r Rule) string {
	isAdmin := IsAdminFunc + "()"
	switch r.Kind {
	case AllowAll:
		return "true"
	case AdminOnly:
		return isAdmin
	case OwnerOrAdmin:
		if p := r.Parent; p != nil {
			return fmt.Sprintf(
				"(EXISTS (SELECT 1 FROM %s parent WHERE parent.%s = %s.%s AND parent.%s = %s()) OR %s)",
				p.Table, p.Key, table, p.ForeignKey, p.OwnerColumn, UserIDFunc, isAdmin,
			)
		}
		return fmt.Sprintf("(%s = %s() OR %s)", r.OwnerColumn, UserIDFunc, isAdmin)
	default:
		return "false"
	}
}

// Policies renders the CREATE POLICY definitions for a table.
func (s *Set) Policies(table string) []schema.PolicyMetadata {
	tp, ok := s.tables[table]
	if !ok {
		return nil
	}
	var out []schema.PolicyMetadata
	for _, r := range tp.Rules {
		pred := s.Predicate(table, r)
		if len(r.Operations) == 0 {
			out = append(out, schema.PolicyMetadata{
				Name:      r.Name,
				Command:   schema.PolicyAll,
				Roles:     []string{s.cfg.Role},
				Using:     pred,
				WithCheck: pred,
			})
			continue
		}
		for _, op := range r.Operations {
			name := r.Name
			if len(r.Operations) > 1 {
				name = r.Name + "_" + string(op)
			}
			pm := schema.PolicyMetadata{Name: name, Roles: []string{s.cfg.Role}}
			switch op {
			case Select:
				pm.Command, pm.Using = schema.PolicySelect, pred
			case Delete:
				pm.Command, pm.Using = schema.PolicyDelete, pred
			case Insert:
				pm.Command, pm.WithCheck = schema.PolicyInsert, pred
			case Update:
				pm.Command, pm.Using, pm.WithCheck = schema.PolicyUpdate, pred, pred
			}
			out = append(out, pm)
		}
	}
	return out
}

// Apply enables row security on every protected table and attaches its
// policies and guard trigger. Every protected table must be present.
func (s *Set) Apply(tables map[string]*schema.TableMetadata) error {
	for _, name := range s.order {
		table, ok := tables[name]
		if !ok {
			return fmt.Errorf("policy for unknown table %s", name)
		}
		if err := s.checkColumns(table); err != nil {
			return err
		}
		table.RowSecurity = true
		table.Policies = s.Policies(name)
		table.Triggers = nil
		if tp := s.tables[name]; len(tp.AdminColumns) > 0 {
			table.Triggers = append(table.Triggers, schema.TriggerMetadata{
				Name:     name + "_admin_columns_guard",
				Timing:   "BEFORE",
				Events:   []string{"INSERT", "UPDATE"},
				Function: guardFunc(name),
			})
		}
	}
	return nil
}

func (s *Set) checkColumns(table *schema.TableMetadata) error {
	tp := s.tables[table.Name]
	for _, r := range tp.Rules {
		col := r.OwnerColumn
		if r.Parent != nil {
			col = r.Parent.ForeignKey
		}
		if col == "" {
			continue
		}
		if _, ok := table.Column(col); !ok {
			return fmt.Errorf("policy %s: %s has no column %s", r.Name, table.Name, col)
		}
	}
	for _, col := range tp.AdminColumns {
		if _, ok := table.Column(col); !ok {
			return fmt.Errorf("admin column %s.%s does not exist", table.Name, col)
		}
	}
	return nil
}

func guardFunc(table string) string {
	return "app_guard_" + table + "_admin_columns"
}

// Functions returns the helper functions the policies and guards call.
// They reference the principal table, so they must be created after it.
// tables supplies the column defaults an inserted row is compared with; a
// guarded column without a default must be inserted as NULL.
func (s *Set) Functions(tables map[string]*schema.TableMetadata) []schema.FunctionMetadata {
	fns := []schema.FunctionMetadata{
		{
			Name:       UserIDFunc,
			Returns:    "uuid",
			Language:   "sql",
			Volatility: "STABLE",
			Body:       fmt.Sprintf("SELECT NULLIF(current_setting('%s', true), '')::uuid", s.cfg.Setting),
		},
		{
			Name:            IsAdminFunc,
			Returns:         "boolean",
			Language:        "sql",
			Volatility:      "STABLE",
			SecurityDefiner: true,
			Body: fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = %s() AND %s)",
				s.cfg.PrincipalTable, UserIDFunc, s.cfg.AdminColumn),
		},
	}
	for _, name := range s.order {
		tp := s.tables[name]
		if len(tp.AdminColumns) == 0 {
			continue
		}
		inserted := make([]string, len(tp.AdminColumns))
		changed := make([]string, len(tp.AdminColumns))
		for i, col := range tp.AdminColumns {
			inserted[i] = fmt.Sprintf("NEW.%s IS DISTINCT FROM %s", col, columnDefault(tables[name], col))
			changed[i] = fmt.Sprintf("NEW.%s IS DISTINCT FROM OLD.%s", col, col)
		}
		fns = append(fns, schema.FunctionMetadata{
			Name:       guardFunc(name),
			Returns:    "trigger",
			Language:   "plpgsql",
			Volatility: "VOLATILE",
			Body: fmt.Sprintf(`BEGIN
  IF %s() IS NULL OR %s() THEN
    RETURN NEW;
  END IF;
  IF TG_OP = 'INSERT' THEN
    IF %s THEN
      RAISE EXCEPTION 'permission denied' USING ERRCODE = '42501';
    END IF;
  ELSIF %s THEN
    RAISE EXCEPTION 'permission denied' USING ERRCODE = '42501';
  END IF;
  RETURN NEW;
END`, UserIDFunc, IsAdminFunc, strings.Join(inserted, " OR "), strings.Join(changed, " OR ")),
		})
	}
	return fns
}

func columnDefault(table *schema.TableMetadata, column string) string {
	if table == nil {
		return "NULL"
	}
	col, ok := table.Column(column)
	if !ok || col.Default == nil {
		return "NULL"
	}
	return "(" + *col.Default + ")"
}
