package migration

import (
	"fmt"
	"slices"
	"strings"

	"github.com/marshallshelly/procuredb/pkg/schema"
)

// quoteIdent quotes a PostgreSQL identifier (table name, column name, etc.)
// to handle reserved keywords and special characters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// PlannerOptions configures migration generation behavior.
type PlannerOptions struct {
	// IfNotExists makes table and index creation idempotent and drops
	// policies and triggers before recreating them.
	IfNotExists bool
}

// Planner renders SQL migration statements from a Blueprint.
type Planner struct {
	options PlannerOptions
}

// NewPlanner creates a new migration planner with default options.
func NewPlanner() *Planner {
	return &Planner{
		options: PlannerOptions{IfNotExists: true},
	}
}

// NewPlannerWithOptions creates a new migration planner with custom options.
func NewPlannerWithOptions(opts PlannerOptions) *Planner {
	return &Planner{options: opts}
}

// GenerateMigration renders up and down SQL for a blueprint.
//
// Up order: role, tables with their indexes, functions, then per table the
// guard triggers, row security, policies and grants. Down drops tables in
// reverse order, which takes their policies, triggers and indexes along,
// then the functions. The role is cluster wide and stays.
func (p *Planner) GenerateMigration(bp *Blueprint) (upSQL, downSQL string, err error) {
	if bp.IsEmpty() {
		return "", "", fmt.Errorf("nothing to migrate")
	}
	if err := p.validate(bp); err != nil {
		return "", "", err
	}

	var up, down []string

	if bp.Role != "" {
		up = append(up, p.generateCreateRole(bp.Role))
	}
	for _, table := range bp.Tables {
		up = append(up, p.generateCreateTable(table))
	}
	for _, fn := range bp.Functions {
		up = append(up, p.generateCreateFunction(fn))
	}
	for _, table := range bp.Tables {
		up = append(up, p.generateAccessControl(table, bp.Role)...)
	}

	for i := len(bp.Tables) - 1; i >= 0; i-- {
		down = append(down, p.generateDropTable(bp.Tables[i].Name))
	}
	for i := len(bp.Functions) - 1; i >= 0; i-- {
		down = append(down, p.generateDropFunction(bp.Functions[i]))
	}

	return strings.Join(up, "\n\n") + "\n", strings.Join(down, "\n\n") + "\n", nil
}

// validate rejects blueprints whose tables reference a table created later.
func (p *Planner) validate(bp *Blueprint) error {
	created := make(map[string]bool, len(bp.Tables))
	for _, table := range bp.Tables {
		for _, ref := range table.References() {
			if !created[ref] {
				return fmt.Errorf("table %s references %s before it is created", table.Name, ref)
			}
		}
		created[table.Name] = true
	}
	functions := make([]string, 0, len(bp.Functions))
	for _, fn := range bp.Functions {
		functions = append(functions, fn.Name)
	}
	for _, table := range bp.Tables {
		for _, trg := range table.Triggers {
			if !slices.Contains(functions, trg.Function) {
				return fmt.Errorf("trigger %s calls unknown function %s", trg.Name, trg.Function)
			}
		}
		if len(table.Policies) > 0 && bp.Role == "" {
			return fmt.Errorf("table %s has policies but the blueprint has no role", table.Name)
		}
	}
	return nil
}

// generateCreateRole creates the application role unless it exists and
// lets the migrating user switch to it.
func (p *Planner) generateCreateRole(role string) string {
	literal := strings.ReplaceAll(role, "'", "''")
	return fmt.Sprintf(`DO $$
BEGIN
    IF NOT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = '%s') THEN
        CREATE ROLE %s NOLOGIN;
    END IF;
END
$$;

GRANT %s TO CURRENT_USER;`, literal, quoteIdent(role), quoteIdent(role))
}

// generateCreateTable generates a CREATE TABLE statement followed by its indexes.
func (p *Planner) generateCreateTable(table *schema.TableMetadata) string {
	var parts []string

	var singlePKColumn string
	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) == 1 {
		singlePKColumn = table.PrimaryKey.Columns[0]
	}

	for _, col := range table.Columns {
		colDef := p.generateColumnDefinition(col)
		if col.Name == singlePKColumn {
			colDef += " PRIMARY KEY"
		}
		parts = append(parts, "    "+colDef)
	}

	if table.PrimaryKey != nil && len(table.PrimaryKey.Columns) > 1 {
		parts = append(parts, fmt.Sprintf("    CONSTRAINT %s PRIMARY KEY (%s)",
			table.PrimaryKey.Name, strings.Join(table.PrimaryKey.Columns, ", ")))
	}

	for _, fk := range table.ForeignKeys {
		parts = append(parts, "    "+p.generateForeignKeyDefinition(fk))
	}

	for _, c := range table.Constraints {
		switch c.Type {
		case schema.CheckConstraint:
			parts = append(parts, fmt.Sprintf("    CONSTRAINT %s CHECK (%s)", c.Name, c.Expression))
		case schema.UniqueConstraint:
			parts = append(parts, fmt.Sprintf("    CONSTRAINT %s UNIQUE (%s)", c.Name, strings.Join(c.Columns, ", ")))
		}
	}

	createClause := "CREATE TABLE"
	if p.options.IfNotExists {
		createClause = "CREATE TABLE IF NOT EXISTS"
	}
	sql := fmt.Sprintf("%s %s (\n%s\n);", createClause, table.Name, strings.Join(parts, ",\n"))

	var indexStatements []string
	for _, idx := range table.Indexes {
		indexStatements = append(indexStatements, p.generateCreateIndex(table.Name, idx))
	}
	if len(indexStatements) > 0 {
		sql += "\n\n" + strings.Join(indexStatements, "\n")
	}
	return sql
}

// generateColumnDefinition generates a column definition.
func (p *Planner) generateColumnDefinition(col schema.ColumnMetadata) string {
	parts := []string{col.Name, col.SQLType}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT", *col.Default)
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

// generateForeignKeyDefinition generates a foreign key constraint.
func (p *Planner) generateForeignKeyDefinition(fk schema.ForeignKeyMetadata) string {
	parts := []string{
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s)", fk.Name, strings.Join(fk.Columns, ", ")),
		fmt.Sprintf("REFERENCES %s (%s)", fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", ")),
	}
	if fk.OnDelete != schema.NoAction && fk.OnDelete != "" {
		parts = append(parts, "ON DELETE "+string(fk.OnDelete))
	}
	if fk.OnUpdate != schema.NoAction && fk.OnUpdate != "" {
		parts = append(parts, "ON UPDATE "+string(fk.OnUpdate))
	}
	return strings.Join(parts, " ")
}

// generateCreateIndex generates a CREATE INDEX statement.
func (p *Planner) generateCreateIndex(tableName string, idx schema.IndexMetadata) string {
	parts := []string{"CREATE INDEX"}
	if idx.Unique {
		parts[0] = "CREATE UNIQUE INDEX"
	}
	if p.options.IfNotExists {
		parts = append(parts, "IF NOT EXISTS")
	}
	parts = append(parts, idx.Name, "ON", tableName, fmt.Sprintf("(%s)", strings.Join(idx.Columns, ", ")))
	return strings.Join(parts, " ") + ";"
}

// generateCreateFunction renders a CREATE OR REPLACE FUNCTION statement.
// Security definer functions pin search_path so callers cannot shadow the
// tables they read.
func (p *Planner) generateCreateFunction(fn schema.FunctionMetadata) string {
	lines := []string{
		fmt.Sprintf("CREATE OR REPLACE FUNCTION %s(%s)", fn.Name, fn.Arguments),
		"RETURNS " + fn.Returns,
		"LANGUAGE " + fn.Language,
	}
	if fn.Volatility != "" {
		lines = append(lines, fn.Volatility)
	}
	if fn.SecurityDefiner {
		lines = append(lines, "SECURITY DEFINER", "SET search_path = public, pg_temp")
	}
	lines = append(lines, "AS $$", strings.TrimSpace(fn.Body), "$$;")
	return strings.Join(lines, "\n")
}

// generateDropFunction generates a DROP FUNCTION statement.
func (p *Planner) generateDropFunction(fn schema.FunctionMetadata) string {
	return fmt.Sprintf("DROP FUNCTION IF EXISTS %s(%s);", fn.Name, fn.Arguments)
}

// generateAccessControl renders triggers, row security, policies and grants
// for one table.
func (p *Planner) generateAccessControl(table *schema.TableMetadata, role string) []string {
	var stmts []string

	for _, trg := range table.Triggers {
		if p.options.IfNotExists {
			stmts = append(stmts, fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", trg.Name, table.Name))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TRIGGER %s\n    %s %s ON %s\n    FOR EACH ROW EXECUTE FUNCTION %s();",
			trg.Name, trg.Timing, strings.Join(trg.Events, " OR "), table.Name, trg.Function))
	}

	if table.RowSecurity {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY;", table.Name))
	}

	for _, pol := range table.Policies {
		if p.options.IfNotExists {
			stmts = append(stmts, fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s;", pol.Name, table.Name))
		}
		stmts = append(stmts, p.generateCreatePolicy(table.Name, pol))
	}

	if role != "" {
		stmts = append(stmts, fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s TO %s;", table.Name, quoteIdent(role)))
	}
	return stmts
}

// generateCreatePolicy renders a CREATE POLICY statement.
func (p *Planner) generateCreatePolicy(table string, pol schema.PolicyMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE POLICY %s ON %s\n    FOR %s", pol.Name, table, pol.Command)
	if len(pol.Roles) > 0 {
		roles := make([]string, len(pol.Roles))
		for i, r := range pol.Roles {
			roles[i] = quoteIdent(r)
		}
		fmt.Fprintf(&b, "\n    TO %s", strings.Join(roles, ", "))
	}
	if pol.Using != "" {
		fmt.Fprintf(&b, "\n    USING (%s)", pol.Using)
	}
	if pol.WithCheck != "" {
		fmt.Fprintf(&b, "\n    WITH CHECK (%s)", pol.WithCheck)
	}
	b.WriteString(";")
	return b.String()
}

// generateDropTable generates a DROP TABLE statement.
func (p *Planner) generateDropTable(tableName string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", quoteIdent(tableName))
}
