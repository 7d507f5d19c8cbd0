package schema

import (
	"reflect"
)

// TableMetadata describes a table derived from a tagged Go struct.
type TableMetadata struct {
	Name        string
	GoType      reflect.Type
	Columns     []ColumnMetadata
	PrimaryKey  *PrimaryKeyMetadata
	ForeignKeys []ForeignKeyMetadata
	Indexes     []IndexMetadata
	Constraints []ConstraintMetadata

	// RowSecurity turns on ENABLE ROW LEVEL SECURITY for the table.
	RowSecurity bool
	Policies    []PolicyMetadata
	Triggers    []TriggerMetadata
}

// ColumnMetadata describes one column.
type ColumnMetadata struct {
	Name     string
	GoField  string
	GoType   reflect.Type
	SQLType  string
	Nullable bool
	Default  *string
	Unique   bool
	Position int

	// OneOf holds the closed set of allowed values, if any.
	OneOf []string
	// Min and Max bound numeric columns, inclusive.
	Min *float64
	Max *float64
}

// PrimaryKeyMetadata describes a primary key.
type PrimaryKeyMetadata struct {
	Name    string
	Columns []string
}

// ReferenceAction is the ON DELETE / ON UPDATE behaviour of a foreign key.
type ReferenceAction string

const (
	NoAction   ReferenceAction = "NO ACTION"
	Restrict   ReferenceAction = "RESTRICT"
	Cascade    ReferenceAction = "CASCADE"
	SetNull    ReferenceAction = "SET NULL"
	SetDefault ReferenceAction = "SET DEFAULT"
)

// ForeignKeyMetadata describes a foreign key constraint.
type ForeignKeyMetadata struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          ReferenceAction
	OnUpdate          ReferenceAction
}

// IndexMetadata describes a secondary index.
type IndexMetadata struct {
	Name    string
	Columns []string
	Unique  bool
}

// ConstraintType enumerates table level constraints.
type ConstraintType string

const (
	CheckConstraint  ConstraintType = "CHECK"
	UniqueConstraint ConstraintType = "UNIQUE"
)

// ConstraintMetadata describes a named table constraint.
type ConstraintMetadata struct {
	Name       string
	Type       ConstraintType
	Columns    []string
	Expression string
}

// PolicyCommand is the command a row security policy applies to.
type PolicyCommand string

const (
	PolicyAll    PolicyCommand = "ALL"
	PolicySelect PolicyCommand = "SELECT"
	PolicyInsert PolicyCommand = "INSERT"
	PolicyUpdate PolicyCommand = "UPDATE"
	PolicyDelete PolicyCommand = "DELETE"
)

// PolicyMetadata describes a CREATE POLICY statement.
type PolicyMetadata struct {
	Name      string
	Command   PolicyCommand
	Roles     []string
	Using     string
	WithCheck string
}

// FunctionMetadata describes a SQL function created alongside the tables.
type FunctionMetadata struct {
	Name            string
	Arguments       string
	Returns         string
	Language        string
	Volatility      string
	SecurityDefiner bool
	Body            string
}

// TriggerMetadata describes a row trigger.
type TriggerMetadata struct {
	Name     string
	Timing   string
	Events   []string
	Function string
}

// Column returns the column with the given name.
func (t *TableMetadata) Column(name string) (*ColumnMetadata, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns column names in declaration order.
func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// References returns the distinct tables this table points at, excluding itself.
func (t *TableMetadata) References() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, fk := range t.ForeignKeys {
		if fk.ReferencedTable == t.Name || seen[fk.ReferencedTable] {
			continue
		}
		seen[fk.ReferencedTable] = true
		refs = append(refs, fk.ReferencedTable)
	}
	return refs
}
