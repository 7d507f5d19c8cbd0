package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

const (
	// StructTagKey is the key used in struct tags (e.g., `po:"..."`).
	StructTagKey = "po"
)

// Tabler lets a model choose its own table name.
type Tabler interface {
	TableName() string
}

// Indexer lets a model declare indexes that span several columns.
type Indexer interface {
	TableIndexes() []IndexMetadata
}

var (
	tablerType  = reflect.TypeOf((*Tabler)(nil)).Elem()
	indexerType = reflect.TypeOf((*Indexer)(nil)).Elem()
)

// Parser parses struct definitions to extract table metadata.
type Parser struct {
	typeMapper *TypeMapper
	mu         sync.Mutex
	cache      map[reflect.Type]*TableMetadata
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		typeMapper: DefaultTypeMapper,
		cache:      make(map[reflect.Type]*TableMetadata),
	}
}

var (
	tableNamesMu     sync.RWMutex
	customTableNames = make(map[string]string) // Struct name → table name
)

// RegisterTableName registers a custom table name for a struct type that
// does not implement Tabler.
func RegisterTableName(structName, tableName string) {
	tableNamesMu.Lock()
	defer tableNamesMu.Unlock()
	customTableNames[structName] = tableName
}

// Parse extracts TableMetadata from a Go struct type.
func (p *Parser) Parse(modelType reflect.Type) (*TableMetadata, error) {
	for modelType.Kind() == reflect.Ptr {
		modelType = modelType.Elem()
	}
	if modelType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model must be a struct, got %s", modelType.Kind())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cached, ok := p.cache[modelType]; ok {
		return cached, nil
	}

	table := &TableMetadata{
		Name:        extractTableName(modelType),
		GoType:      modelType,
		Columns:     make([]ColumnMetadata, 0, modelType.NumField()),
		ForeignKeys: make([]ForeignKeyMetadata, 0),
		Indexes:     make([]IndexMetadata, 0),
		Constraints: make([]ConstraintMetadata, 0),
	}

	for i := 0; i < modelType.NumField(); i++ {
		field := modelType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagValue := field.Tag.Get(StructTagKey)
		if tagValue == "" || tagValue == "-" {
			continue
		}
		tagOpts, err := p.parseTag(tagValue)
		if err != nil {
			return nil, fmt.Errorf("failed to parse tag for field %s: %w", field.Name, err)
		}

		column, err := p.createColumnMetadata(field, tagOpts, i)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}

		if tagOpts.Has("primaryKey") {
			if table.PrimaryKey == nil {
				table.PrimaryKey = &PrimaryKeyMetadata{
					Columns: []string{column.Name},
					Name:    table.Name + "_pkey",
				}
			} else {
				table.PrimaryKey.Columns = append(table.PrimaryKey.Columns, column.Name)
			}
		}

		// UNIQUE columns get an implicit index, so only plain index tags add one.
		if tagOpts.Has("index") && !column.Unique {
			table.Indexes = append(table.Indexes, IndexMetadata{
				Name:    fmt.Sprintf("idx_%s_%s", table.Name, column.Name),
				Columns: []string{column.Name},
			})
		}

		if c := checkConstraint(table.Name, column, tagOpts); c != nil {
			table.Constraints = append(table.Constraints, *c)
		}

		if fk := foreignKey(table.Name, column.Name, tagOpts); fk != nil {
			table.ForeignKeys = append(table.ForeignKeys, *fk)
		}

		table.Columns = append(table.Columns, column)
	}

	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("model %s has no tagged columns", modelType.Name())
	}

	if modelType.Implements(indexerType) {
		for _, idx := range reflect.Zero(modelType).Interface().(Indexer).TableIndexes() {
			for _, col := range idx.Columns {
				if _, ok := table.Column(col); !ok {
					return nil, fmt.Errorf("index %s: unknown column %s", idx.Name, col)
				}
			}
			table.Indexes = append(table.Indexes, idx)
		}
	}

	p.cache[modelType] = table
	return table, nil
}

// extractTableName resolves the table name: Tabler first, then the
// RegisterTableName registry, then the snake_case struct name.
func extractTableName(modelType reflect.Type) string {
	if modelType.Implements(tablerType) {
		return reflect.Zero(modelType).Interface().(Tabler).TableName()
	}
	if reflect.PointerTo(modelType).Implements(tablerType) {
		return reflect.New(modelType).Interface().(Tabler).TableName()
	}

	tableNamesMu.RLock()
	name, ok := customTableNames[modelType.Name()]
	tableNamesMu.RUnlock()
	if ok {
		return name
	}
	return toSnakeCase(modelType.Name())
}

// createColumnMetadata creates a ColumnMetadata from a struct field.
func (p *Parser) createColumnMetadata(field reflect.StructField, opts *TagOptions, position int) (ColumnMetadata, error) {
	column := ColumnMetadata{
		Name:     opts.Name,
		GoField:  field.Name,
		GoType:   field.Type,
		Position: position,
	}
	if sqlType := opts.GetSQLType(); sqlType != "" {
		column.SQLType = sqlType
	} else {
		column.SQLType = p.typeMapper.GoTypeToPostgreSQL(field.Type)
	}
	if column.SQLType == "" {
		return column, fmt.Errorf("cannot infer SQL type for %s", field.Type)
	}

	column.Nullable = !opts.Has("notNull") && !opts.Has("primaryKey")
	if IsNullable(field.Type) {
		column.Nullable = true
	}

	if defaultVal := opts.Get("default"); defaultVal != "" {
		if err := ValidateDefaultValue(defaultVal); err != nil {
			return column, err
		}
		column.Default = &defaultVal
	}
	column.Unique = opts.Has("unique")

	if values := opts.Get("oneOf"); values != "" {
		column.OneOf = strings.Split(values, "|")
	}
	if bounds := opts.Get("range"); bounds != "" {
		lo, hi, ok := strings.Cut(bounds, "|")
		if !ok {
			return column, fmt.Errorf("range must be min|max, got %q", bounds)
		}
		min, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return column, fmt.Errorf("range min: %w", err)
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return column, fmt.Errorf("range max: %w", err)
		}
		column.Min, column.Max = &min, &max
	}
	return column, nil
}

// checkConstraint builds the CHECK constraint implied by oneOf, range or check tags.
func checkConstraint(table string, col ColumnMetadata, opts *TagOptions) *ConstraintMetadata {
	var expr string
	switch {
	case opts.Has("check"):
		expr = opts.Get("check")
	case len(col.OneOf) > 0:
		quoted := make([]string, len(col.OneOf))
		for i, v := range col.OneOf {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		expr = fmt.Sprintf("%s IN (%s)", col.Name, strings.Join(quoted, ", "))
	case col.Min != nil && col.Max != nil:
		expr = fmt.Sprintf("%s >= %s AND %s <= %s",
			col.Name, formatBound(*col.Min), col.Name, formatBound(*col.Max))
	default:
		return nil
	}
	return &ConstraintMetadata{
		Name:       fmt.Sprintf("%s_%s_check", table, col.Name),
		Type:       CheckConstraint,
		Columns:    []string{col.Name},
		Expression: expr,
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// foreignKey reads references(table.column) with optional onDelete/onUpdate.
func foreignKey(table, column string, opts *TagOptions) *ForeignKeyMetadata {
	ref := opts.Get("references")
	if ref == "" {
		return nil
	}
	refTable, refColumn, ok := strings.Cut(ref, ".")
	if !ok || refTable == "" || refColumn == "" {
		return nil
	}
	return &ForeignKeyMetadata{
		Name:              fmt.Sprintf("fk_%s_%s_%s", table, column, refTable),
		Columns:           []string{column},
		ReferencedTable:   refTable,
		ReferencedColumns: []string{refColumn},
		OnDelete:          parseReferenceAction(opts.Get("onDelete")),
		OnUpdate:          parseReferenceAction(opts.Get("onUpdate")),
	}
}

// TagOptions represents parsed tag options.
type TagOptions struct {
	Name    string            // Column name (first element)
	Options map[string]string // Other options
}

// parseTag parses a struct tag value into TagOptions.
// Format: "column_name,option1,option2(value),option3"
func (p *Parser) parseTag(tag string) (*TagOptions, error) {
	parts := splitTag(tag)
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("empty tag value")
	}
	opts := &TagOptions{
		Name:    parts[0],
		Options: make(map[string]string),
	}
	for _, opt := range parts[1:] {
		if idx := strings.Index(opt, "("); idx != -1 {
			if !strings.HasSuffix(opt, ")") {
				return nil, fmt.Errorf("invalid option format: %s", opt)
			}
			opts.Options[opt[:idx]] = opt[idx+1 : len(opt)-1]
		} else {
			opts.Options[opt] = ""
		}
	}
	return opts, nil
}

// Has checks if an option exists.
func (t *TagOptions) Has(key string) bool {
	_, ok := t.Options[key]
	return ok
}

// Get returns the value of an option.
func (t *TagOptions) Get(key string) string {
	return t.Options[key]
}

// GetSQLType returns the SQL type from tag options.
func (t *TagOptions) GetSQLType() string {
	pgTypes := []string{
		"uuid", "varchar", "text[]", "text",
		"smallint", "integer", "bigint",
		"numeric", "boolean",
		"date", "timestamptz", "interval",
		"jsonb", "inet",
	}
	for _, pgType := range pgTypes {
		if !t.Has(pgType) {
			continue
		}
		if value := t.Get(pgType); value != "" {
			return fmt.Sprintf("%s(%s)", pgType, value)
		}
		if pgType == "timestamptz" {
			return "timestamp with time zone"
		}
		return pgType
	}
	return ""
}

// splitTag splits a tag value by commas, handling nested parentheses.
func splitTag(tag string) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range tag {
		switch ch {
		case '(':
			depth++
			current.WriteRune(ch)
		case ')':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, strings.TrimSpace(current.String()))
	}
	return parts
}

// toSnakeCase converts a string from PascalCase to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, ch := range s {
		if i > 0 && ch >= 'A' && ch <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(ch)
	}
	return strings.ToLower(result.String())
}

// parseReferenceAction converts a string to ReferenceAction.
func parseReferenceAction(action string) ReferenceAction {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "CASCADE":
		return Cascade
	case "RESTRICT":
		return Restrict
	case "SETNULL", "SET NULL":
		return SetNull
	case "SETDEFAULT", "SET DEFAULT":
		return SetDefault
	default:
		return NoAction
	}
}
