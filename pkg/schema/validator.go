package schema

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ValidationError reports a row value that a column constraint would reject.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
}

// misspelledDefaults maps common typos in default expressions to their fix.
var misspelledDefaults = map[string]string{
	"CURRENT TIMESTAMP": "CURRENT_TIMESTAMP",
	"CURRENT TIME":      "CURRENT_TIME",
	"CURRENT DATE":      "CURRENT_DATE",
	"NOW ()":            "NOW()",
	"GEN RANDOM UUID":   "gen_random_uuid()",
}

// ValidateDefaultValue catches default expressions that would only fail
// once the migration runs.
func ValidateDefaultValue(defaultVal string) error {
	trimmed := strings.TrimSpace(defaultVal)
	upper := strings.ToUpper(trimmed)

	for mistake, fix := range misspelledDefaults {
		if strings.Contains(upper, mistake) {
			return fmt.Errorf("invalid DEFAULT value %q: use %s instead of %s", defaultVal, fix, mistake)
		}
	}

	switch upper {
	case "NULL", "TRUE", "FALSE", "CURRENT_TIMESTAMP", "CURRENT_DATE", "LOCALTIMESTAMP":
		return nil
	}
	if strings.ContainsAny(trimmed, "('") || isNumeric(trimmed) {
		return nil
	}
	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "random") || strings.Contains(lower, "uuid") || strings.Contains(lower, "now") {
		return fmt.Errorf("invalid DEFAULT value %q: looks like a function call missing ()", defaultVal)
	}
	return nil
}

// isNumeric checks if a string is a valid number
func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i, c := range s {
		if i == 0 && (c == '-' || c == '+') {
			continue
		}
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Validate checks a model value against the column constraints that can be
// evaluated without the database: required values, enumerations and ranges.
// Zero values of columns with a default are skipped since the database fills
// them in.
func (t *TableMetadata) Validate(model interface{}) error {
	v := reflect.ValueOf(model)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("validate %s: nil model", t.Name)
		}
		v = v.Elem()
	}
	if v.Type() != t.GoType {
		return fmt.Errorf("validate %s: got %s, want %s", t.Name, v.Type(), t.GoType)
	}

	for _, col := range t.Columns {
		field := v.FieldByName(col.GoField)
		if !field.IsValid() {
			continue
		}
		if field.Kind() == reflect.Ptr {
			if field.IsNil() {
				continue
			}
			field = field.Elem()
		} else if field.IsZero() && col.Default != nil {
			continue
		}
		if err := col.check(t.Name, field); err != nil {
			return err
		}
	}
	return nil
}

// CheckValue validates a single value destined for the named column.
func (t *TableMetadata) CheckValue(column string, value interface{}) error {
	col, ok := t.Column(column)
	if !ok {
		return &ValidationError{Table: t.Name, Column: column, Message: "unknown column"}
	}
	if value == nil {
		if !col.Nullable {
			return &ValidationError{Table: t.Name, Column: column, Message: "must not be null"}
		}
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return col.check(t.Name, rv)
		}
		rv = rv.Elem()
	}
	return col.check(t.Name, rv)
}

func (c *ColumnMetadata) check(table string, v reflect.Value) error {
	if v.Kind() == reflect.Ptr && v.IsNil() {
		if !c.Nullable {
			return &ValidationError{Table: table, Column: c.Name, Message: "must not be null"}
		}
		return nil
	}

	if len(c.OneOf) > 0 && v.Kind() == reflect.String {
		if !slices.Contains(c.OneOf, v.String()) {
			return &ValidationError{
				Table:   table,
				Column:  c.Name,
				Message: fmt.Sprintf("must be one of %s", strings.Join(c.OneOf, ", ")),
			}
		}
	}

	if c.Min != nil && c.Max != nil {
		var n float64
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n = float64(v.Int())
		case reflect.Float32, reflect.Float64:
			n = v.Float()
		default:
			return nil
		}
		if n < *c.Min || n > *c.Max {
			return &ValidationError{
				Table:   table,
				Column:  c.Name,
				Message: fmt.Sprintf("must be between %s and %s", formatBound(*c.Min), formatBound(*c.Max)),
			}
		}
	}
	return nil
}
