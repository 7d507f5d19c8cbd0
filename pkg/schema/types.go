package schema

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// TypeMapper handles mapping between Go types and PostgreSQL types.
type TypeMapper struct {
	customMappings map[reflect.Type]string
}

// NewTypeMapper creates a new TypeMapper instance.
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{
		customMappings: make(map[reflect.Type]string),
	}
}

// RegisterType registers a custom type mapping.
func (tm *TypeMapper) RegisterType(goType reflect.Type, pgType string) {
	tm.customMappings[goType] = pgType
}

// GoTypeToPostgreSQL maps a Go type to its PostgreSQL equivalent.
// Returns empty string when the type has no default mapping and the tag
// must name one.
func (tm *TypeMapper) GoTypeToPostgreSQL(t reflect.Type) string {
	if pgType, ok := tm.customMappings[t]; ok {
		return pgType
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case reflect.TypeOf(time.Time{}):
		return "timestamp with time zone"
	case reflect.TypeOf(uuid.UUID{}):
		return "uuid"
	case reflect.TypeOf(JSONB{}):
		return "jsonb"
	}

	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int8, reflect.Int16:
		return "smallint"
	case reflect.Int32, reflect.Int:
		return "integer"
	case reflect.Int64:
		return "bigint"
	case reflect.Float32:
		return "real"
	case reflect.Float64:
		return "double precision"
	case reflect.String:
		return "text"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "bytea"
		}
		if elemType := tm.GoTypeToPostgreSQL(t.Elem()); elemType != "" {
			return elemType + "[]"
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String && t.Elem().Kind() == reflect.Interface {
			return "jsonb"
		}
	}
	return ""
}

// IsNullable reports whether a Go type can hold SQL NULL.
func IsNullable(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// DefaultTypeMapper is the global type mapper instance.
var DefaultTypeMapper = NewTypeMapper()
