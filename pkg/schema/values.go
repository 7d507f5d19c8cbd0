package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// InsertValues returns the columns and values to insert for model.
// Zero-valued fields whose column has a database default are omitted so
// the default applies, e.g.
//
//	ID uuid.UUID `po:"id,uuid,primaryKey,default(gen_random_uuid())"`
func (t *TableMetadata) InsertValues(model interface{}) ([]string, []interface{}, error) {
	v, err := t.structValue(model)
	if err != nil {
		return nil, nil, err
	}

	columns := make([]string, 0, len(t.Columns))
	values := make([]interface{}, 0, len(t.Columns))
	for _, col := range t.Columns {
		field := v.FieldByName(col.GoField)
		if !field.IsValid() {
			continue
		}
		if col.Default != nil && field.IsZero() {
			continue
		}
		columns = append(columns, col.Name)
		values = append(values, field.Interface())
	}
	return columns, values, nil
}

// HoldsDefault reports whether v equals the column's literal default, so
// writing it explicitly changes nothing. Expression defaults such as now()
// never match.
func (c ColumnMetadata) HoldsDefault(v interface{}) bool {
	if c.Default == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return false
	}
	def := strings.TrimSpace(*c.Default)
	switch rv.Kind() {
	case reflect.String:
		return def == "'"+strings.ReplaceAll(rv.String(), "'", "''")+"'"
	case reflect.Bool:
		return strings.EqualFold(def, strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return def == strconv.FormatInt(rv.Int(), 10)
	}
	return false
}

// ScanTargets returns pointers into model's fields, one per column, in the
// order given. Unknown columns scan into a discard target.
func (t *TableMetadata) ScanTargets(model interface{}, columns []string) ([]interface{}, error) {
	rv := reflect.ValueOf(model)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("scan %s: dest must be a non-nil pointer", t.Name)
	}
	v, err := t.structValue(model)
	if err != nil {
		return nil, err
	}

	targets := make([]interface{}, len(columns))
	for i, name := range columns {
		col, ok := t.Column(name)
		if !ok {
			var discard interface{}
			targets[i] = &discard
			continue
		}
		field := v.FieldByName(col.GoField)
		if !field.IsValid() || !field.CanSet() {
			return nil, fmt.Errorf("scan %s: field %s is not settable", t.Name, col.GoField)
		}
		targets[i] = field.Addr().Interface()
	}
	return targets, nil
}

func (t *TableMetadata) structValue(model interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(model)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%s: nil model", t.Name)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || v.Type() != t.GoType {
		return reflect.Value{}, fmt.Errorf("%s: model must be %s, got %s", t.Name, t.GoType, v.Type())
	}
	return v, nil
}
