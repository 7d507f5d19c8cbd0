package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB represents a PostgreSQL JSONB object column as a generic map.
//
//	type SearchLog struct {
//	    Filters schema.JSONB `po:"filters_applied,jsonb,notNull,default('{}')"`
//	}
type JSONB map[string]interface{}

// Value implements driver.Valuer. The JSON is returned as a string since
// pgx may encode []byte parameters as bytea.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]interface{}(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]interface{}:
		// Already decoded by pgx.
		*j = v
		return nil
	default:
		return fmt.Errorf("failed to scan JSONB: unsupported type %T", value)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*j = result
	return nil
}

// Clone returns a shallow copy, or an empty object for nil.
func (j JSONB) Clone() JSONB {
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}
