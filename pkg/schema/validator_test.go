package schema

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestValidateDefaultValue(t *testing.T) {
	tests := []struct {
		value     string
		wantError bool
	}{
		{"CURRENT_TIMESTAMP", false},
		{"now()", false},
		{"gen_random_uuid()", false},
		{"0", false},
		{"false", false},
		{"'basic'", false},
		{"'{}'", false},
		{"CURRENT TIMESTAMP", true},
		{"current timestamp", true},
		{"NOW ()", true},
		{"gen_random_uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := ValidateDefaultValue(tt.value)
			if tt.wantError && err == nil {
				t.Errorf("expected error for %q", tt.value)
			}
			if !tt.wantError && err != nil {
				t.Errorf("expected no error for %q, got: %v", tt.value, err)
			}
		})
	}
}

func TestTableMetadata_Validate(t *testing.T) {
	accounts, err := NewParser().Parse(reflect.TypeOf(testAccount{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	reviews, err := NewParser().Parse(reflect.TypeOf(testReview{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	intp := func(n int) *int { return &n }

	tests := []struct {
		name    string
		table   *TableMetadata
		model   interface{}
		wantCol string
	}{
		{"defaulted enum left empty", accounts, testAccount{Handle: "alice"}, ""},
		{"valid enum", accounts, &testAccount{Handle: "alice", Plan: "premium"}, ""},
		{"invalid enum", accounts, testAccount{Handle: "alice", Plan: "gold"}, "plan"},
		{"null rating", reviews, testReview{AccountID: uuid.New()}, ""},
		{"rating at bounds", reviews, testReview{Stars: intp(5)}, ""},
		{"rating zero", reviews, testReview{Stars: intp(0)}, "stars"},
		{"rating six", reviews, testReview{Stars: intp(6)}, "stars"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate(tt.model)
			if tt.wantCol == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Column != tt.wantCol {
				t.Errorf("expected column %s, got %s", tt.wantCol, verr.Column)
			}
		})
	}

	if err := accounts.Validate(testReview{}); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestTableMetadata_CheckValue(t *testing.T) {
	accounts, err := NewParser().Parse(reflect.TypeOf(testAccount{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if err := accounts.CheckValue("plan", "enterprise"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := accounts.CheckValue("plan", "platinum"); err == nil {
		t.Error("expected enum violation")
	}
	if err := accounts.CheckValue("handle", nil); err == nil {
		t.Error("expected not null violation")
	}
	if err := accounts.CheckValue("last_seen", nil); err != nil {
		t.Errorf("nullable column should accept nil: %v", err)
	}
	if err := accounts.CheckValue("nope", 1); err == nil {
		t.Error("expected unknown column error")
	}
}

func TestTableMetadata_InsertValuesAndScanTargets(t *testing.T) {
	accounts, err := NewParser().Parse(reflect.TypeOf(testAccount{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cols, vals, err := accounts.InsertValues(testAccount{Handle: "alice", Plan: "premium"})
	if err != nil {
		t.Fatalf("InsertValues: %v", err)
	}
	// id, profile and created_at fall back to their defaults.
	wantCols := []string{"handle", "plan", "last_seen"}
	if !reflect.DeepEqual(cols, wantCols) {
		t.Errorf("columns = %v, want %v", cols, wantCols)
	}
	if vals[0] != "alice" || vals[1] != "premium" {
		t.Errorf("unexpected values %v", vals)
	}

	var acc testAccount
	targets, err := accounts.ScanTargets(&acc, []string{"handle", "unknown"})
	if err != nil {
		t.Fatalf("ScanTargets: %v", err)
	}
	*(targets[0].(*string)) = "bob"
	if acc.Handle != "bob" {
		t.Errorf("scan target does not point into model")
	}
	if _, err := accounts.ScanTargets(acc, []string{"handle"}); err == nil {
		t.Error("expected error for non-pointer dest")
	}
}

func TestColumnMetadata_HoldsDefault(t *testing.T) {
	def := func(s string) *string { return &s }
	plan := ColumnMetadata{Name: "plan", Default: def("'basic'")}
	admin := ColumnMetadata{Name: "is_admin", Default: def("false")}
	qty := ColumnMetadata{Name: "qty", Default: def("1")}
	created := ColumnMetadata{Name: "created_at", Default: def("now()")}
	note := ColumnMetadata{Name: "note"}
	premium := "premium"

	tests := []struct {
		name string
		col  ColumnMetadata
		v    interface{}
		want bool
	}{
		{"string default", plan, "basic", true},
		{"other string", plan, "premium", false},
		{"string pointer", plan, &premium, false},
		{"bool default", admin, false, true},
		{"bool flipped", admin, true, false},
		{"int default", qty, 1, true},
		{"int other", qty, 2, false},
		{"expression default", created, "now()", false},
		{"no default", note, "", false},
		{"nil", plan, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.col.HoldsDefault(tt.v); got != tt.want {
				t.Errorf("HoldsDefault(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}
