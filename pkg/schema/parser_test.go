package schema

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

type testAccount struct {
	ID        uuid.UUID  `po:"id,uuid,primaryKey,default(gen_random_uuid())"`
	Handle    string     `po:"handle,varchar(50),unique,notNull"`
	Plan      string     `po:"plan,varchar(20),notNull,default('basic'),oneOf(basic|premium|enterprise)"`
	Profile   JSONB      `po:"profile,jsonb,notNull,default('{}')"`
	CreatedAt time.Time  `po:"created_at,timestamptz,notNull,default(now())"`
	LastSeen  *time.Time `po:"last_seen,timestamptz"`
	note      string
}

func (testAccount) TableName() string { return "accounts" }

type testReview struct {
	ID        uuid.UUID `po:"id,uuid,primaryKey,default(gen_random_uuid())"`
	AccountID uuid.UUID `po:"account_id,uuid,notNull,index,references(accounts.id),onDelete(cascade)"`
	Stars     *int      `po:"stars,integer,range(1|5)"`
	Qty       int       `po:"qty,integer,notNull,default(1),check(qty > 0)"`
	Price     float64   `po:"price,numeric(12,2),notNull"`
	Tags      []string  `po:"tags,text[]"`
	Skipped   string
}

func TestParser_Parse(t *testing.T) {
	parser := NewParser()

	t.Run("table name from Tabler", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(testAccount{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if table.Name != "accounts" {
			t.Errorf("expected table name 'accounts', got '%s'", table.Name)
		}
		if len(table.Columns) != 6 {
			t.Errorf("expected 6 columns, got %d", len(table.Columns))
		}
		if table.PrimaryKey == nil || table.PrimaryKey.Columns[0] != "id" {
			t.Fatalf("expected primary key on id, got %+v", table.PrimaryKey)
		}
	})

	t.Run("table name from registry", func(t *testing.T) {
		RegisterTableName("testReview", "reviews")
		table, err := NewParser().Parse(reflect.TypeOf(&testReview{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if table.Name != "reviews" {
			t.Errorf("expected 'reviews', got '%s'", table.Name)
		}
	})

	t.Run("column metadata", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(testAccount{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}

		handle, ok := table.Column("handle")
		if !ok {
			t.Fatal("handle column not found")
		}
		if handle.SQLType != "varchar(50)" || handle.Nullable || !handle.Unique {
			t.Errorf("unexpected handle column: %+v", handle)
		}

		created, _ := table.Column("created_at")
		if created.SQLType != "timestamp with time zone" {
			t.Errorf("expected timestamptz, got %s", created.SQLType)
		}

		lastSeen, _ := table.Column("last_seen")
		if !lastSeen.Nullable {
			t.Error("expected pointer column to be nullable")
		}
	})

	t.Run("oneOf becomes check constraint", func(t *testing.T) {
		table, err := parser.Parse(reflect.TypeOf(testAccount{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if len(table.Constraints) != 1 {
			t.Fatalf("expected 1 constraint, got %d", len(table.Constraints))
		}
		c := table.Constraints[0]
		if c.Name != "accounts_plan_check" {
			t.Errorf("unexpected constraint name %s", c.Name)
		}
		if c.Expression != "plan IN ('basic', 'premium', 'enterprise')" {
			t.Errorf("unexpected expression %s", c.Expression)
		}
	})

	t.Run("range, check, foreign key and index", func(t *testing.T) {
		table, err := NewParser().Parse(reflect.TypeOf(testReview{}))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}

		exprs := map[string]string{}
		for _, c := range table.Constraints {
			exprs[c.Columns[0]] = c.Expression
		}
		if exprs["stars"] != "stars >= 1 AND stars <= 5" {
			t.Errorf("unexpected stars check: %q", exprs["stars"])
		}
		if exprs["qty"] != "qty > 0" {
			t.Errorf("unexpected qty check: %q", exprs["qty"])
		}

		if len(table.ForeignKeys) != 1 {
			t.Fatalf("expected 1 foreign key, got %d", len(table.ForeignKeys))
		}
		fk := table.ForeignKeys[0]
		if fk.ReferencedTable != "accounts" || fk.ReferencedColumns[0] != "id" || fk.OnDelete != Cascade {
			t.Errorf("unexpected foreign key %+v", fk)
		}

		if len(table.Indexes) != 1 || table.Indexes[0].Columns[0] != "account_id" {
			t.Errorf("expected index on account_id, got %+v", table.Indexes)
		}

		tags, _ := table.Column("tags")
		if tags.SQLType != "text[]" {
			t.Errorf("expected text[], got %s", tags.SQLType)
		}
		price, _ := table.Column("price")
		if price.SQLType != "numeric(12,2)" {
			t.Errorf("expected numeric(12,2), got %s", price.SQLType)
		}
	})

	t.Run("rejects non struct", func(t *testing.T) {
		if _, err := parser.Parse(reflect.TypeOf(42)); err == nil {
			t.Error("expected error for int")
		}
	})

	t.Run("rejects bad default", func(t *testing.T) {
		type bad struct {
			At time.Time `po:"at,timestamptz,default(CURRENT TIMESTAMP)"`
		}
		if _, err := NewParser().Parse(reflect.TypeOf(bad{})); err == nil {
			t.Error("expected error for misspelled default")
		}
	})
}

func TestParseTag(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		tag      string
		expected map[string]string
	}{
		{"simple", "id", map[string]string{}},
		{"value option", "name,varchar(255)", map[string]string{"varchar": "255"}},
		{"numeric precision", "total,numeric(12,2),default(0),notNull", map[string]string{
			"numeric": "12,2", "default": "0", "notNull": "",
		}},
		{"enumeration", "status,oneOf(open|resolved)", map[string]string{"oneOf": "open|resolved"}},
		{"nested default", "id,default(gen_random_uuid())", map[string]string{"default": "gen_random_uuid()"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parser.parseTag(tt.tag)
			if err != nil {
				t.Fatalf("parseTag() error = %v", err)
			}
			if len(result.Options) != len(tt.expected) {
				t.Errorf("expected %d options, got %d", len(tt.expected), len(result.Options))
			}
			for key, want := range tt.expected {
				if got, ok := result.Options[key]; !ok || got != want {
					t.Errorf("option '%s': expected '%s', got '%s'", key, want, got)
				}
			}
		})
	}

	if _, err := parser.parseTag(""); err == nil {
		t.Error("expected error for empty tag")
	}
	if _, err := parser.parseTag("x,check(a > 0"); err == nil {
		t.Error("expected error for unbalanced option")
	}
}

func TestSplitTag(t *testing.T) {
	got := splitTag("total,numeric(12,2),check(a IN (1, 2))")
	want := []string{"total", "numeric(12,2)", "check(a IN (1, 2))"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitTag = %v, want %v", got, want)
	}
}

func TestToSnakeCase(t *testing.T) {
	for input, want := range map[string]string{
		"User":         "user",
		"OrderItem":    "order_item",
		"SocialTrend":  "social_trend",
		"UserActivity": "user_activity",
	} {
		if got := toSnakeCase(input); got != want {
			t.Errorf("toSnakeCase(%s) = %s, want %s", input, got, want)
		}
	}
}

func TestTableMetadata_References(t *testing.T) {
	table, err := NewParser().Parse(reflect.TypeOf(testReview{}))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if refs := table.References(); !reflect.DeepEqual(refs, []string{"accounts"}) {
		t.Errorf("References() = %v", refs)
	}
}
