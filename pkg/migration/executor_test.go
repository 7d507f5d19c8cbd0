package migration

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/pashagolub/pgxmock/v2"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			name: "simple",
			sql:  "CREATE TABLE a (id int);\n\nCREATE TABLE b (id int);\n",
			want: []string{"CREATE TABLE a (id int)", "CREATE TABLE b (id int)"},
		},
		{
			name: "dollar quoted body",
			sql:  "CREATE FUNCTION f() RETURNS trigger LANGUAGE plpgsql AS $$\nBEGIN\n  RETURN NEW;\nEND\n$$;\nSELECT 1;",
			want: []string{
				"CREATE FUNCTION f() RETURNS trigger LANGUAGE plpgsql AS $$\nBEGIN\n  RETURN NEW;\nEND\n$$",
				"SELECT 1",
			},
		},
		{
			name: "tagged dollar quote",
			sql:  "DO $body$ BEGIN PERFORM 1; END $body$;",
			want: []string{"DO $body$ BEGIN PERFORM 1; END $body$"},
		},
		{
			name: "quoted semicolons",
			sql:  `INSERT INTO t VALUES ('a;b', 'it''s');SELECT ";" FROM t;`,
			want: []string{`INSERT INTO t VALUES ('a;b', 'it''s')`, `SELECT ";" FROM t`},
		},
		{
			name: "comments",
			sql:  "-- header; with semicolon\n/* block; */\nSELECT 1; -- trailing\n",
			want: []string{"-- header; with semicolon\n/* block; */\nSELECT 1"},
		},
		{
			name: "positional parameters",
			sql:  "SELECT $1;",
			want: []string{"SELECT $1"},
		},
		{
			name: "comments only",
			sql:  "-- nothing here\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitStatements(tt.sql)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitStatements() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutorApply(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	m := Migration{Version: "20240101120000", Name: "procurement_schema", UpSQL: "CREATE TABLE a (id int);\nCREATE TABLE b (id int);"}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM schema_migrations`).
		WithArgs(m.Version).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE a`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`CREATE TABLE b`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(m.Version, m.Name, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := NewExecutor(mock).Apply(context.Background(), m, false); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExecutorApplyFailureIsRecorded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	m := Migration{Version: "20240101120000", Name: "broken", UpSQL: "CREATE TABLE a (id int);"}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM schema_migrations`).
		WithArgs(m.Version).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE a`).WillReturnError(errors.New("relation exists"))
	mock.ExpectRollback()
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(m.Version, m.Name, "statement 1 failed: relation exists").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewExecutor(mock).Apply(context.Background(), m, false)
	if err == nil {
		t.Fatal("expected Apply to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExecutorApplyAlreadyApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM schema_migrations`).
		WithArgs("20240101120000").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	err = NewExecutor(mock).Apply(context.Background(), Migration{Version: "20240101120000"}, false)
	if err == nil {
		t.Fatal("expected error for applied migration")
	}
}

func TestExecutorGetStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT version, name, status, applied_at, error FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"version", "name", "status", "applied_at", "error"}).
			AddRow("20240101120000", "procurement_schema", StatusApplied, nil, nil))

	records, err := NewExecutor(mock).GetStatus(context.Background(), []Migration{
		{Version: "20240101120000", Name: "procurement_schema"},
		{Version: "20240201120000", Name: "next"},
	})
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Status != StatusApplied || records[1].Status != StatusPending {
		t.Errorf("unexpected statuses %s, %s", records[0].Status, records[1].Status)
	}
}
