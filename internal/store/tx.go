package store

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Tx is a transaction bound to a principal. It is only valid inside the
// function passed to Store.Do.
type Tx struct {
	tx        pgx.Tx
	store     *Store
	principal policy.Principal
}

// Principal returns the identity the transaction runs as.
func (t *Tx) Principal() policy.Principal { return t.principal }

// query narrows a select.
type query struct {
	where   []squirrel.Sqlizer
	orderBy []string
	limit   uint64
}

func (t *Tx) table(model any) *schema.TableMetadata {
	return t.store.reg.MustGet(model)
}

// authorize evaluates op against row, a struct holding the row's current
// values, and counts the decision.
func (t *Tx) authorize(ctx context.Context, table *schema.TableMetadata, op policy.Operation, row reflect.Value, changed []string) error {
	if t.principal.System {
		t.store.metrics.Decision(table.Name, string(op), true)
		return nil
	}
	owner, err := t.ownerOf(ctx, table, op, row)
	if err != nil {
		return err
	}
	d := t.store.policies.Evaluate(t.principal, table.Name, op, policy.Target{OwnerID: owner, Changed: changed})
	t.store.metrics.Decision(table.Name, string(op), d.Allowed)
	if !d.Allowed {
		t.store.log.Debug("policy denied",
			zap.Stringer("principal", t.principal),
			zap.String("table", table.Name),
			zap.String("operation", string(op)))
		return runtime.ErrAccessDenied
	}
	return nil
}

// ownerOf resolves the owning user of row for the first owner rule covering
// op. Ownership through a parent is read under the caller's visibility, so
// an invisible parent yields no owner.
func (t *Tx) ownerOf(ctx context.Context, table *schema.TableMetadata, op policy.Operation, row reflect.Value) (uuid.UUID, error) {
	tp, ok := t.store.policies.Table(table.Name)
	if !ok {
		return uuid.Nil, nil
	}
	for _, r := range tp.Rules {
		if r.Kind != policy.OwnerOrAdmin || !r.Covers(op) {
			continue
		}
		if r.Parent == nil {
			return columnUUID(table, row, r.OwnerColumn), nil
		}
		parentID := columnUUID(table, row, r.Parent.ForeignKey)
		if parentID == uuid.Nil {
			return uuid.Nil, nil
		}
		sql, args, err := t.store.builder.
			Select(r.Parent.OwnerColumn).
			From(r.Parent.Table).
			Where(squirrel.Expr(r.Parent.Key+" = ?", parentID)).
			ToSql()
		if err != nil {
			return uuid.Nil, fmt.Errorf("build parent owner query: %w", err)
		}
		var owner uuid.UUID
		if err := t.tx.QueryRow(ctx, sql, args...).Scan(&owner); err != nil {
			if err := runtime.Classify(err); err != runtime.ErrNotFound {
				return uuid.Nil, err
			}
			return uuid.Nil, nil
		}
		return owner, nil
	}
	return uuid.Nil, nil
}

func (t *Tx) canRead(ctx context.Context, table *schema.TableMetadata, row reflect.Value) (bool, error) {
	if t.principal.System {
		return true, nil
	}
	owner, err := t.ownerOf(ctx, table, policy.Select, row)
	if err != nil {
		return false, err
	}
	return t.store.policies.Evaluate(t.principal, table.Name, policy.Select, policy.Target{OwnerID: owner}).Allowed, nil
}

func columnUUID(table *schema.TableMetadata, row reflect.Value, column string) uuid.UUID {
	col, ok := table.Column(column)
	if !ok {
		return uuid.Nil
	}
	f := row.FieldByName(col.GoField)
	if !f.IsValid() {
		return uuid.Nil
	}
	if f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return uuid.Nil
		}
		f = f.Elem()
	}
	id, _ := f.Interface().(uuid.UUID)
	return id
}

func (t *Tx) exec(ctx context.Context, b squirrel.Sqlizer) (int64, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, runtime.Classify(err)
	}
	return tag.RowsAffected(), nil
}

// scanAll runs b and scans every row into a new T.
func scanAll[T any](ctx context.Context, t *Tx, table *schema.TableMetadata, b squirrel.Sqlizer) ([]T, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", table.Name, err)
	}
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, runtime.Classify(err)
	}
	defer rows.Close()

	columns := make([]string, len(rows.FieldDescriptions()))
	for i, fd := range rows.FieldDescriptions() {
		columns[i] = fd.Name
	}

	var out []T
	for rows.Next() {
		var row T
		targets, err := table.ScanTargets(&row, columns)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table.Name, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, runtime.Classify(err)
	}
	return out, nil
}

func scanOne[T any](ctx context.Context, t *Tx, table *schema.TableMetadata, b squirrel.Sqlizer) (*T, error) {
	rows, err := scanAll[T](ctx, t, table, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, runtime.ErrNotFound
	}
	return &rows[0], nil
}

// selectRows reads T rows visible to the principal.
func selectRows[T any](ctx context.Context, t *Tx, q query) ([]T, error) {
	var zero T
	table := t.table(zero)
	b := t.store.builder.Select(table.ColumnNames()...).From(table.Name)
	if filter := t.store.policies.Filter(t.principal, table.Name); filter != nil {
		b = b.Where(filter)
	}
	for _, w := range q.where {
		b = b.Where(w)
	}
	if len(q.orderBy) > 0 {
		b = b.OrderBy(q.orderBy...)
	}
	if q.limit > 0 {
		b = b.Limit(q.limit)
	}
	return scanAll[T](ctx, t, table, b)
}

// getByID reads one visible T.
func getByID[T any](ctx context.Context, t *Tx, id uuid.UUID) (*T, error) {
	return firstRow[T](ctx, t, squirrel.Expr("id = ?", id))
}

// firstRow reads the first visible T matching where.
func firstRow[T any](ctx context.Context, t *Tx, where squirrel.Sqlizer) (*T, error) {
	rows, err := selectRows[T](ctx, t, query{where: []squirrel.Sqlizer{where}, limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, runtime.ErrNotFound
	}
	return &rows[0], nil
}

// insertRow validates, authorizes and inserts row, then refreshes it from
// the database so generated values are filled in. Zero-valued columns with
// a default are left to the database unless named in force.
func insertRow[T any](ctx context.Context, t *Tx, row *T, force ...string) error {
	table := t.table(row)
	if err := table.Validate(row); err != nil {
		return err
	}
	columns, values, err := table.InsertValues(row)
	if err != nil {
		return err
	}
	v := reflect.ValueOf(row).Elem()
	for _, name := range force {
		if slices.Contains(columns, name) {
			continue
		}
		col, ok := table.Column(name)
		if !ok {
			return fmt.Errorf("insert %s: unknown column %s", table.Name, name)
		}
		columns = append(columns, name)
		values = append(values, v.FieldByName(col.GoField).Interface())
	}

	// Admin-only columns may be written by anyone as long as they hold
	// their default.
	changed := make([]string, 0, len(columns))
	for i, name := range columns {
		if col, ok := table.Column(name); ok && col.HoldsDefault(values[i]) {
			continue
		}
		changed = append(changed, name)
	}
	if err := t.authorize(ctx, table, policy.Insert, v, changed); err != nil {
		return err
	}

	b := t.store.builder.Insert(table.Name).Columns(columns...).Values(values...)

	// RETURNING needs the new row to pass the select policy as well.
	readable, err := t.canRead(ctx, table, v)
	if err != nil {
		return err
	}
	if !readable {
		_, err := t.exec(ctx, b)
		return err
	}

	inserted, err := scanOne[T](ctx, t, table, b.Suffix("RETURNING "+joinColumns(table)))
	if err != nil {
		return err
	}
	*row = *inserted
	return nil
}

// updateByID applies changes to the visible T with id. The current row must
// be visible and the principal allowed to update it; a change of owner is
// checked against the new owner too.
func updateByID[T any](ctx context.Context, t *Tx, id uuid.UUID, changes map[string]any) (*T, error) {
	var zero T
	table := t.table(zero)
	if len(changes) == 0 {
		return nil, fmt.Errorf("update %s: no changes", table.Name)
	}

	current, err := getByID[T](ctx, t, id)
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, len(changes))
	for col, val := range changes {
		if err := table.CheckValue(col, val); err != nil {
			return nil, err
		}
		changed = append(changed, col)
	}
	slices.Sort(changed)

	if err := t.authorize(ctx, table, policy.Update, reflect.ValueOf(current).Elem(), changed); err != nil {
		return nil, err
	}
	if err := t.authorizeNewOwner(ctx, table, current, changes); err != nil {
		return nil, err
	}

	b := t.store.builder.Update(table.Name).SetMap(changes)
	if _, ok := table.Column("updated_at"); ok {
		if _, set := changes["updated_at"]; !set {
			b = b.Set("updated_at", squirrel.Expr("now()"))
		}
	}
	b = b.Where(squirrel.Expr("id = ?", id)).Suffix("RETURNING " + joinColumns(table))
	return scanOne[T](ctx, t, table, b)
}

// authorizeNewOwner re-evaluates an update whose changes move the row to a
// different owner, mirroring the WITH CHECK half of the policy.
func (t *Tx) authorizeNewOwner(ctx context.Context, table *schema.TableMetadata, current any, changes map[string]any) error {
	tp, ok := t.store.policies.Table(table.Name)
	if !ok {
		return nil
	}
	for _, r := range tp.Rules {
		col := r.OwnerColumn
		if r.Parent != nil {
			col = r.Parent.ForeignKey
		}
		val, moved := changes[col]
		if r.Kind != policy.OwnerOrAdmin || !moved {
			continue
		}
		next := reflect.New(table.GoType).Elem()
		next.Set(reflect.ValueOf(current).Elem())
		c, _ := table.Column(col)
		f := next.FieldByName(c.GoField)
		nv := reflect.ValueOf(val)
		if !nv.IsValid() || !nv.Type().AssignableTo(f.Type()) {
			return fmt.Errorf("update %s: %s must be %s", table.Name, col, f.Type())
		}
		f.Set(nv)
		return t.authorize(ctx, table, policy.Update, next, nil)
	}
	return nil
}

// deleteByID removes the visible T with id.
func deleteByID[T any](ctx context.Context, t *Tx, id uuid.UUID) error {
	var zero T
	table := t.table(zero)
	current, err := getByID[T](ctx, t, id)
	if err != nil {
		return err
	}
	if err := t.authorize(ctx, table, policy.Delete, reflect.ValueOf(current).Elem(), nil); err != nil {
		return err
	}
	n, err := t.exec(ctx, t.store.builder.Delete(table.Name).Where(squirrel.Expr("id = ?", id)))
	if err != nil {
		return err
	}
	if n == 0 {
		return runtime.ErrNotFound
	}
	return nil
}

// count returns the number of visible rows of table matching where.
func (t *Tx) count(ctx context.Context, table string, where ...squirrel.Sqlizer) (int64, error) {
	b := t.store.builder.Select("COUNT(*)").From(table)
	if filter := t.store.policies.Filter(t.principal, table); filter != nil {
		b = b.Where(filter)
	}
	for _, w := range where {
		b = b.Where(w)
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s: %w", table, err)
	}
	var n int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, runtime.Classify(err)
	}
	return n, nil
}

func joinColumns(table *schema.TableMetadata) string {
	return strings.Join(table.ColumnNames(), ", ")
}
