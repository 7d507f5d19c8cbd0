package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/pkg/runtime"
)

// Reports runs the aggregate queries behind the admin dashboard. Every
// query is filtered like a read, so a non-admin only aggregates their own
// rows.
type Reports struct{ t *Tx }

// Reports returns the reports repository bound to t.
func (t *Tx) Reports() Reports { return Reports{t} }

// Count is one group of a breakdown.
type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// UserTotal is one user's order volume.
type UserTotal struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Orders   int64     `json:"orders"`
	Total    float64   `json:"total"`
}

// Range is a half open time interval.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) where(column string) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Expr(column+" >= ?", r.From),
		squirrel.Expr(column+" < ?", r.To),
	}
}

func (r Reports) filtered(table string, b squirrel.SelectBuilder) squirrel.SelectBuilder {
	if filter := r.t.store.policies.Filter(r.t.principal, table); filter != nil {
		b = b.Where(filter)
	}
	return b
}

// CountUsers counts visible users created at or after since. A zero since
// counts all of them.
func (r Reports) CountUsers(ctx context.Context, since time.Time) (int64, error) {
	var where []squirrel.Sqlizer
	if !since.IsZero() {
		where = append(where, squirrel.Expr("created_at >= ?", since))
	}
	return r.t.count(ctx, "users", where...)
}

// CountActivities counts activity entries at or after since.
func (r Reports) CountActivities(ctx context.Context, since time.Time) (int64, error) {
	return r.t.count(ctx, "user_activity", squirrel.Expr("created_at >= ?", since))
}

// ActiveUsers counts visible users who logged in at or after since.
func (r Reports) ActiveUsers(ctx context.Context, since time.Time) (int64, error) {
	return r.t.count(ctx, "users", squirrel.Expr("last_login >= ?", since))
}

// TierBreakdown counts users per subscription tier. With activeOnly set,
// only users in the active status are counted.
func (r Reports) TierBreakdown(ctx context.Context, activeOnly bool) ([]Count, error) {
	b := r.t.store.builder.Select("subscription_tier", "COUNT(*)").From("users")
	if activeOnly {
		b = b.Where(squirrel.Expr("subscription_status = ?", "active"))
	}
	return r.groups(ctx, r.filtered("users", b).GroupBy("subscription_tier").OrderBy("subscription_tier"))
}

// StatusBreakdown counts users per subscription status.
func (r Reports) StatusBreakdown(ctx context.Context) ([]Count, error) {
	b := r.t.store.builder.Select("subscription_status", "COUNT(*)").From("users")
	return r.groups(ctx, r.filtered("users", b).GroupBy("subscription_status").OrderBy("subscription_status"))
}

// ActionBreakdown counts activity entries per action type in rng, most
// frequent first.
func (r Reports) ActionBreakdown(ctx context.Context, rng Range) ([]Count, error) {
	b := r.t.store.builder.Select("action_type", "COUNT(*)").From("user_activity").Where(rng.where("created_at"))
	return r.groups(ctx, r.filtered("user_activity", b).GroupBy("action_type").OrderBy("COUNT(*) DESC", "action_type"))
}

// DailyActivity counts activity entries per UTC day in rng.
func (r Reports) DailyActivity(ctx context.Context, rng Range) ([]Count, error) {
	day := "to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	b := r.t.store.builder.Select(day, "COUNT(*)").From("user_activity").Where(rng.where("created_at"))
	return r.groups(ctx, r.filtered("user_activity", b).GroupBy(day).OrderBy(day))
}

// DistinctActors counts distinct users with activity in rng.
func (r Reports) DistinctActors(ctx context.Context, rng Range) (int64, error) {
	b := r.filtered("user_activity", r.t.store.builder.
		Select("COUNT(DISTINCT user_id)").
		From("user_activity").
		Where(rng.where("created_at")))
	return r.scalar(ctx, b)
}

// Revenue sums the totals of orders created in rng.
func (r Reports) Revenue(ctx context.Context, rng Range) (total float64, orders int64, err error) {
	b := r.filtered("orders", r.t.store.builder.
		Select("COALESCE(SUM(total_amount), 0)::float8", "COUNT(*)").
		From("orders").
		Where(rng.where("created_at")))
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build revenue: %w", err)
	}
	if err := r.t.tx.QueryRow(ctx, sql, args...).Scan(&total, &orders); err != nil {
		return 0, 0, runtime.Classify(err)
	}
	return total, orders, nil
}

// TopCustomers returns the users with the largest order totals in rng.
func (r Reports) TopCustomers(ctx context.Context, rng Range, limit uint64) ([]UserTotal, error) {
	b := r.filtered("orders", r.t.store.builder.
		Select("o.user_id", "u.username", "COUNT(*)", "COALESCE(SUM(o.total_amount), 0)::float8").
		From("orders o").
		Join("users u ON u.id = o.user_id").
		Where(rng.where("o.created_at"))).
		GroupBy("o.user_id", "u.username").
		OrderBy("4 DESC", "u.username").
		Limit(limit)
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build top customers: %w", err)
	}
	rows, err := r.t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, runtime.Classify(err)
	}
	defer rows.Close()

	var out []UserTotal
	for rows.Next() {
		var u UserTotal
		if err := rows.Scan(&u.UserID, &u.Username, &u.Orders, &u.Total); err != nil {
			return nil, fmt.Errorf("scan top customers: %w", err)
		}
		out = append(out, u)
	}
	return out, runtime.Classify(rows.Err())
}

func (r Reports) scalar(ctx context.Context, b squirrel.SelectBuilder) (int64, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build aggregate: %w", err)
	}
	var n int64
	if err := r.t.tx.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, runtime.Classify(err)
	}
	return n, nil
}

func (r Reports) groups(ctx context.Context, b squirrel.SelectBuilder) ([]Count, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build breakdown: %w", err)
	}
	rows, err := r.t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, runtime.Classify(err)
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		out = append(out, c)
	}
	return out, runtime.Classify(rows.Err())
}
