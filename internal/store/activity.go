package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// Activity is the user activity log.
type Activity struct{ t *Tx }

// Activity returns the activity repository bound to t.
func (t *Tx) Activity() Activity { return Activity{t} }

// Log appends an entry. Anyone may write the log; only the owner and admins
// read it back.
func (r Activity) Log(ctx context.Context, a *models.UserActivity) error {
	return insertRow(ctx, r.t, a)
}

// ListForUser returns a user's entries, newest first.
func (r Activity) ListForUser(ctx context.Context, userID uuid.UUID, limit uint64) ([]models.UserActivity, error) {
	return selectRows[models.UserActivity](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("user_id = ?", userID)},
		orderBy: []string{"created_at DESC"},
		limit:   limit,
	})
}

// CountSince counts a user's entries of one action type since a moment.
func (r Activity) CountSince(ctx context.Context, userID uuid.UUID, action string, since time.Time) (int64, error) {
	return r.t.count(ctx, "user_activity",
		squirrel.Expr("user_id = ?", userID),
		squirrel.Expr("action_type = ?", action),
		squirrel.Expr("created_at >= ?", since))
}
