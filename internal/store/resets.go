package store

import (
	"context"
	"reflect"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
)

// PasswordResets holds reset tokens. Only the system principal writes them.
type PasswordResets struct{ t *Tx }

// PasswordResets returns the reset token repository bound to t.
func (t *Tx) PasswordResets() PasswordResets { return PasswordResets{t} }

// Create stores a new token.
func (r PasswordResets) Create(ctx context.Context, pr *models.PasswordReset) error {
	return insertRow(ctx, r.t, pr)
}

// GetByToken returns the reset row for token.
func (r PasswordResets) GetByToken(ctx context.Context, token string) (*models.PasswordReset, error) {
	return firstRow[models.PasswordReset](ctx, r.t, squirrel.Expr("reset_token = ?", token))
}

// MarkUsed consumes a token if it is still unused and unexpired. It
// returns runtime.ErrNotFound when another redemption got there first.
func (r PasswordResets) MarkUsed(ctx context.Context, id uuid.UUID) error {
	var zero models.PasswordReset
	table := r.t.table(zero)
	if err := r.t.authorize(ctx, table, policy.Update, reflect.ValueOf(zero), []string{"used"}); err != nil {
		return err
	}
	n, err := r.t.exec(ctx, r.t.store.builder.Update(table.Name).
		Set("used", true).
		Where(squirrel.Expr("id = ? AND used = false AND expires_at > now()", id)))
	if err != nil {
		return err
	}
	if n == 0 {
		return runtime.ErrNotFound
	}
	return nil
}

// ListForUser returns a user's tokens, newest first.
func (r PasswordResets) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.PasswordReset, error) {
	return selectRows[models.PasswordReset](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("user_id = ?", userID)},
		orderBy: []string{"created_at DESC"},
	})
}
