package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// Users is the users repository.
type Users struct{ t *Tx }

// Users returns the users repository bound to t.
func (t *Tx) Users() Users { return Users{t} }

// Create inserts u. Tier and status fall back to their column defaults.
func (r Users) Create(ctx context.Context, u *models.User) error {
	return insertRow(ctx, r.t, u)
}

// Get returns the user with id.
func (r Users) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return getByID[models.User](ctx, r.t, id)
}

// GetByEmail returns the user with the given email.
func (r Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, squirrel.Expr("email = ?", email))
}

// GetByUsername returns the user with the given username.
func (r Users) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, squirrel.Expr("username = ?", username))
}

func (r Users) first(ctx context.Context, where squirrel.Sqlizer) (*models.User, error) {
	return firstRow[models.User](ctx, r.t, where)
}

// List returns visible users, newest first.
func (r Users) List(ctx context.Context, limit uint64) ([]models.User, error) {
	return selectRows[models.User](ctx, r.t, query{orderBy: []string{"created_at DESC"}, limit: limit})
}

// Update applies column changes to the user with id.
func (r Users) Update(ctx context.Context, id uuid.UUID, changes map[string]any) (*models.User, error) {
	return updateByID[models.User](ctx, r.t, id, changes)
}

// TouchLogin records a successful login.
func (r Users) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.Update(ctx, id, map[string]any{"last_login": at})
	return err
}

// Delete removes the user and, by cascade, everything they own.
func (r Users) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.User](ctx, r.t, id)
}
