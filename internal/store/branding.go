package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/pkg/runtime"
)

// Branding holds custom branding configurations.
type Branding struct{ t *Tx }

// Branding returns the branding repository bound to t.
func (t *Tx) Branding() Branding { return Branding{t} }

// Create inserts b. IsActive is always written, even when false.
func (r Branding) Create(ctx context.Context, b *models.CustomBranding) error {
	return insertRow(ctx, r.t, b, "is_active")
}

// Active returns the user's active configuration.
func (r Branding) Active(ctx context.Context, userID uuid.UUID) (*models.CustomBranding, error) {
	rows, err := selectRows[models.CustomBranding](ctx, r.t, query{
		where: []squirrel.Sqlizer{
			squirrel.Expr("user_id = ?", userID),
			squirrel.Expr("is_active"),
		},
		orderBy: []string{"created_at DESC"},
		limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, runtime.ErrNotFound
	}
	return &rows[0], nil
}

// List returns every configuration of a user, newest first.
func (r Branding) List(ctx context.Context, userID uuid.UUID) ([]models.CustomBranding, error) {
	return selectRows[models.CustomBranding](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("user_id = ?", userID)},
		orderBy: []string{"created_at DESC"},
	})
}

// Deactivate clears the active flag on every active configuration of a
// user and returns how many changed.
func (r Branding) Deactivate(ctx context.Context, userID uuid.UUID) (int, error) {
	active, err := selectRows[models.CustomBranding](ctx, r.t, query{
		where: []squirrel.Sqlizer{
			squirrel.Expr("user_id = ?", userID),
			squirrel.Expr("is_active"),
		},
	})
	if err != nil {
		return 0, err
	}
	for _, b := range active {
		if _, err := updateByID[models.CustomBranding](ctx, r.t, b.ID, map[string]any{"is_active": false}); err != nil {
			return 0, err
		}
	}
	return len(active), nil
}

// Update applies column changes to one configuration.
func (r Branding) Update(ctx context.Context, id uuid.UUID, changes map[string]any) (*models.CustomBranding, error) {
	return updateByID[models.CustomBranding](ctx, r.t, id, changes)
}

// Delete removes one configuration.
func (r Branding) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.CustomBranding](ctx, r.t, id)
}
