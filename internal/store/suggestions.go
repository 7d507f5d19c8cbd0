package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// Suggestions holds generated product suggestions.
type Suggestions struct{ t *Tx }

// Suggestions returns the suggestions repository bound to t.
func (t *Tx) Suggestions() Suggestions { return Suggestions{t} }

// Create stores one suggestion.
func (r Suggestions) Create(ctx context.Context, s *models.ProductSuggestion) error {
	return insertRow(ctx, r.t, s)
}

// Get returns one suggestion.
func (r Suggestions) Get(ctx context.Context, id uuid.UUID) (*models.ProductSuggestion, error) {
	return getByID[models.ProductSuggestion](ctx, r.t, id)
}

// Recent returns a user's latest suggestions.
func (r Suggestions) Recent(ctx context.Context, userID uuid.UUID, limit uint64) ([]models.ProductSuggestion, error) {
	return selectRows[models.ProductSuggestion](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("user_id = ?", userID)},
		orderBy: []string{"created_at DESC"},
		limit:   limit,
	})
}

// Rate records the user's rating of a suggestion.
func (r Suggestions) Rate(ctx context.Context, id uuid.UUID, rating int) (*models.ProductSuggestion, error) {
	return updateByID[models.ProductSuggestion](ctx, r.t, id, map[string]any{"rating": rating})
}

// AttachImage stores the url of a generated product image.
func (r Suggestions) AttachImage(ctx context.Context, id uuid.UUID, url string) (*models.ProductSuggestion, error) {
	return updateByID[models.ProductSuggestion](ctx, r.t, id, map[string]any{"image_url": url})
}

// MarkBrandingApplied flags a suggestion as rendered with custom branding.
func (r Suggestions) MarkBrandingApplied(ctx context.Context, id uuid.UUID) (*models.ProductSuggestion, error) {
	return updateByID[models.ProductSuggestion](ctx, r.t, id, map[string]any{"branding_applied": true})
}

// Delete removes one suggestion.
func (r Suggestions) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.ProductSuggestion](ctx, r.t, id)
}
