package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// SearchLogs records searches.
type SearchLogs struct{ t *Tx }

// SearchLogs returns the search log repository bound to t.
func (t *Tx) SearchLogs() SearchLogs { return SearchLogs{t} }

// Create records a search.
func (r SearchLogs) Create(ctx context.Context, l *models.SearchLog) error {
	return insertRow(ctx, r.t, l)
}

// Recent returns a user's latest searches.
func (r SearchLogs) Recent(ctx context.Context, userID uuid.UUID, limit uint64) ([]models.SearchLog, error) {
	return selectRows[models.SearchLog](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("user_id = ?", userID)},
		orderBy: []string{"created_at DESC"},
		limit:   limit,
	})
}

// Delete removes one search log entry.
func (r SearchLogs) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.SearchLog](ctx, r.t, id)
}
