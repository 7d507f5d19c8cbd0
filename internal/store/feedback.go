package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// Feedback is the feedback repository.
type Feedback struct{ t *Tx }

// Feedback returns the feedback repository bound to t.
func (t *Tx) Feedback() Feedback { return Feedback{t} }

// Create submits feedback.
func (r Feedback) Create(ctx context.Context, f *models.Feedback) error {
	return insertRow(ctx, r.t, f)
}

// Get returns one feedback entry.
func (r Feedback) Get(ctx context.Context, id uuid.UUID) (*models.Feedback, error) {
	return getByID[models.Feedback](ctx, r.t, id)
}

// List returns visible feedback, newest first, optionally with one status.
func (r Feedback) List(ctx context.Context, status string, limit uint64) ([]models.Feedback, error) {
	q := query{orderBy: []string{"created_at DESC"}, limit: limit}
	if status != "" {
		q.where = append(q.where, squirrel.Expr("status = ?", status))
	}
	return selectRows[models.Feedback](ctx, r.t, q)
}

// Respond sets the status and, when response is non-nil, the admin response.
func (r Feedback) Respond(ctx context.Context, id uuid.UUID, status string, response *string) (*models.Feedback, error) {
	changes := map[string]any{"status": status}
	if response != nil {
		changes["admin_response"] = *response
	}
	return updateByID[models.Feedback](ctx, r.t, id, changes)
}

// Delete removes one feedback entry.
func (r Feedback) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.Feedback](ctx, r.t, id)
}
