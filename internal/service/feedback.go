package service

import (
	"context"
	"strings"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

// Feedback collects user feedback. Moderation lives in Admin.
type Feedback struct {
	store *store.Store
}

// NewFeedback creates the feedback service.
func NewFeedback(st *store.Store) *Feedback {
	return &Feedback{store: st}
}

// FeedbackInput is submitted feedback. Category defaults to general.
type FeedbackInput struct {
	Text     string `json:"feedback_text"`
	Rating   *int   `json:"rating,omitempty"`
	Category string `json:"category,omitempty"`
}

// Submit stores feedback from the caller.
func (s *Feedback) Submit(ctx context.Context, p policy.Principal, in FeedbackInput) (*models.Feedback, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, invalid("feedback_text", "is required")
	}
	f := &models.Feedback{
		UserID:       p.UserID,
		FeedbackText: in.Text,
		Rating:       in.Rating,
		Category:     in.Category,
	}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		if err := tx.Feedback().Create(ctx, f); err != nil {
			return err
		}
		return logActivity(ctx, tx, p.UserID, ActionFeedback, map[string]any{"category": f.Category}, RequestMeta{})
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Mine lists the caller's feedback, newest first.
func (s *Feedback) Mine(ctx context.Context, p policy.Principal, limit uint64) ([]models.Feedback, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var out []models.Feedback
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Feedback().List(ctx, "", limit)
		return err
	})
	return out, err
}
