package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Suggestions stores generated product suggestions. Generation itself
// happens elsewhere; this service only persists and meters it.
type Suggestions struct {
	store *store.Store
	now   func() time.Time
}

// NewSuggestions creates the suggestion service.
func NewSuggestions(st *store.Store) *Suggestions {
	return &Suggestions{store: st, now: time.Now}
}

// Store saves a batch of suggestions for one industry and prompt, counting
// as one AI suggestion use.
func (s *Suggestions) Store(ctx context.Context, p policy.Principal, industry, prompt string, batch []schema.JSONB) ([]models.ProductSuggestion, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(industry) == "" {
		return nil, invalid("industry_segment", "is required")
	}
	if len(batch) == 0 {
		return nil, invalid("suggestions", "at least one suggestion is required")
	}
	out := make([]models.ProductSuggestion, len(batch))
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		if err := consume(ctx, tx, p.UserID, ActionAISuggestion, schema.JSONB{
			"industry": industry,
			"count":    len(batch),
		}, s.now()); err != nil {
			return err
		}
		for i, data := range batch {
			out[i] = models.ProductSuggestion{
				UserID:          p.UserID,
				IndustrySegment: industry,
				Prompt:          prompt,
				SuggestionData:  data,
			}
			if err := tx.Suggestions().Create(ctx, &out[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Recent returns the caller's latest suggestions.
func (s *Suggestions) Recent(ctx context.Context, p policy.Principal, limit uint64) ([]models.ProductSuggestion, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var out []models.ProductSuggestion
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Suggestions().Recent(ctx, p.UserID, limit)
		return err
	})
	return out, err
}

// Rate records a rating between 1 and 5.
func (s *Suggestions) Rate(ctx context.Context, p policy.Principal, id uuid.UUID, rating int) (*models.ProductSuggestion, error) {
	var out *models.ProductSuggestion
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Suggestions().Rate(ctx, id, rating)
		return err
	})
	return out, err
}

// AttachImage stores the url the image service produced, counting as one
// image generation.
func (s *Suggestions) AttachImage(ctx context.Context, p policy.Principal, id uuid.UUID, url string) (*models.ProductSuggestion, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if url == "" {
		return nil, invalid("image_url", "is required")
	}
	var out *models.ProductSuggestion
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		if out, err = tx.Suggestions().AttachImage(ctx, id, url); err != nil {
			return err
		}
		return consume(ctx, tx, p.UserID, ActionImageGeneration, schema.JSONB{"suggestion_id": id.String()}, s.now())
	})
	return out, err
}

// MarkBrandingApplied flags a suggestion as rendered with the caller's
// branding.
func (s *Suggestions) MarkBrandingApplied(ctx context.Context, p policy.Principal, id uuid.UUID) (*models.ProductSuggestion, error) {
	var out *models.ProductSuggestion
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Suggestions().MarkBrandingApplied(ctx, id)
		return err
	})
	return out, err
}
