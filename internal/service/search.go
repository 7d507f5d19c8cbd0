package service

import (
	"context"
	"strings"
	"time"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Search records product searches against the caller's allowance.
type Search struct {
	store *store.Store
	now   func() time.Time
}

// NewSearch creates the search log service.
func NewSearch(st *store.Store) *Search {
	return &Search{store: st, now: time.Now}
}

// SearchInput is one executed search.
type SearchInput struct {
	Query          string       `json:"search_query"`
	Type           *string      `json:"search_type,omitempty"`
	ResultsCount   int          `json:"results_count"`
	FiltersApplied schema.JSONB `json:"filters_applied,omitempty"`
}

// Record counts one search against the daily allowance and logs it.
func (s *Search) Record(ctx context.Context, p policy.Principal, in SearchInput) (*models.SearchLog, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, invalid("search_query", "is required")
	}
	if in.ResultsCount < 0 {
		return nil, invalid("results_count", "must not be negative")
	}
	l := &models.SearchLog{
		UserID:         p.UserID,
		SearchQuery:    in.Query,
		SearchType:     in.Type,
		ResultsCount:   in.ResultsCount,
		FiltersApplied: in.FiltersApplied,
	}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		if err := consume(ctx, tx, p.UserID, ActionSearch, schema.JSONB{"query": in.Query}, s.now()); err != nil {
			return err
		}
		return tx.SearchLogs().Create(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Recent returns the caller's latest searches.
func (s *Search) Recent(ctx context.Context, p policy.Principal, limit uint64) ([]models.SearchLog, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var out []models.SearchLog
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.SearchLogs().Recent(ctx, p.UserID, limit)
		return err
	})
	return out, err
}
