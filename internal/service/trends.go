package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

// Trends stores and serves scraped social media trends.
type Trends struct {
	store *store.Store
	log   *zap.Logger
}

// NewTrends creates the trend service.
func NewTrends(st *store.Store, log *zap.Logger) *Trends {
	return &Trends{store: st, log: log.Named("trends")}
}

// Record stores a scraped batch. The scraper runs out of band as the
// system principal; an admin may also record trends by hand.
func (s *Trends) Record(ctx context.Context, p policy.Principal, trends []models.SocialTrend) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		for i := range trends {
			if err := tx.Trends().Create(ctx, &trends[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("trends recorded", zap.Int("count", len(trends)), zap.Stringer("principal", p))
	return nil
}

// List returns trends, optionally for one platform or industry.
func (s *Trends) List(ctx context.Context, p policy.Principal, platform, industry string, limit uint64) ([]models.SocialTrend, error) {
	var out []models.SocialTrend
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		if industry != "" {
			out, err = tx.Trends().ForIndustry(ctx, industry, limit)
			return err
		}
		out, err = tx.Trends().List(ctx, platform, limit)
		return err
	})
	return out, err
}
