package store

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
)

// Trends holds scraped social media trends. Only admins and the system
// principal reach them.
type Trends struct{ t *Tx }

// Trends returns the trends repository bound to t.
func (t *Tx) Trends() Trends { return Trends{t} }

// Create stores one trend.
func (r Trends) Create(ctx context.Context, s *models.SocialTrend) error {
	return insertRow(ctx, r.t, s)
}

// List returns trends by relevance, optionally for one platform.
func (r Trends) List(ctx context.Context, platform string, limit uint64) ([]models.SocialTrend, error) {
	q := query{orderBy: []string{"relevance_score DESC NULLS LAST", "scraped_at DESC"}, limit: limit}
	if platform != "" {
		q.where = append(q.where, squirrel.Expr("platform = ?", platform))
	}
	return selectRows[models.SocialTrend](ctx, r.t, q)
}

// ForIndustry returns trends tagged with the given industry.
func (r Trends) ForIndustry(ctx context.Context, industry string, limit uint64) ([]models.SocialTrend, error) {
	return selectRows[models.SocialTrend](ctx, r.t, query{
		where:   []squirrel.Sqlizer{squirrel.Expr("? = ANY(industry_tags)", industry)},
		orderBy: []string{"relevance_score DESC NULLS LAST"},
		limit:   limit,
	})
}

// Delete removes one trend.
func (r Trends) Delete(ctx context.Context, id uuid.UUID) error {
	return deleteByID[models.SocialTrend](ctx, r.t, id)
}
