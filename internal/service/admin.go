package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

// Admin backs the admin dashboard. Every method requires an admin or the
// system principal.
type Admin struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewAdmin creates the admin service.
func NewAdmin(st *store.Store, log *zap.Logger) *Admin {
	return &Admin{store: st, log: log.Named("admin"), now: time.Now}
}

// Overview is the headline metrics of the dashboard.
type Overview struct {
	TotalUsers      int64   `json:"total_users"`
	ActiveUsers30d  int64   `json:"active_users_30d"`
	NewUsersToday   int64   `json:"new_users_today"`
	ActivitiesToday int64   `json:"activities_today"`
	MonthlyRevenue  float64 `json:"monthly_revenue"`
}

// Overview computes the headline metrics.
func (s *Admin) Overview(ctx context.Context, p policy.Principal) (*Overview, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	now := s.now()
	today := startOfDay(now)
	o := &Overview{}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		r := tx.Reports()
		var err error
		if o.TotalUsers, err = r.CountUsers(ctx, time.Time{}); err != nil {
			return err
		}
		if o.ActiveUsers30d, err = r.ActiveUsers(ctx, now.AddDate(0, 0, -30)); err != nil {
			return err
		}
		if o.NewUsersToday, err = r.CountUsers(ctx, today); err != nil {
			return err
		}
		if o.ActivitiesToday, err = r.CountActivities(ctx, today); err != nil {
			return err
		}
		o.MonthlyRevenue, err = monthlyRevenue(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func monthlyRevenue(ctx context.Context, r store.Reports) (float64, error) {
	tiers, err := r.TierBreakdown(ctx, true)
	if err != nil {
		return 0, err
	}
	return MonthlyRevenue(tiers), nil
}

// MonthlyRevenue prices active subscriptions per tier, rounded to cents.
func MonthlyRevenue(activeByTier []store.Count) float64 {
	var total float64
	for _, c := range activeByTier {
		total += TierPrices[c.Key] * float64(c.Count)
	}
	return roundCents(total)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Users lists accounts, newest first.
func (s *Admin) Users(ctx context.Context, p policy.Principal, limit uint64) ([]models.User, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		users, err = tx.Users().List(ctx, limit)
		return err
	})
	return users, err
}

func (s *Admin) updateUser(ctx context.Context, p policy.Principal, id uuid.UUID, changes map[string]any) (*models.User, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	var u *models.User
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		u, err = tx.Users().Update(ctx, id, changes)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user updated by admin", zap.Stringer("admin", p), zap.Stringer("user_id", id), zap.Any("changes", changes))
	return u, nil
}

// SetStatus changes a user's subscription status.
func (s *Admin) SetStatus(ctx context.Context, p policy.Principal, id uuid.UUID, status string) (*models.User, error) {
	return s.updateUser(ctx, p, id, map[string]any{"subscription_status": status})
}

// SetTier changes a user's subscription tier.
func (s *Admin) SetTier(ctx context.Context, p policy.Principal, id uuid.UUID, tier string) (*models.User, error) {
	return s.updateUser(ctx, p, id, map[string]any{"subscription_tier": tier})
}

// SetAdmin grants or revokes admin rights.
func (s *Admin) SetAdmin(ctx context.Context, p policy.Principal, id uuid.UUID, admin bool) (*models.User, error) {
	return s.updateUser(ctx, p, id, map[string]any{"is_admin": admin})
}

// Feedback lists feedback for moderation, newest first.
func (s *Admin) Feedback(ctx context.Context, p policy.Principal, status string, limit uint64) ([]models.Feedback, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	var out []models.Feedback
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Feedback().List(ctx, status, limit)
		return err
	})
	return out, err
}

// SetFeedbackStatus moves feedback to status.
func (s *Admin) SetFeedbackStatus(ctx context.Context, p policy.Principal, id uuid.UUID, status string) (*models.Feedback, error) {
	return s.respond(ctx, p, id, status, nil)
}

// RespondToFeedback stores an admin response and marks the feedback in
// progress.
func (s *Admin) RespondToFeedback(ctx context.Context, p policy.Principal, id uuid.UUID, response string) (*models.Feedback, error) {
	if response == "" {
		return nil, invalid("response", "is required")
	}
	return s.respond(ctx, p, id, models.FeedbackInProgress, &response)
}

func (s *Admin) respond(ctx context.Context, p policy.Principal, id uuid.UUID, status string, response *string) (*models.Feedback, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	var f *models.Feedback
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		f, err = tx.Feedback().Respond(ctx, id, status, response)
		return err
	})
	return f, err
}

// ActivityReport breaks down activity in a date range.
type ActivityReport struct {
	From    time.Time     `json:"from"`
	To      time.Time     `json:"to"`
	Total   int64         `json:"total"`
	Actions []store.Count `json:"actions"`
	Daily   []store.Count `json:"daily"`
}

// ActivityReport counts activity per action and per day in rng.
func (s *Admin) ActivityReport(ctx context.Context, p policy.Principal, rng store.Range) (*ActivityReport, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	rep := &ActivityReport{From: rng.From, To: rng.To}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		if rep.Actions, err = tx.Reports().ActionBreakdown(ctx, rng); err != nil {
			return err
		}
		rep.Daily, err = tx.Reports().DailyActivity(ctx, rng)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, c := range rep.Actions {
		rep.Total += c.Count
	}
	return rep, nil
}

// RevenueReport sums orders in a date range.
type RevenueReport struct {
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Total        float64           `json:"total"`
	Orders       int64             `json:"orders"`
	TopCustomers []store.UserTotal `json:"top_customers"`
}

// RevenueReport sums order totals in rng and ranks the top ten users.
func (s *Admin) RevenueReport(ctx context.Context, p policy.Principal, rng store.Range) (*RevenueReport, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	rep := &RevenueReport{From: rng.From, To: rng.To}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		if rep.Total, rep.Orders, err = tx.Reports().Revenue(ctx, rng); err != nil {
			return err
		}
		rep.TopCustomers, err = tx.Reports().TopCustomers(ctx, rng, 10)
		return err
	})
	if err != nil {
		return nil, err
	}
	rep.Total = roundCents(rep.Total)
	return rep, nil
}

// UsageReport summarizes activity volume in a date range.
type UsageReport struct {
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Total          int64     `json:"total"`
	UniqueUsers    int64     `json:"unique_users"`
	MostCommon     string    `json:"most_common_action"`
	AveragePerUser float64   `json:"average_per_user"`
}

// UsageReport computes totals, distinct users and the most common action
// in rng.
func (s *Admin) UsageReport(ctx context.Context, p policy.Principal, rng store.Range) (*UsageReport, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	rep := &UsageReport{From: rng.From, To: rng.To, MostCommon: "N/A"}
	var actions []store.Count
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		if actions, err = tx.Reports().ActionBreakdown(ctx, rng); err != nil {
			return err
		}
		rep.UniqueUsers, err = tx.Reports().DistinctActors(ctx, rng)
		return err
	})
	if err != nil {
		return nil, err
	}
	summarizeUsage(rep, actions)
	return rep, nil
}

// summarizeUsage fills the derived fields; actions arrive most frequent
// first.
func summarizeUsage(rep *UsageReport, actions []store.Count) {
	for _, c := range actions {
		rep.Total += c.Count
	}
	if len(actions) > 0 {
		rep.MostCommon = actions[0].Key
	}
	if rep.UniqueUsers > 0 {
		rep.AveragePerUser = math.Round(float64(rep.Total)/float64(rep.UniqueUsers)*100) / 100
	}
}

// SubscriptionReport breaks users down by tier and status.
type SubscriptionReport struct {
	ByTier         []store.Count `json:"by_tier"`
	ByStatus       []store.Count `json:"by_status"`
	MonthlyRevenue float64       `json:"monthly_recurring_revenue"`
}

// SubscriptionReport counts users per tier and status and prices the
// active subscriptions.
func (s *Admin) SubscriptionReport(ctx context.Context, p policy.Principal) (*SubscriptionReport, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	rep := &SubscriptionReport{}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		r := tx.Reports()
		var err error
		if rep.ByTier, err = r.TierBreakdown(ctx, false); err != nil {
			return err
		}
		if rep.ByStatus, err = r.StatusBreakdown(ctx); err != nil {
			return err
		}
		rep.MonthlyRevenue, err = monthlyRevenue(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// RecentActivity returns the latest activity of one user.
func (s *Admin) RecentActivity(ctx context.Context, p policy.Principal, userID uuid.UUID, limit uint64) ([]models.UserActivity, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	var out []models.UserActivity
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Activity().ListForUser(ctx, userID, limit)
		return err
	})
	return out, err
}
