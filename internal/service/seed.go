package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// DemoAccount is a seeded login.
type DemoAccount struct {
	Username string
	Email    string
	Password string
	Tier     string
	Admin    bool
}

// DemoAccounts are the accounts created by Seed.
var DemoAccounts = []DemoAccount{
	{"admin", "admin@procurement.ai", "hello", models.TierEnterprise, true},
	{"testuser1", "testuser1@example.com", "hello", models.TierBasic, false},
	{"testuser2", "testuser2@example.com", "hello", models.TierPremium, false},
	{"testuser3", "testuser3@example.com", "hello", models.TierEnterprise, false},
	{"banking_demo", "banking@demo.com", "demo123", models.TierPremium, false},
	{"f1_demo", "f1@demo.com", "demo123", models.TierEnterprise, false},
	{"shipping_demo", "shipping@demo.com", "demo123", models.TierPremium, false},
}

// SeedResult reports which accounts were created.
type SeedResult struct {
	Created []string
	Skipped []string
}

// Seed creates the given accounts as the system principal, skipping
// usernames that already exist.
func Seed(ctx context.Context, st *store.Store, accounts []DemoAccount, bcryptCost int, log *zap.Logger) (*SeedResult, error) {
	res := &SeedResult{}
	err := st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
		for _, a := range accounts {
			_, err := tx.Users().GetByUsername(ctx, a.Username)
			if err == nil {
				res.Skipped = append(res.Skipped, a.Username)
				continue
			}
			if !errors.Is(err, runtime.ErrNotFound) {
				return err
			}

			hash, err := HashPassword(a.Password, bcryptCost)
			if err != nil {
				return err
			}
			industry := "General"
			if strings.Contains(a.Username, "demo") {
				industry = "Demo"
			}
			u := &models.User{
				Username:           a.Username,
				Email:              a.Email,
				PasswordHash:       hash,
				SubscriptionTier:   a.Tier,
				SubscriptionStatus: models.StatusActive,
				IsAdmin:            a.Admin,
				ProfileData:        schema.JSONB{"demo_account": true, "industry": industry},
			}
			if err := tx.Users().Create(ctx, u); err != nil {
				return err
			}
			res.Created = append(res.Created, a.Username)
			log.Info("seeded user", zap.String("username", a.Username), zap.String("tier", a.Tier), zap.Bool("admin", a.Admin))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
