package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/marshallshelly/procuredb/internal/config"
	"github.com/marshallshelly/procuredb/internal/models"
	mailer "github.com/marshallshelly/procuredb/internal/mail"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// RequestMeta describes the client behind an action.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func (m RequestMeta) apply(a *models.UserActivity) {
	if m.IPAddress != "" {
		ip := m.IPAddress
		a.IPAddress = &ip
	}
	if m.UserAgent != "" {
		ua := m.UserAgent
		a.UserAgent = &ua
	}
}

// Accounts handles registration, login, password recovery and tier limits.
type Accounts struct {
	store   *store.Store
	mailer  mailer.Sender
	cfg     config.AuthSettings
	baseURL string
	log     *zap.Logger
	now     func() time.Time
}

// NewAccounts creates the account service. baseURL prefixes reset links.
func NewAccounts(st *store.Store, sender mailer.Sender, cfg config.AuthSettings, baseURL string, log *zap.Logger) *Accounts {
	return &Accounts{
		store:   st,
		mailer:  sender,
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.Named("accounts"),
		now:     time.Now,
	}
}

// RegisterInput is a sign up request. New accounts start on the basic
// tier; tier changes are an admin operation.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Username) == "" {
		return invalid("username", "is required")
	}
	if len(in.Username) > 50 {
		return invalid("username", "must be at most 50 characters")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	if in.Password == "" {
		return invalid("password", "is required")
	}
	if len(in.Password) > 72 {
		return invalid("password", "must be at most 72 bytes")
	}
	return nil
}

// HashPassword hashes with bcrypt at cost, or the bcrypt default when cost
// is zero.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates an account. The new user inserts their own row, so the
// insert passes the owner policy without elevated rights.
func (s *Accounts) Register(ctx context.Context, in RegisterInput, meta RequestMeta) (*models.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
	}
	self := policy.Principal{UserID: u.ID}
	err = s.store.Do(ctx, self, func(tx *store.Tx) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		a := &models.UserActivity{UserID: u.ID, ActionType: ActionRegister}
		meta.apply(a)
		return tx.Activity().Log(ctx, a)
	})
	if err != nil {
		return nil, registrationError(err)
	}
	s.log.Info("user registered", zap.Stringer("user_id", u.ID), zap.String("tier", u.SubscriptionTier))
	return u, nil
}

func registrationError(err error) error {
	var ce *runtime.ConstraintError
	if errors.As(err, &ce) && ce.Kind == runtime.Unique {
		switch {
		case strings.Contains(ce.Constraint, "username"):
			return fmt.Errorf("%w: %w", ErrUsernameTaken, err)
		case strings.Contains(ce.Constraint, "email"):
			return fmt.Errorf("%w: %w", ErrEmailTaken, err)
		}
	}
	return err
}

// Authenticate checks credentials and records the login. Unknown users and
// wrong passwords are indistinguishable.
func (s *Accounts) Authenticate(ctx context.Context, username, password string, meta RequestMeta) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var u *models.User
	err := s.store.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
		var err error
		u, err = tx.Users().GetByUsername(ctx, username)
		return err
	})
	if errors.Is(err, runtime.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.SubscriptionStatus != models.StatusActive {
		return nil, ErrInactiveAccount
	}

	now := s.now().UTC()
	self := policy.Principal{UserID: u.ID, Admin: u.IsAdmin}
	err = s.store.Do(ctx, self, func(tx *store.Tx) error {
		if err := tx.Users().TouchLogin(ctx, u.ID, now); err != nil {
			return err
		}
		a := &models.UserActivity{UserID: u.ID, ActionType: ActionLogin}
		meta.apply(a)
		return tx.Activity().Log(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	u.LastLogin = &now
	s.log.Debug("login", zap.Stringer("user_id", u.ID))
	return u, nil
}

// NewResetToken returns 32 random bytes in unpadded URL safe base64.
func NewResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// InitiatePasswordReset stores a reset token and mails the link. An
// unknown email succeeds silently so the call cannot probe for accounts.
func (s *Accounts) InitiatePasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	token, err := NewResetToken()
	if err != nil {
		return err
	}
	ttl := s.cfg.ResetTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	var found bool
	err = s.store.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
		u, err := tx.Users().GetByEmail(ctx, email)
		if errors.Is(err, runtime.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return tx.PasswordResets().Create(ctx, &models.PasswordReset{
			UserID:     u.ID,
			ResetToken: token,
			ExpiresAt:  s.now().UTC().Add(ttl),
		})
	})
	if err != nil {
		return err
	}
	if !found {
		s.log.Info("password reset for unknown email")
		return nil
	}

	body := fmt.Sprintf(`Hello,

You requested a password reset for your procurement account.

Open the link below to choose a new password:
%s/reset-password?token=%s

This link will expire in %s.

If you didn't request this reset, please ignore this email.
`, s.baseURL, token, ttl)
	return s.mailer.Send(ctx, mailer.Message{
		To:      []string{email},
		Subject: "Password Reset",
		Body:    body,
	})
}

// ResetPassword sets a new password with an unused, unexpired token and
// consumes the token.
func (s *Accounts) ResetPassword(ctx context.Context, token, password string) error {
	if password == "" || len(password) > 72 {
		return invalid("password", "must be between 1 and 72 bytes")
	}
	hash, err := HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.store.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
		pr, err := tx.PasswordResets().GetByToken(ctx, token)
		if errors.Is(err, runtime.ErrNotFound) {
			return ErrInvalidResetToken
		}
		if err != nil {
			return err
		}
		if pr.Used {
			return ErrInvalidResetToken
		}
		if !s.now().Before(pr.ExpiresAt) {
			return ErrResetTokenExpired
		}
		// Claim the token before touching the password.
		if err := tx.PasswordResets().MarkUsed(ctx, pr.ID); err != nil {
			if errors.Is(err, runtime.ErrNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}
		if _, err := tx.Users().Update(ctx, pr.UserID, map[string]any{"password_hash": hash}); err != nil {
			return err
		}
		return tx.Activity().Log(ctx, &models.UserActivity{UserID: pr.UserID, ActionType: ActionPasswordReset})
	})
}

// Profile returns the caller's account.
func (s *Accounts) Profile(ctx context.Context, p policy.Principal) (*models.User, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var u *models.User
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		u, err = tx.Users().Get(ctx, p.UserID)
		return err
	})
	return u, err
}

// UpdateProfile replaces the caller's free form profile data.
func (s *Accounts) UpdateProfile(ctx context.Context, p policy.Principal, data schema.JSONB) (*models.User, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if data == nil {
		data = schema.JSONB{}
	}
	var u *models.User
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		u, err = tx.Users().Update(ctx, p.UserID, map[string]any{"profile_data": data})
		return err
	})
	return u, err
}

// LogActivity appends an activity entry for the caller.
func (s *Accounts) LogActivity(ctx context.Context, p policy.Principal, action string, details schema.JSONB, meta RequestMeta) error {
	if err := requireUser(p); err != nil {
		return err
	}
	return s.store.Do(ctx, p, func(tx *store.Tx) error {
		return logActivity(ctx, tx, p.UserID, action, details, meta)
	})
}

func logActivity(ctx context.Context, tx *store.Tx, userID uuid.UUID, action string, details schema.JSONB, meta RequestMeta) error {
	a := &models.UserActivity{UserID: userID, ActionType: action, Details: details}
	meta.apply(a)
	return tx.Activity().Log(ctx, a)
}

// CheckLimit reports the caller's usage of a capped action today.
func (s *Accounts) CheckLimit(ctx context.Context, p policy.Principal, action string) (Usage, error) {
	if err := requireUser(p); err != nil {
		return Usage{}, err
	}
	var usage Usage
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		usage, err = usageOf(ctx, tx, p.UserID, action, s.now())
		return err
	})
	return usage, err
}

func usageOf(ctx context.Context, tx *store.Tx, userID uuid.UUID, action string, now time.Time) (Usage, error) {
	u, err := tx.Users().Get(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	limit, err := LimitFor(u.SubscriptionTier, action)
	if err != nil {
		return Usage{}, err
	}
	used, err := tx.Activity().CountSince(ctx, userID, action, startOfDay(now))
	if err != nil {
		return Usage{}, err
	}
	return newUsage(action, used, limit), nil
}

// consume checks the daily cap of action and, when allowed, logs one use
// in the same transaction.
func consume(ctx context.Context, tx *store.Tx, userID uuid.UUID, action string, details schema.JSONB, now time.Time) error {
	usage, err := usageOf(ctx, tx, userID, action, now)
	if err != nil {
		return err
	}
	if !usage.Allowed {
		return ErrLimitExceeded
	}
	return logActivity(ctx, tx, userID, action, details, RequestMeta{})
}

// Dashboard is the caller's home page summary.
type Dashboard struct {
	User           *models.User          `json:"user"`
	Usage          []Usage               `json:"usage"`
	TotalOrders    int64                 `json:"total_orders"`
	AccountAgeDays int                   `json:"account_age_days"`
	Recent         []models.UserActivity `json:"recent_activity"`
}

// Dashboard summarizes the caller's usage, orders and recent activity.
func (s *Accounts) Dashboard(ctx context.Context, p policy.Principal) (*Dashboard, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	now := s.now()
	d := &Dashboard{}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		u, err := tx.Users().Get(ctx, p.UserID)
		if err != nil {
			return err
		}
		d.User = u
		d.AccountAgeDays = int(now.Sub(u.CreatedAt).Hours() / 24)

		for _, action := range LimitedActions {
			usage, err := usageOf(ctx, tx, p.UserID, action, now)
			if err != nil {
				return err
			}
			d.Usage = append(d.Usage, usage)
		}
		if d.TotalOrders, err = tx.Orders().Count(ctx, p.UserID); err != nil {
			return err
		}
		d.Recent, err = tx.Activity().ListForUser(ctx, p.UserID, 10)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
