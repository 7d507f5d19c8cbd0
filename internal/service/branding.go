package service

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/storage"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Branding manages custom brand configurations. A user has at most one
// active configuration.
type Branding struct {
	store    *store.Store
	uploader storage.Uploader
	log      *zap.Logger
}

// NewBranding creates the branding service. uploader may be nil, in which
// case logo uploads fail with ErrStorageDisabled.
func NewBranding(st *store.Store, uploader storage.Uploader, log *zap.Logger) *Branding {
	return &Branding{store: st, uploader: uploader, log: log.Named("branding")}
}

// BrandingInput is a new brand configuration.
type BrandingInput struct {
	BrandName       string  `json:"brand_name"`
	PrimaryColor    *string `json:"primary_color,omitempty"`
	SecondaryColor  *string `json:"secondary_color,omitempty"`
	FontFamily      *string `json:"font_family,omitempty"`
	BrandGuidelines *string `json:"brand_guidelines,omitempty"`
	LogoURL         *string `json:"logo_url,omitempty"`
}

func (in BrandingInput) validate() error {
	if strings.TrimSpace(in.BrandName) == "" {
		return invalid("brand_name", "is required")
	}
	for field, c := range map[string]*string{"primary_color": in.PrimaryColor, "secondary_color": in.SecondaryColor} {
		if c != nil && !hexColor.MatchString(*c) {
			return invalid(field, "must be a #RRGGBB color")
		}
	}
	return nil
}

// Logo is an uploaded logo file.
type Logo struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Save uploads the logo, if any, deactivates the caller's current
// configuration and stores the new one as active.
func (s *Branding) Save(ctx context.Context, p policy.Principal, in BrandingInput, logo *Logo) (*models.CustomBranding, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	logoURL := in.LogoURL
	if logo != nil {
		if s.uploader == nil {
			return nil, ErrStorageDisabled
		}
		key := fmt.Sprintf("logos/%s/%s%s", p.UserID, uuid.NewString(), strings.ToLower(path.Ext(logo.Filename)))
		url, err := s.uploader.Upload(ctx, key, logo.ContentType, logo.Data)
		if err != nil {
			return nil, err
		}
		logoURL = &url
	}

	b := &models.CustomBranding{
		UserID:          p.UserID,
		BrandName:       in.BrandName,
		LogoURL:         logoURL,
		PrimaryColor:    in.PrimaryColor,
		SecondaryColor:  in.SecondaryColor,
		FontFamily:      in.FontFamily,
		BrandGuidelines: in.BrandGuidelines,
		IsActive:        true,
	}
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		n, err := tx.Branding().Deactivate(ctx, p.UserID)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Debug("deactivated branding", zap.Stringer("user_id", p.UserID), zap.Int("count", n))
		}
		if err := tx.Branding().Create(ctx, b); err != nil {
			return err
		}
		return logActivity(ctx, tx, p.UserID, ActionBranding, map[string]any{"brand_name": b.BrandName}, RequestMeta{})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Active returns the caller's active configuration.
func (s *Branding) Active(ctx context.Context, p policy.Principal) (*models.CustomBranding, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var out *models.CustomBranding
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Branding().Active(ctx, p.UserID)
		return err
	})
	return out, err
}

// List returns every configuration of the caller.
func (s *Branding) List(ctx context.Context, p policy.Principal) ([]models.CustomBranding, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	var out []models.CustomBranding
	err := s.store.Do(ctx, p, func(tx *store.Tx) error {
		var err error
		out, err = tx.Branding().List(ctx, p.UserID)
		return err
	})
	return out, err
}
