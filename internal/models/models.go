// Package models declares the procurement schema as tagged Go structs.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// Subscription tiers.
const (
	TierBasic      = "basic"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Order statuses.
const (
	OrderDraft     = "draft"
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Feedback statuses.
const (
	FeedbackOpen       = "open"
	FeedbackInProgress = "in_progress"
	FeedbackResolved   = "resolved"
	FeedbackFlagged    = "flagged"
)

// table_name: users
type User struct {
	ID                 uuid.UUID    `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	Username           string       `po:"username,varchar(50),unique,notNull" json:"username"`
	Email              string       `po:"email,varchar(255),unique,notNull" json:"email"`
	PasswordHash       string       `po:"password_hash,text,notNull" json:"-"`
	SubscriptionTier   string       `po:"subscription_tier,varchar(20),notNull,default('basic'),oneOf(basic|premium|enterprise)" json:"subscription_tier"`
	SubscriptionStatus string       `po:"subscription_status,varchar(20),notNull,default('active'),oneOf(active|inactive|suspended)" json:"subscription_status"`
	IsAdmin            bool         `po:"is_admin,boolean,notNull,default(false)" json:"is_admin"`
	ProfileData        schema.JSONB `po:"profile_data,jsonb,notNull,default('{}')" json:"profile_data"`
	CreatedAt          time.Time    `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
	UpdatedAt          time.Time    `po:"updated_at,timestamptz,notNull,default(now())" json:"updated_at"`
	LastLogin          *time.Time   `po:"last_login,timestamptz" json:"last_login,omitempty"`
}

func (User) TableName() string { return "users" }

// table_name: user_activity
type UserActivity struct {
	ID         uuid.UUID    `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID     uuid.UUID    `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	ActionType string       `po:"action_type,varchar(50),notNull,index" json:"action_type"`
	Details    schema.JSONB `po:"details,jsonb,notNull,default('{}')" json:"details"`
	IPAddress  *string      `po:"ip_address,varchar(45)" json:"ip_address,omitempty"`
	UserAgent  *string      `po:"user_agent,text" json:"user_agent,omitempty"`
	CreatedAt  time.Time    `po:"created_at,timestamptz,notNull,default(now()),index" json:"created_at"`
}

func (UserActivity) TableName() string { return "user_activity" }

// table_name: password_resets
type PasswordReset struct {
	ID         uuid.UUID `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID     uuid.UUID `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	ResetToken string    `po:"reset_token,varchar(255),unique,notNull" json:"-"`
	ExpiresAt  time.Time `po:"expires_at,timestamptz,notNull" json:"expires_at"`
	Used       bool      `po:"used,boolean,notNull,default(false)" json:"used"`
	CreatedAt  time.Time `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
}

func (PasswordReset) TableName() string { return "password_resets" }

// table_name: feedback
type Feedback struct {
	ID            uuid.UUID `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID        uuid.UUID `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	FeedbackText  string    `po:"feedback_text,text,notNull" json:"feedback_text"`
	Rating        *int      `po:"rating,integer,range(1|5)" json:"rating,omitempty"`
	Category      string    `po:"category,varchar(50),notNull,default('general')" json:"category"`
	Status        string    `po:"status,varchar(20),notNull,default('open'),index,oneOf(open|in_progress|resolved|flagged)" json:"status"`
	AdminResponse *string   `po:"admin_response,text" json:"admin_response,omitempty"`
	CreatedAt     time.Time `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
	UpdatedAt     time.Time `po:"updated_at,timestamptz,notNull,default(now())" json:"updated_at"`
}

func (Feedback) TableName() string { return "feedback" }

// table_name: search_logs
type SearchLog struct {
	ID             uuid.UUID    `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID         uuid.UUID    `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	SearchQuery    string       `po:"search_query,text,notNull" json:"search_query"`
	SearchType     *string      `po:"search_type,varchar(50)" json:"search_type,omitempty"`
	ResultsCount   int          `po:"results_count,integer,notNull,default(0)" json:"results_count"`
	FiltersApplied schema.JSONB `po:"filters_applied,jsonb,notNull,default('{}')" json:"filters_applied"`
	CreatedAt      time.Time    `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
}

func (SearchLog) TableName() string { return "search_logs" }

// table_name: orders
type Order struct {
	ID              uuid.UUID     `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID          uuid.UUID     `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	OrderNumber     string        `po:"order_number,varchar(50),unique,notNull" json:"order_number"`
	Status          string        `po:"status,varchar(20),notNull,default('draft'),index,oneOf(draft|pending|confirmed|shipped|delivered|cancelled)" json:"status"`
	TotalAmount     float64       `po:"total_amount,numeric(12,2),notNull,default(0)" json:"total_amount"`
	Currency        string        `po:"currency,varchar(3),notNull,default('USD')" json:"currency"`
	ShippingAddress *schema.JSONB `po:"shipping_address,jsonb" json:"shipping_address,omitempty"`
	BillingAddress  *schema.JSONB `po:"billing_address,jsonb" json:"billing_address,omitempty"`
	Notes           *string       `po:"notes,text" json:"notes,omitempty"`
	CreatedAt       time.Time     `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
	UpdatedAt       time.Time     `po:"updated_at,timestamptz,notNull,default(now())" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// table_name: order_items
type OrderItem struct {
	ID                 uuid.UUID    `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	OrderID            uuid.UUID    `po:"order_id,uuid,notNull,index,references(orders.id),onDelete(cascade)" json:"order_id"`
	ProductName        string       `po:"product_name,varchar(255),notNull" json:"product_name"`
	ProductDescription *string      `po:"product_description,text" json:"product_description,omitempty"`
	Quantity           int          `po:"quantity,integer,notNull,default(1),check(quantity > 0)" json:"quantity"`
	UnitPrice          float64      `po:"unit_price,numeric(12,2),notNull" json:"unit_price"`
	TotalPrice         float64      `po:"total_price,numeric(12,2),notNull" json:"total_price"`
	ProductData        schema.JSONB `po:"product_data,jsonb,notNull,default('{}')" json:"product_data"`
	CreatedAt          time.Time    `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
}

func (OrderItem) TableName() string { return "order_items" }

// table_name: product_suggestions
type ProductSuggestion struct {
	ID              uuid.UUID    `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID          uuid.UUID    `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	IndustrySegment string       `po:"industry_segment,varchar(100),notNull" json:"industry_segment"`
	Prompt          string       `po:"prompt,text,notNull" json:"prompt"`
	SuggestionData  schema.JSONB `po:"suggestion_data,jsonb,notNull" json:"suggestion_data"`
	ImageURL        *string      `po:"image_url,text" json:"image_url,omitempty"`
	BrandingApplied bool         `po:"branding_applied,boolean,notNull,default(false)" json:"branding_applied"`
	Rating          *int         `po:"rating,integer,range(1|5)" json:"rating,omitempty"`
	CreatedAt       time.Time    `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
}

func (ProductSuggestion) TableName() string { return "product_suggestions" }

// table_name: custom_branding
type CustomBranding struct {
	ID              uuid.UUID `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	UserID          uuid.UUID `po:"user_id,uuid,notNull,index,references(users.id),onDelete(cascade)" json:"user_id"`
	BrandName       string    `po:"brand_name,varchar(255),notNull" json:"brand_name"`
	LogoURL         *string   `po:"logo_url,text" json:"logo_url,omitempty"`
	PrimaryColor    *string   `po:"primary_color,varchar(7)" json:"primary_color,omitempty"`
	SecondaryColor  *string   `po:"secondary_color,varchar(7)" json:"secondary_color,omitempty"`
	FontFamily      *string   `po:"font_family,varchar(100)" json:"font_family,omitempty"`
	BrandGuidelines *string   `po:"brand_guidelines,text" json:"brand_guidelines,omitempty"`
	IsActive        bool      `po:"is_active,boolean,notNull,default(true)" json:"is_active"`
	CreatedAt       time.Time `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
	UpdatedAt       time.Time `po:"updated_at,timestamptz,notNull,default(now())" json:"updated_at"`
}

func (CustomBranding) TableName() string { return "custom_branding" }

// table_name: social_trends
type SocialTrend struct {
	ID             uuid.UUID    `po:"id,uuid,primaryKey,default(gen_random_uuid())" json:"id"`
	Platform       string       `po:"platform,varchar(50),notNull" json:"platform"`
	Keyword        string       `po:"keyword,varchar(255),notNull" json:"keyword"`
	TrendData      schema.JSONB `po:"trend_data,jsonb,notNull,default('{}')" json:"trend_data"`
	RelevanceScore *float64     `po:"relevance_score,numeric(5,2)" json:"relevance_score,omitempty"`
	IndustryTags   []string     `po:"industry_tags,text[]" json:"industry_tags,omitempty"`
	ScrapedAt      time.Time    `po:"scraped_at,timestamptz,notNull,default(now())" json:"scraped_at"`
	CreatedAt      time.Time    `po:"created_at,timestamptz,notNull,default(now())" json:"created_at"`
}

func (SocialTrend) TableName() string { return "social_trends" }

func (SocialTrend) TableIndexes() []schema.IndexMetadata {
	return []schema.IndexMetadata{{
		Name:    "idx_social_trends_platform_keyword",
		Columns: []string{"platform", "keyword"},
	}}
}
