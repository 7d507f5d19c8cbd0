package service

import "github.com/marshallshelly/procuredb/internal/models"

// Activity action types.
const (
	ActionLogin           = "login"
	ActionRegister        = "register"
	ActionPasswordReset   = "password_reset"
	ActionSearch          = "search"
	ActionAISuggestion    = "ai_suggestion"
	ActionImageGeneration = "image_generation"
	ActionQuote           = "quote"
	ActionOrder           = "order"
	ActionBranding        = "branding"
	ActionFeedback        = "feedback"
)

// Unlimited marks an action without a daily cap.
const Unlimited = -1

// Limits are the daily allowances of one tier, keyed by action type.
type Limits map[string]int

// TierLimits holds the daily allowance per tier.
var TierLimits = map[string]Limits{
	models.TierBasic: {
		ActionSearch:          10,
		ActionAISuggestion:    5,
		ActionImageGeneration: 3,
		ActionQuote:           5,
	},
	models.TierPremium: {
		ActionSearch:          100,
		ActionAISuggestion:    50,
		ActionImageGeneration: 25,
		ActionQuote:           50,
	},
	models.TierEnterprise: {
		ActionSearch:          Unlimited,
		ActionAISuggestion:    Unlimited,
		ActionImageGeneration: Unlimited,
		ActionQuote:           Unlimited,
	},
}

// LimitedActions lists the capped actions in display order.
var LimitedActions = []string{ActionSearch, ActionAISuggestion, ActionImageGeneration, ActionQuote}

// LimitFor returns the daily cap of action for tier. Unknown tiers fall
// back to basic.
func LimitFor(tier, action string) (int, error) {
	limits, ok := TierLimits[tier]
	if !ok {
		limits = TierLimits[models.TierBasic]
	}
	n, ok := limits[action]
	if !ok {
		return 0, ErrUnknownAction
	}
	return n, nil
}

// TierPrices is the monthly price per tier in USD.
var TierPrices = map[string]float64{
	models.TierBasic:      29.99,
	models.TierPremium:    99.99,
	models.TierEnterprise: 299.99,
}

// Usage is a user's consumption of one action today.
type Usage struct {
	Action  string `json:"action"`
	Used    int64  `json:"used"`
	Limit   int    `json:"limit"`
	Allowed bool   `json:"allowed"`
}

func newUsage(action string, used int64, limit int) Usage {
	return Usage{
		Action:  action,
		Used:    used,
		Limit:   limit,
		Allowed: limit == Unlimited || used < int64(limit),
	}
}
