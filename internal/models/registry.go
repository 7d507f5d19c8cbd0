package models

import (
	"fmt"

	"github.com/marshallshelly/procuredb/pkg/migration"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/registry"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// All lists one value of every model, parents before children.
func All() []any {
	return []any{
		User{},
		UserActivity{},
		PasswordReset{},
		Feedback{},
		SearchLog{},
		Order{},
		OrderItem{},
		ProductSuggestion{},
		CustomBranding{},
		SocialTrend{},
	}
}

// RegisterAll registers every model with reg.
func RegisterAll(reg *registry.Registry) error {
	return reg.Register(All()...)
}

// NewRegistry returns a registry holding every model.
func NewRegistry() (*registry.Registry, error) {
	reg := registry.NewRegistry()
	if err := RegisterAll(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func ownerOrAdmin(table, column string, ops ...policy.Operation) policy.Rule {
	name := table + "_owner_or_admin"
	if len(ops) == 1 {
		name = table + "_owner_or_admin_" + string(ops[0])
	}
	return policy.Rule{Name: name, Kind: policy.OwnerOrAdmin, OwnerColumn: column, Operations: ops}
}

// Policies returns the row level rules of the procurement schema.
func Policies() (*policy.Set, error) {
	owned := func(table string) policy.TablePolicy {
		return policy.TablePolicy{Table: table, Rules: []policy.Rule{ownerOrAdmin(table, "user_id")}}
	}
	return policy.NewSet(policy.DefaultConfig,
		policy.TablePolicy{
			Table:        "users",
			Rules:        []policy.Rule{ownerOrAdmin("users", "id")},
			AdminColumns: []string{"is_admin", "subscription_tier", "subscription_status"},
		},
		policy.TablePolicy{
			Table: "user_activity",
			Rules: []policy.Rule{
				ownerOrAdmin("user_activity", "user_id", policy.Select),
				{Name: "user_activity_insert_any", Kind: policy.AllowAll, Operations: []policy.Operation{policy.Insert}},
			},
		},
		policy.TablePolicy{
			Table: "password_resets",
			Rules: []policy.Rule{ownerOrAdmin("password_resets", "user_id", policy.Select)},
		},
		owned("feedback"),
		owned("search_logs"),
		owned("orders"),
		policy.TablePolicy{
			Table: "order_items",
			Rules: []policy.Rule{{
				Name: "order_items_owner_or_admin",
				Kind: policy.OwnerOrAdmin,
				Parent: &policy.Parent{
					Table: "orders", ForeignKey: "order_id", Key: "id", OwnerColumn: "user_id",
				},
			}},
		},
		owned("product_suggestions"),
		owned("custom_branding"),
		policy.TablePolicy{
			Table: "social_trends",
			Rules: []policy.Rule{{Name: "social_trends_admin_only", Kind: policy.AdminOnly}},
		},
	)
}

// Blueprint assembles the full migration input: the registered tables in
// dependency order with row security and policies attached, the helper
// functions, and the application role.
func Blueprint(reg *registry.Registry, set *policy.Set) (*migration.Blueprint, error) {
	tables, err := reg.Ordered()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*schema.TableMetadata, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}
	if err := set.Apply(byName); err != nil {
		return nil, fmt.Errorf("apply policies: %w", err)
	}
	return &migration.Blueprint{
		Tables:    tables,
		Functions: set.Functions(byName),
		Role:      set.Config().Role,
	}, nil
}
