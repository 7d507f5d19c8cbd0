package models

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/marshallshelly/procuredb/pkg/migration"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAll(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"custom_branding", "feedback", "order_items", "orders", "password_resets",
		"product_suggestions", "search_logs", "social_trends", "user_activity", "users",
	}, reg.Names())

	tables, err := reg.Ordered()
	require.NoError(t, err)
	pos := map[string]int{}
	for i, tbl := range tables {
		pos[tbl.Name] = i
	}
	for _, tbl := range tables {
		for _, ref := range tbl.References() {
			assert.Less(t, pos[ref], pos[tbl.Name], "%s must follow %s", tbl.Name, ref)
		}
	}
}

func TestSchemaShape(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	users, err := reg.GetByName("users")
	require.NoError(t, err)
	require.Len(t, users.Columns, 11)

	tier, _ := users.Column("subscription_tier")
	assert.Equal(t, "varchar(20)", tier.SQLType)
	assert.Equal(t, "'basic'", *tier.Default)
	assert.False(t, tier.Nullable)

	lastLogin, _ := users.Column("last_login")
	assert.True(t, lastLogin.Nullable)

	checks := map[string]string{}
	for _, name := range reg.Names() {
		tbl, _ := reg.GetByName(name)
		for _, c := range tbl.Constraints {
			checks[c.Name] = c.Expression
		}
	}
	assert.Equal(t, map[string]string{
		"users_subscription_tier_check":    "subscription_tier IN ('basic', 'premium', 'enterprise')",
		"users_subscription_status_check":  "subscription_status IN ('active', 'inactive', 'suspended')",
		"feedback_rating_check":            "rating >= 1 AND rating <= 5",
		"feedback_status_check":            "status IN ('open', 'in_progress', 'resolved', 'flagged')",
		"orders_status_check":              "status IN ('draft', 'pending', 'confirmed', 'shipped', 'delivered', 'cancelled')",
		"order_items_quantity_check":       "quantity > 0",
		"product_suggestions_rating_check": "rating >= 1 AND rating <= 5",
	}, checks)

	owned := []string{"user_activity", "password_resets", "feedback", "search_logs", "orders", "product_suggestions", "custom_branding"}
	for _, name := range owned {
		tbl, err := reg.GetByName(name)
		require.NoError(t, err)
		require.Len(t, tbl.ForeignKeys, 1, name)
		fk := tbl.ForeignKeys[0]
		assert.Equal(t, "users", fk.ReferencedTable, name)
		assert.Equal(t, schema.Cascade, fk.OnDelete, name)
		col, _ := tbl.Column("user_id")
		assert.False(t, col.Nullable, name)
	}

	items, _ := reg.GetByName("order_items")
	assert.Equal(t, "orders", items.ForeignKeys[0].ReferencedTable)

	trends, _ := reg.GetByName("social_trends")
	assert.Empty(t, trends.ForeignKeys)
	var composite bool
	for _, idx := range trends.Indexes {
		if strings.Join(idx.Columns, ",") == "platform,keyword" {
			composite = true
		}
	}
	assert.True(t, composite, "expected (platform, keyword) index")
	tags, _ := trends.Column("industry_tags")
	assert.Equal(t, "text[]", tags.SQLType)
}

func TestValidateRows(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	feedback, _ := reg.GetByName("feedback")
	users, _ := reg.GetByName("users")

	rating := func(n int) *int { return &n }
	for _, tc := range []struct {
		name  string
		table *schema.TableMetadata
		row   any
		ok    bool
	}{
		{"rating 1", feedback, Feedback{UserID: uuid.New(), FeedbackText: "ok", Rating: rating(1)}, true},
		{"rating 5", feedback, Feedback{UserID: uuid.New(), FeedbackText: "ok", Rating: rating(5)}, true},
		{"rating null", feedback, Feedback{UserID: uuid.New(), FeedbackText: "ok"}, true},
		{"rating 0", feedback, Feedback{UserID: uuid.New(), FeedbackText: "ok", Rating: rating(0)}, false},
		{"rating 6", feedback, Feedback{UserID: uuid.New(), FeedbackText: "ok", Rating: rating(6)}, false},
		{"bad status", feedback, Feedback{UserID: uuid.New(), FeedbackText: "ok", Status: "closed"}, false},
		{"default tier", users, User{Username: "alice", Email: "a@x"}, true},
		{"bad tier", users, User{Username: "alice", Email: "a@x", SubscriptionTier: "gold"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.table.Validate(tc.row)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				var verr *schema.ValidationError
				assert.ErrorAs(t, err, &verr)
			}
		})
	}
}

func TestPolicies(t *testing.T) {
	set, err := Policies()
	require.NoError(t, err)
	assert.Len(t, set.Tables(), 10)

	alice := policy.Principal{UserID: uuid.New()}
	bob := policy.Principal{UserID: uuid.New()}
	admin := policy.Principal{UserID: uuid.New(), Admin: true}

	for _, table := range []string{"feedback", "search_logs", "orders", "product_suggestions", "custom_branding", "order_items"} {
		for _, op := range policy.Operations {
			assert.True(t, set.Evaluate(alice, table, op, policy.Target{OwnerID: alice.UserID}).Allowed, "%s %s", table, op)
			assert.False(t, set.Evaluate(bob, table, op, policy.Target{OwnerID: alice.UserID}).Allowed, "%s %s", table, op)
			assert.True(t, set.Evaluate(admin, table, op, policy.Target{OwnerID: alice.UserID}).Allowed, "%s %s", table, op)
		}
	}

	assert.True(t, set.Evaluate(bob, "user_activity", policy.Insert, policy.Target{OwnerID: alice.UserID}).Allowed)
	assert.False(t, set.Evaluate(alice, "password_resets", policy.Insert, policy.Target{OwnerID: alice.UserID}).Allowed)
	assert.True(t, set.Evaluate(alice, "password_resets", policy.Select, policy.Target{OwnerID: alice.UserID}).Allowed)
	assert.False(t, set.Evaluate(alice, "social_trends", policy.Select, policy.Target{}).Allowed)
	assert.False(t, set.Evaluate(alice, "users", policy.Update,
		policy.Target{OwnerID: alice.UserID, Changed: []string{"subscription_status"}}).Allowed)
}

func TestBlueprint(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	set, err := Policies()
	require.NoError(t, err)

	bp, err := Blueprint(reg, set)
	require.NoError(t, err)
	assert.Equal(t, "procure_app", bp.Role)
	assert.Len(t, bp.Tables, 10)
	for _, tbl := range bp.Tables {
		assert.True(t, tbl.RowSecurity, tbl.Name)
	}

	up, down, err := migration.NewPlanner().GenerateMigration(bp)
	require.NoError(t, err)

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS users (",
		"subscription_tier varchar(20) NOT NULL DEFAULT 'basic'",
		"CONSTRAINT fk_order_items_order_id_orders FOREIGN KEY (order_id) REFERENCES orders (id) ON DELETE CASCADE",
		"CREATE INDEX IF NOT EXISTS idx_social_trends_platform_keyword ON social_trends (platform, keyword);",
		"ALTER TABLE social_trends ENABLE ROW LEVEL SECURITY;",
		"CREATE POLICY social_trends_admin_only ON social_trends\n    FOR ALL",
		"CREATE POLICY user_activity_insert_any ON user_activity\n    FOR INSERT\n    TO \"procure_app\"\n    WITH CHECK (true);",
		"CREATE TRIGGER users_admin_columns_guard\n    BEFORE INSERT OR UPDATE ON users",
		"NEW.is_admin IS DISTINCT FROM (false) OR NEW.subscription_tier IS DISTINCT FROM ('basic') OR NEW.subscription_status IS DISTINCT FROM ('active')",
	} {
		assert.Contains(t, up, want)
	}
	assert.True(t, strings.HasPrefix(down, `DROP TABLE IF EXISTS "`))
	assert.Contains(t, down, "DROP FUNCTION IF EXISTS app_is_admin();")

	for _, stmt := range migration.SplitStatements(up) {
		assert.NotEmpty(t, strings.TrimSpace(stmt))
	}
}
