//go:build integration

package procuredb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/migration"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("procuredb"),
		postgres.WithUsername("owner"),
		postgres.WithPassword("owner"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := runtime.ConnectWithURL(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func schemaMigration(t *testing.T) migration.Migration {
	t.Helper()
	reg, err := models.NewRegistry()
	require.NoError(t, err)
	set, err := models.Policies()
	require.NoError(t, err)
	bp, err := models.Blueprint(reg, set)
	require.NoError(t, err)
	up, down, err := migration.NewPlanner().GenerateMigration(bp)
	require.NoError(t, err)
	return migration.Migration{
		Version: migration.GenerateVersion(),
		Name:    "create_procurement_schema",
		UpSQL:   up,
		DownSQL: down,
	}
}

// setupTestDB starts PostgreSQL and applies the generated schema migration.
// The returned pool connects as the (superuser) owner.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool := startPostgres(t)
	executor := migration.NewExecutor(pool)
	require.NoError(t, executor.Initialize(ctx))
	require.NoError(t, executor.Apply(ctx, schemaMigration(t), false))
	return pool
}

func tableCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM pg_tables WHERE schemaname = 'public' AND tablename <> 'schema_migrations'`).Scan(&n))
	return n
}

func TestMigrationRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t)
	m := schemaMigration(t)

	// Session advisory locks belong to a connection, so pin one.
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	executor := migration.NewExecutor(conn.Conn())
	require.NoError(t, executor.Initialize(ctx))
	require.NoError(t, executor.Lock(ctx))

	require.NoError(t, executor.Apply(ctx, m, false))
	assert.Equal(t, 10, tableCount(t, pool))

	var rls bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT relrowsecurity FROM pg_class WHERE relname = 'social_trends'`).Scan(&rls))
	assert.True(t, rls)

	status, err := executor.GetStatus(ctx, []migration.Migration{m})
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, migration.StatusApplied, status[0].Status)

	require.NoError(t, executor.Rollback(ctx, m, false))
	assert.Zero(t, tableCount(t, pool))

	// The down migration leaves nothing behind that blocks a second apply.
	require.NoError(t, executor.Apply(ctx, m, false))
	assert.Equal(t, 10, tableCount(t, pool))
	require.NoError(t, executor.Unlock(ctx))
}

func newStore(t *testing.T, pool *pgxpool.Pool) *store.Store {
	t.Helper()
	reg, err := models.NewRegistry()
	require.NoError(t, err)
	set, err := models.Policies()
	require.NoError(t, err)
	return store.New(pool, reg, set)
}

func createUser(t *testing.T, st *store.Store, username string, admin bool) *models.User {
	t.Helper()
	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$04$placeholder",
		IsAdmin:      admin,
	}
	require.NoError(t, st.Do(context.Background(), policy.SystemPrincipal(), func(tx *store.Tx) error {
		return tx.Users().Create(context.Background(), u)
	}))
	return u
}

func createOrder(t *testing.T, st *store.Store, owner *models.User, number string) *models.Order {
	t.Helper()
	o := &models.Order{UserID: owner.ID, OrderNumber: number, TotalAmount: 10}
	items := []models.OrderItem{{ProductName: "Widget", Quantity: 2, UnitPrice: 5, TotalPrice: 10}}
	require.NoError(t, st.Do(context.Background(), policy.Principal{UserID: owner.ID}, func(tx *store.Tx) error {
		return tx.Orders().Create(context.Background(), o, items)
	}))
	return o
}

// rawCount counts rows of table in a session scoped exactly like the store
// scopes it, without the in-process filter, so only row security applies.
func rawCount(t *testing.T, pool *pgxpool.Pool, p policy.Principal, table string) int {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `SET LOCAL ROLE "procure_app"`)
	require.NoError(t, err)
	id := ""
	if p.Authenticated() {
		id = p.UserID.String()
	}
	_, err = tx.Exec(ctx, `SELECT set_config('app.user_id', $1, true)`, id)
	require.NoError(t, err)

	var n int
	require.NoError(t, tx.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// rawExec runs sql in an app scoped session as userID.
func rawExec(pool *pgxpool.Pool, userID uuid.UUID, sql string, args ...any) error {
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `SET LOCAL ROLE "procure_app"`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.user_id', $1, true)`, userID.String()); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func TestIntegration(t *testing.T) {
	pool := setupTestDB(t)
	st := newStore(t, pool)
	ctx := context.Background()

	alice := createUser(t, st, "alice", false)
	bob := createUser(t, st, "bob", false)
	admin := createUser(t, st, "admin", true)
	asAlice := policy.Principal{UserID: alice.ID}
	asBob := policy.Principal{UserID: bob.ID}
	asAdmin := policy.Principal{UserID: admin.ID, Admin: true}

	t.Run("new user gets defaults", func(t *testing.T) {
		assert.Equal(t, models.StatusActive, alice.SubscriptionStatus)
		assert.Equal(t, models.TierBasic, alice.SubscriptionTier)
		assert.False(t, alice.IsAdmin)
		assert.NotEqual(t, uuid.Nil, alice.ID)
	})

	t.Run("premium user keeps the other defaults", func(t *testing.T) {
		u := &models.User{Username: "alice_premium", Email: "alice.premium@example.com", PasswordHash: "x", SubscriptionTier: models.TierPremium}
		require.NoError(t, st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
			return tx.Users().Create(ctx, u)
		}))
		assert.Equal(t, models.StatusActive, u.SubscriptionStatus)
		assert.False(t, u.IsAdmin)
		assert.Equal(t, models.TierPremium, u.SubscriptionTier)
	})

	t.Run("duplicate email is a unique violation", func(t *testing.T) {
		err := st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
			return tx.Users().Create(ctx, &models.User{Username: "alice2", Email: alice.Email, PasswordHash: "x"})
		})
		assert.True(t, runtime.IsConstraint(err, runtime.Unique), "got %v", err)
	})

	t.Run("tier outside the enumeration fails", func(t *testing.T) {
		err := st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
			return tx.Users().Create(ctx, &models.User{Username: "carol", Email: "carol@example.com", PasswordHash: "x", SubscriptionTier: "gold"})
		})
		var ve *schema.ValidationError
		assert.ErrorAs(t, err, &ve)

		_, err = pool.Exec(ctx,
			`INSERT INTO users (username, email, password_hash, subscription_tier) VALUES ('carol', 'carol@example.com', 'x', 'gold')`)
		assert.Equal(t, "23514", sqlState(err))
		assert.True(t, runtime.IsConstraint(runtime.Classify(err), runtime.Check))
	})

	t.Run("rating bounds", func(t *testing.T) {
		for _, rating := range []int{0, 6} {
			_, err := pool.Exec(ctx,
				`INSERT INTO feedback (user_id, feedback_text, rating) VALUES ($1, 'x', $2)`, alice.ID, rating)
			assert.Equal(t, "23514", sqlState(err), "rating %d", rating)
		}
		for _, rating := range []*int{nil, ptr(1), ptr(5)} {
			err := st.Do(ctx, asAlice, func(tx *store.Tx) error {
				return tx.Feedback().Create(ctx, &models.Feedback{UserID: alice.ID, FeedbackText: "ok", Rating: rating})
			})
			assert.NoError(t, err)
		}
	})

	aliceOrder := createOrder(t, st, alice, "PO-20240101-ALICE1")
	createOrder(t, st, bob, "PO-20240101-BOB001")

	t.Run("owners see only their orders", func(t *testing.T) {
		assert.Equal(t, 1, rawCount(t, pool, asAlice, "orders"))
		assert.Equal(t, 1, rawCount(t, pool, asAlice, "order_items"))
		assert.Equal(t, 0, rawCount(t, pool, policy.Anonymous, "orders"))

		err := st.Do(ctx, asBob, func(tx *store.Tx) error {
			orders, err := tx.Orders().List(ctx, uuid.Nil, 100)
			require.NoError(t, err)
			require.Len(t, orders, 1)
			assert.Equal(t, bob.ID, orders[0].UserID)

			_, err = tx.Orders().Get(ctx, aliceOrder.ID)
			assert.ErrorIs(t, err, runtime.ErrNotFound)
			return nil
		})
		require.NoError(t, err)

		err = rawExec(pool, bob.ID, `UPDATE orders SET status = 'cancelled' WHERE id = $1`, aliceOrder.ID)
		require.NoError(t, err)
		var status string
		require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, aliceOrder.ID).Scan(&status))
		assert.Equal(t, models.OrderDraft, status, "hidden rows are not updated")
	})

	t.Run("admin sees every row", func(t *testing.T) {
		assert.Equal(t, 2, rawCount(t, pool, asAdmin, "orders"))
		assert.Equal(t, 2, rawCount(t, pool, asAdmin, "order_items"))
		assert.Equal(t, 3, rawCount(t, pool, asAdmin, "users"))
		assert.Equal(t, 3, rawCount(t, pool, asAdmin, "feedback"))
	})

	t.Run("social trends are admin only", func(t *testing.T) {
		require.NoError(t, st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
			return tx.Trends().Create(ctx, &models.SocialTrend{Platform: "tiktok", Keyword: "eco packaging"})
		}))

		assert.Equal(t, 0, rawCount(t, pool, asAlice, "social_trends"))
		assert.Equal(t, 1, rawCount(t, pool, asAdmin, "social_trends"))

		err := rawExec(pool, alice.ID, `INSERT INTO social_trends (platform, keyword) VALUES ('x', 'y')`)
		assert.Equal(t, "42501", sqlState(err))
		assert.ErrorIs(t, runtime.Classify(err), runtime.ErrAccessDenied)

		err = st.Do(ctx, asAlice, func(tx *store.Tx) error {
			return tx.Trends().Create(ctx, &models.SocialTrend{Platform: "x", Keyword: "y"})
		})
		assert.ErrorIs(t, err, runtime.ErrAccessDenied)
	})

	t.Run("users cannot promote themselves", func(t *testing.T) {
		err := rawExec(pool, alice.ID, `UPDATE users SET is_admin = true WHERE id = $1`, alice.ID)
		assert.Equal(t, "42501", sqlState(err))

		err = rawExec(pool, alice.ID, `UPDATE users SET profile_data = '{"industry":"retail"}' WHERE id = $1`, alice.ID)
		assert.NoError(t, err)
	})

	t.Run("users cannot sign up with admin columns", func(t *testing.T) {
		eve := uuid.New()
		err := rawExec(pool, eve,
			`INSERT INTO users (id, username, email, password_hash, is_admin) VALUES ($1, 'eve', 'eve@example.com', 'x', true)`, eve)
		assert.Equal(t, "42501", sqlState(err))

		err = rawExec(pool, eve,
			`INSERT INTO users (id, username, email, password_hash, subscription_tier) VALUES ($1, 'eve', 'eve@example.com', 'x', 'enterprise')`, eve)
		assert.Equal(t, "42501", sqlState(err))

		err = rawExec(pool, eve,
			`INSERT INTO users (id, username, email, password_hash) VALUES ($1, 'eve', 'eve@example.com', 'x')`, eve)
		assert.NoError(t, err)

		mallory := uuid.New()
		err = st.Do(ctx, policy.Principal{UserID: mallory}, func(tx *store.Tx) error {
			return tx.Users().Create(ctx, &models.User{ID: mallory, Username: "mallory", Email: "mallory@example.com", PasswordHash: "x", IsAdmin: true})
		})
		assert.ErrorIs(t, err, runtime.ErrAccessDenied)
	})

	t.Run("suspended users no longer resolve", func(t *testing.T) {
		frank := createUser(t, st, "frank", false)
		resolver := policy.NewResolver(store.NewAdminLookup(pool, policy.DefaultConfig))

		p, err := resolver.Resolve(ctx, frank.ID)
		require.NoError(t, err)
		assert.Equal(t, frank.ID, p.UserID)

		require.NoError(t, st.Do(ctx, asAdmin, func(tx *store.Tx) error {
			_, err := tx.Users().Update(ctx, frank.ID, map[string]any{"subscription_status": models.StatusSuspended})
			return err
		}))
		_, err = resolver.Resolve(ctx, frank.ID)
		assert.ErrorIs(t, err, policy.ErrPrincipalDisabled)

		_, err = resolver.Resolve(ctx, uuid.New())
		assert.ErrorIs(t, err, policy.ErrPrincipalDisabled)
	})

	t.Run("deleting a user cascades", func(t *testing.T) {
		dave := createUser(t, st, "dave", false)
		asDave := policy.Principal{UserID: dave.ID}
		daveOrder := createOrder(t, st, dave, "PO-20240101-DAVE01")
		require.NoError(t, st.Do(ctx, asDave, func(tx *store.Tx) error {
			if err := tx.Activity().Log(ctx, &models.UserActivity{UserID: dave.ID, ActionType: "login"}); err != nil {
				return err
			}
			if err := tx.Feedback().Create(ctx, &models.Feedback{UserID: dave.ID, FeedbackText: "hi"}); err != nil {
				return err
			}
			if err := tx.SearchLogs().Create(ctx, &models.SearchLog{UserID: dave.ID, SearchQuery: "mugs"}); err != nil {
				return err
			}
			if err := tx.Suggestions().Create(ctx, &models.ProductSuggestion{
				UserID: dave.ID, IndustrySegment: "retail", Prompt: "p", SuggestionData: schema.JSONB{"name": "Mug"},
			}); err != nil {
				return err
			}
			return tx.Branding().Create(ctx, &models.CustomBranding{UserID: dave.ID, BrandName: "Dave Co", IsActive: true})
		}))
		require.NoError(t, st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
			return tx.PasswordResets().Create(ctx, &models.PasswordReset{
				UserID: dave.ID, ResetToken: "tok-dave", ExpiresAt: time.Now().Add(time.Hour),
			})
		}))

		require.NoError(t, st.Do(ctx, policy.SystemPrincipal(), func(tx *store.Tx) error {
			return tx.Users().Delete(ctx, dave.ID)
		}))

		for _, table := range []string{
			"user_activity", "password_resets", "feedback", "search_logs",
			"orders", "product_suggestions", "custom_branding",
		} {
			var n int
			require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table+" WHERE user_id = $1", dave.ID).Scan(&n))
			assert.Zero(t, n, table)
		}
		var items int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM order_items WHERE order_id = $1`, daveOrder.ID).Scan(&items))
		assert.Zero(t, items)
	})
}

func ptr[T any](v T) *T { return &v }
