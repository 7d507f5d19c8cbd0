package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/config"
	"github.com/marshallshelly/procuredb/internal/mail"
	"github.com/marshallshelly/procuredb/internal/metrics"
	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/service"
	"github.com/marshallshelly/procuredb/internal/store"
	"github.com/marshallshelly/procuredb/pkg/policy"
	"github.com/marshallshelly/procuredb/pkg/runtime"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret"

type resolverFunc func(ctx context.Context, id uuid.UUID) (policy.Principal, error)

func (f resolverFunc) Resolve(ctx context.Context, id uuid.UUID) (policy.Principal, error) {
	return f(ctx, id)
}

type testEnv struct {
	router *gin.Engine
	mock   pgxmock.PgxPoolIface
	tokens   *Tokens
	admins   map[uuid.UUID]bool
	disabled map[uuid.UUID]bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	reg, err := models.NewRegistry()
	require.NoError(t, err)
	set, err := models.Policies()
	require.NoError(t, err)
	st := store.New(mock, reg, set)
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	log := zap.NewNop()

	env := &testEnv{mock: mock, tokens: NewTokens(testSecret, time.Hour, "procuredb"), admins: map[uuid.UUID]bool{}, disabled: map[uuid.UUID]bool{}}
	env.router = NewRouter(Dependencies{
		Services: Services{
			Accounts:    service.NewAccounts(st, mail.NewLog(log), config.AuthSettings{BcryptCost: 4}, "http://localhost", log),
			Admin:       service.NewAdmin(st, log),
			Orders:      service.NewOrders(st, log),
			Suggestions: service.NewSuggestions(st),
			Branding:    service.NewBranding(st, nil, log),
			Search:      service.NewSearch(st),
			Feedback:    service.NewFeedback(st),
			Trends:      service.NewTrends(st, log),
		},
		Tokens: env.tokens,
		Resolver: resolverFunc(func(_ context.Context, id uuid.UUID) (policy.Principal, error) {
			if env.disabled[id] {
				return policy.Anonymous, policy.ErrPrincipalDisabled
			}
			return policy.Principal{UserID: id, Admin: env.admins[id]}, nil
		}),
		Metrics: m,
		Logger:  log,
	})
	return env
}

func (e *testEnv) token(t *testing.T, id uuid.UUID) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(&models.User{ID: id, Username: "u"})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestTokens(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour, "procuredb")
	id := uuid.New()

	raw, exp, err := tokens.Issue(&models.User{ID: id, Username: "alice"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	got, err := tokens.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other", time.Hour, "procuredb").Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewTokens(testSecret, time.Hour, "elsewhere").Parse(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokens(testSecret, time.Minute, "procuredb")
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		stale, _, err := old.Issue(&models.User{ID: id})
		require.NoError(t, err)
		_, err = tokens.Parse(stale)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    "procuredb",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.Parse(unsigned)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestAuthenticateMiddleware(t *testing.T) {
	tokens := NewTokens(testSecret, time.Hour, "procuredb")
	adminID := uuid.New()
	r := gin.New()
	r.Use(Authenticate(tokens, resolverFunc(func(_ context.Context, id uuid.UUID) (policy.Principal, error) {
		if id == adminID {
			return policy.Principal{UserID: id, Admin: true}, nil
		}
		return policy.Principal{}, errors.New("lookup failed")
	})))
	r.GET("/who", func(c *gin.Context) { c.String(http.StatusOK, principal(c).String()) })

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/who", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call("")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())

	raw, _, err := tokens.Issue(&models.User{ID: adminID})
	require.NoError(t, err)
	w = call("Bearer " + raw)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin:"+adminID.String(), w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call("Token "+raw).Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage").Code)

	other, _, err := tokens.Issue(&models.User{ID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, call("Bearer "+other).Code)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		method string
		err    error
		status int
	}{
		{"not found", http.MethodGet, fmt.Errorf("get order: %w", runtime.ErrNotFound), http.StatusNotFound},
		{"denied read hides the row", http.MethodGet, runtime.ErrAccessDenied, http.StatusNotFound},
		{"denied write", http.MethodPost, runtime.ErrAccessDenied, http.StatusForbidden},
		{"unique", http.MethodPost, &runtime.ConstraintError{Kind: runtime.Unique, Column: "email"}, http.StatusConflict},
		{"check", http.MethodPut, &runtime.ConstraintError{Kind: runtime.Check, Column: "rating"}, http.StatusUnprocessableEntity},
		{"foreign key", http.MethodPost, &runtime.ConstraintError{Kind: runtime.ForeignKey}, http.StatusUnprocessableEntity},
		{"validation", http.MethodPost, &schema.ValidationError{Table: "users", Column: "subscription_tier", Message: "bad"}, http.StatusBadRequest},
		{"invalid input", http.MethodPost, &service.InvalidInputError{Field: "email", Message: "bad"}, http.StatusBadRequest},
		{"credentials", http.MethodPost, service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"inactive", http.MethodPost, service.ErrInactiveAccount, http.StatusForbidden},
		{"username taken", http.MethodPost, service.ErrUsernameTaken, http.StatusConflict},
		{"limit", http.MethodPost, fmt.Errorf("search: %w", service.ErrLimitExceeded), http.StatusTooManyRequests},
		{"storage", http.MethodPost, service.ErrStorageDisabled, http.StatusServiceUnavailable},
		{"unexpected", http.MethodGet, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(tt.method, "/", nil)
			respondError(c, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestReportRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC)
	call := func(query string) (*httptest.ResponseRecorder, bool, time.Time, time.Time) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		rng, ok := reportRange(c, now)
		return w, ok, rng.From, rng.To
	}

	_, ok, from, to := call("")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), to)

	_, ok, from, to = call("from=2024-01-01&to=2024-01-31")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), to)

	w, ok, _, _ := call("from=01/01/2024")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, ok, _, _ = call("from=2024-02-01&to=2024-01-01")
	assert.False(t, ok)
}

func TestRouter_Probes(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", "", "").Code)

	w := env.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "procuredb_http_requests_total")
}

func TestRouter_Guards(t *testing.T) {
	env := newTestEnv(t)
	alice := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/v1/admin/overview", "", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/api/v1/admin/overview", env.token(t, alice), "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/v1/orders/not-a-uuid", env.token(t, alice), "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPatch, "/api/v1/admin/users/"+alice.String(), env.token(t, admin), "{}").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/admin/reports/usage?from=yesterday", env.token(t, admin), "").Code)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRouter_SuspendedAccountTokenRefused(t *testing.T) {
	env := newTestEnv(t)
	alice := uuid.New()
	token := env.token(t, alice)
	env.disabled[alice] = true

	w := env.do(http.MethodGet, "/api/v1/me", token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"account suspended or inactive"}`, w.Body.String())
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRouter_Login(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`SELECT .+ FROM users WHERE username = \$1 LIMIT 1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash"}))
	env.mock.ExpectRollback()

	w = env.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"ghost","password":"secret"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid username or password"}`, w.Body.String())
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestRouter_ForeignOrderIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	bob := uuid.New()
	orderID := uuid.New()

	env.mock.ExpectBegin()
	env.mock.ExpectExec(`SET LOCAL ROLE "procure_app"`).WillReturnResult(pgxmock.NewResult("SET", 0))
	env.mock.ExpectExec(`SELECT set_config\(\$1, \$2, true\)`).
		WithArgs("app.user_id", bob.String()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	env.mock.ExpectQuery(`SELECT .+ FROM orders WHERE user_id = \$1 AND id = \$2 LIMIT 1`).
		WithArgs(bob, orderID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	env.mock.ExpectRollback()

	w := env.do(http.MethodGet, "/api/v1/orders/"+orderID.String(), env.token(t, bob), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NoError(t, env.mock.ExpectationsWereMet())
}
