// Package api exposes the procurement services over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marshallshelly/procuredb/internal/metrics"
	"github.com/marshallshelly/procuredb/internal/service"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Pinger checks database reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the handlers call.
type Services struct {
	Accounts    *service.Accounts
	Admin       *service.Admin
	Orders      *service.Orders
	Suggestions *service.Suggestions
	Branding    *service.Branding
	Search      *service.Search
	Feedback    *service.Feedback
	Trends      *service.Trends
}

// Dependencies wires the router.
type Dependencies struct {
	Services Services
	Tokens   *Tokens
	Resolver PrincipalResolver
	Metrics  *metrics.Metrics
	DB       Pinger
	Logger   *zap.Logger
	// MaxUploadBytes caps multipart logo uploads.
	MaxUploadBytes int64
}

type handler struct {
	Services
	tokens    *Tokens
	db        Pinger
	maxUpload int64
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 2 << 20
	}
	h := &handler{Services: deps.Services, tokens: deps.Tokens, db: deps.DB, maxUpload: maxUpload}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Logger(log.Named("http")))
	r.Use(Metrics(deps.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", h.ready)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.Use(Authenticate(deps.Tokens, deps.Resolver))

	auth := v1.Group("/auth")
	auth.POST("/register", h.register)
	auth.POST("/login", h.login)
	auth.POST("/password-reset", h.requestReset)
	auth.POST("/password-reset/confirm", h.confirmReset)

	user := v1.Group("")
	user.Use(RequireUser())

	user.GET("/me", h.profile)
	user.PATCH("/me", h.updateProfile)
	user.GET("/me/dashboard", h.dashboard)
	user.GET("/me/limits/:action", h.checkLimit)
	user.POST("/me/activity", h.logActivity)

	user.POST("/orders", h.createOrder)
	user.GET("/orders", h.listOrders)
	user.GET("/orders/:id", h.getOrder)
	user.POST("/orders/:id/quote", h.quoteOrder)
	user.PATCH("/orders/:id/status", h.setOrderStatus)
	user.DELETE("/orders/:id", h.deleteOrder)

	user.POST("/suggestions", h.storeSuggestions)
	user.GET("/suggestions", h.recentSuggestions)
	user.PUT("/suggestions/:id/rating", h.rateSuggestion)
	user.PUT("/suggestions/:id/image", h.attachImage)
	user.POST("/suggestions/:id/branding", h.markBrandingApplied)

	user.POST("/branding", h.saveBranding)
	user.GET("/branding", h.listBranding)
	user.GET("/branding/active", h.activeBranding)

	user.POST("/searches", h.recordSearch)
	user.GET("/searches", h.recentSearches)

	user.POST("/feedback", h.submitFeedback)
	user.GET("/feedback", h.myFeedback)

	user.GET("/trends", h.listTrends)

	admin := v1.Group("/admin")
	admin.Use(RequireAdmin())
	admin.GET("/overview", h.overview)
	admin.GET("/users", h.adminUsers)
	admin.PATCH("/users/:id", h.adminUpdateUser)
	admin.GET("/users/:id/activity", h.adminUserActivity)
	admin.GET("/feedback", h.adminFeedback)
	admin.PATCH("/feedback/:id", h.adminUpdateFeedback)
	admin.POST("/trends", h.recordTrends)
	admin.GET("/reports/activity", h.activityReport)
	admin.GET("/reports/revenue", h.revenueReport)
	admin.GET("/reports/usage", h.usageReport)
	admin.GET("/reports/subscriptions", h.subscriptionReport)

	return r
}

func (h *handler) ready(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if err := h.db.Ping(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requestMeta(c *gin.Context) service.RequestMeta {
	return service.RequestMeta{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// pathID parses the :id parameter. A malformed id cannot name a row, so it
// answers 404 like any other missing record.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorBody("not found"))
		return uuid.Nil, false
	}
	return id, true
}

func limitParam(c *gin.Context) uint64 {
	n, err := strconv.ParseUint(c.Query("limit"), 10, 64)
	if err != nil || n == 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return false
	}
	return true
}
