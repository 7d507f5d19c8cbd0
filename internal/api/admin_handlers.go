package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/store"
)

const dateLayout = "2006-01-02"

// reportRange reads from/to as inclusive calendar days in UTC. The default
// is the last 30 days including today.
func reportRange(c *gin.Context, now time.Time) (store.Range, bool) {
	today := now.UTC().Truncate(24 * time.Hour)
	rng := store.Range{From: today.AddDate(0, 0, -29), To: today.AddDate(0, 0, 1)}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "expected YYYY-MM-DD", Field: "from"})
			return rng, false
		}
		rng.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "expected YYYY-MM-DD", Field: "to"})
			return rng, false
		}
		rng.To = t.AddDate(0, 0, 1)
	}
	if !rng.From.Before(rng.To) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "from must not be after to", Field: "from"})
		return rng, false
	}
	return rng, true
}

func (h *handler) overview(c *gin.Context) {
	o, err := h.Admin.Overview(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) adminUsers(c *gin.Context) {
	users, err := h.Admin.Users(c.Request.Context(), principal(c), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

type userUpdate struct {
	SubscriptionStatus *string `json:"subscription_status"`
	SubscriptionTier   *string `json:"subscription_tier"`
	IsAdmin            *bool   `json:"is_admin"`
}

// adminUpdateUser applies each present field in turn and returns the final
// row.
func (h *handler) adminUpdateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req userUpdate
	if !bind(c, &req) {
		return
	}
	if req.SubscriptionStatus == nil && req.SubscriptionTier == nil && req.IsAdmin == nil {
		c.JSON(http.StatusBadRequest, errorBody("no changes requested"))
		return
	}

	ctx, p := c.Request.Context(), principal(c)
	var (
		u   *models.User
		err error
	)
	if req.SubscriptionStatus != nil {
		if u, err = h.Admin.SetStatus(ctx, p, id, *req.SubscriptionStatus); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.SubscriptionTier != nil {
		if u, err = h.Admin.SetTier(ctx, p, id, *req.SubscriptionTier); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.IsAdmin != nil {
		if u, err = h.Admin.SetAdmin(ctx, p, id, *req.IsAdmin); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) adminUserActivity(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	out, err := h.Admin.RecentActivity(c.Request.Context(), principal(c), id, limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": out})
}

func (h *handler) adminFeedback(c *gin.Context) {
	out, err := h.Admin.Feedback(c.Request.Context(), principal(c), c.Query("status"), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": out})
}

// adminUpdateFeedback either responds to feedback or only moves its status.
func (h *handler) adminUpdateFeedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Status   string  `json:"status"`
		Response *string `json:"admin_response"`
	}
	if !bind(c, &req) {
		return
	}

	var (
		f   *models.Feedback
		err error
	)
	switch {
	case req.Response != nil:
		f, err = h.Admin.RespondToFeedback(c.Request.Context(), principal(c), id, *req.Response)
	case req.Status != "":
		f, err = h.Admin.SetFeedbackStatus(c.Request.Context(), principal(c), id, req.Status)
	default:
		c.JSON(http.StatusBadRequest, errorBody("status or admin_response is required"))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *handler) recordTrends(c *gin.Context) {
	var req struct {
		Trends []models.SocialTrend `json:"trends" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	for i := range req.Trends {
		req.Trends[i].ID = uuid.Nil
	}
	if err := h.Trends.Record(c.Request.Context(), principal(c), req.Trends); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recorded": len(req.Trends)})
}

func (h *handler) activityReport(c *gin.Context) {
	rng, ok := reportRange(c, time.Now())
	if !ok {
		return
	}
	rep, err := h.Admin.ActivityReport(c.Request.Context(), principal(c), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handler) revenueReport(c *gin.Context) {
	rng, ok := reportRange(c, time.Now())
	if !ok {
		return
	}
	rep, err := h.Admin.RevenueReport(c.Request.Context(), principal(c), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handler) usageReport(c *gin.Context) {
	rng, ok := reportRange(c, time.Now())
	if !ok {
		return
	}
	rep, err := h.Admin.UsageReport(c.Request.Context(), principal(c), rng)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handler) subscriptionReport(c *gin.Context) {
	rep, err := h.Admin.SubscriptionReport(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
