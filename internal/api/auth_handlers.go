package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marshallshelly/procuredb/internal/models"
	"github.com/marshallshelly/procuredb/internal/service"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

func (h *handler) issue(c *gin.Context, status int, u *models.User) {
	token, exp, err := h.tokens.Issue(u)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, User: u})
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	u, err := h.Accounts.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, http.StatusCreated, u)
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	u, err := h.Accounts.Authenticate(c.Request.Context(), req.Username, req.Password, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

func (h *handler) requestReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.Accounts.InitiatePasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "if the email is registered, a reset link has been sent"})
}

func (h *handler) confirmReset(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.Accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) profile(c *gin.Context) {
	u, err := h.Accounts.Profile(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) updateProfile(c *gin.Context) {
	var req struct {
		ProfileData schema.JSONB `json:"profile_data" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	u, err := h.Accounts.UpdateProfile(c.Request.Context(), principal(c), req.ProfileData)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) dashboard(c *gin.Context) {
	d, err := h.Accounts.Dashboard(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *handler) checkLimit(c *gin.Context) {
	u, err := h.Accounts.CheckLimit(c.Request.Context(), principal(c), c.Param("action"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) logActivity(c *gin.Context) {
	var req struct {
		ActionType string       `json:"action_type" binding:"required"`
		Details    schema.JSONB `json:"details"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.Accounts.LogActivity(c.Request.Context(), principal(c), req.ActionType, req.Details, requestMeta(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
