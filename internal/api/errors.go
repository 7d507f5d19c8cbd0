package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marshallshelly/procuredb/internal/service"
	"github.com/marshallshelly/procuredb/pkg/runtime"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func errorBody(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

type errorCase struct {
	err    error
	status int
	msg    string
}

var errorCases = []errorCase{
	{runtime.ErrNotFound, http.StatusNotFound, "not found"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid username or password"},
	{service.ErrInactiveAccount, http.StatusForbidden, "account suspended or inactive"},
	{service.ErrUsernameTaken, http.StatusConflict, "username already exists"},
	{service.ErrEmailTaken, http.StatusConflict, "email already registered"},
	{service.ErrInvalidResetToken, http.StatusBadRequest, "invalid or expired reset token"},
	{service.ErrResetTokenExpired, http.StatusBadRequest, "reset token has expired"},
	{service.ErrLimitExceeded, http.StatusTooManyRequests, "daily limit reached for your subscription tier"},
	{service.ErrUnknownAction, http.StatusBadRequest, "unknown action"},
	{service.ErrStorageDisabled, http.StatusServiceUnavailable, "file storage is not configured"},
}

// respondError maps err onto a status. A policy denial on a read looks
// exactly like a missing row; on a write it is a 403 without detail.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, runtime.ErrAccessDenied) {
		if c.Request.Method == http.MethodGet {
			c.JSON(http.StatusNotFound, errorBody("not found"))
			return
		}
		c.JSON(http.StatusForbidden, errorBody("access denied"))
		return
	}
	for _, ec := range errorCases {
		if errors.Is(err, ec.err) {
			c.JSON(ec.status, errorBody(ec.msg))
			return
		}
	}

	var ce *runtime.ConstraintError
	if errors.As(err, &ce) {
		status := http.StatusUnprocessableEntity
		if ce.Kind == runtime.Unique {
			status = http.StatusConflict
		}
		c.JSON(status, ErrorResponse{Error: string(ce.Kind) + " constraint violated", Field: ce.Column})
		return
	}
	var ie *service.InvalidInputError
	if errors.As(err, &ie) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ie.Message, Field: ie.Field})
		return
	}
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Message, Field: ve.Column})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, errorBody("internal server error"))
}
