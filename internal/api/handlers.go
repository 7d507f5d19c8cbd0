package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/marshallshelly/procuredb/internal/service"
	"github.com/marshallshelly/procuredb/pkg/schema"
)

func (h *handler) createOrder(c *gin.Context) {
	var in service.OrderInput
	if !bind(c, &in) {
		return
	}
	o, err := h.Orders.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *handler) listOrders(c *gin.Context) {
	orders, err := h.Orders.List(c.Request.Context(), principal(c), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.Orders.Get(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) quoteOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.Orders.Quote(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) setOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	o, err := h.Orders.SetStatus(c.Request.Context(), principal(c), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *handler) deleteOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.Orders.Delete(c.Request.Context(), principal(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) storeSuggestions(c *gin.Context) {
	var req struct {
		IndustrySegment string         `json:"industry_segment" binding:"required"`
		Prompt          string         `json:"prompt" binding:"required"`
		Suggestions     []schema.JSONB `json:"suggestions" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	out, err := h.Suggestions.Store(c.Request.Context(), principal(c), req.IndustrySegment, req.Prompt, req.Suggestions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"suggestions": out})
}

func (h *handler) recentSuggestions(c *gin.Context) {
	out, err := h.Suggestions.Recent(c.Request.Context(), principal(c), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}

func (h *handler) rateSuggestion(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Rating int `json:"rating" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	s, err := h.Suggestions.Rate(c.Request.Context(), principal(c), id, req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) attachImage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		ImageURL string `json:"image_url" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	s, err := h.Suggestions.AttachImage(c.Request.Context(), principal(c), id, req.ImageURL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handler) markBrandingApplied(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s, err := h.Suggestions.MarkBrandingApplied(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// saveBranding accepts JSON, or a multipart form carrying the fields and an
// optional "logo" file.
func (h *handler) saveBranding(c *gin.Context) {
	var (
		in   service.BrandingInput
		logo *service.Logo
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
		in.BrandName = c.PostForm("brand_name")
		in.PrimaryColor = formValue(c, "primary_color")
		in.SecondaryColor = formValue(c, "secondary_color")
		in.FontFamily = formValue(c, "font_family")
		in.BrandGuidelines = formValue(c, "brand_guidelines")

		fh, err := c.FormFile("logo")
		switch {
		case err == nil:
			f, err := fh.Open()
			if err != nil {
				respondError(c, err)
				return
			}
			defer f.Close()
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, f); err != nil {
				c.JSON(http.StatusRequestEntityTooLarge, errorBody("logo is too large"))
				return
			}
			logo = &service.Logo{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        buf.Bytes(),
			}
		case !errors.Is(err, http.ErrMissingFile):
			c.JSON(http.StatusBadRequest, errorBody("invalid multipart form"))
			return
		}
	} else if !bind(c, &in) {
		return
	}

	b, err := h.Branding.Save(c.Request.Context(), principal(c), in, logo)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func formValue(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (h *handler) activeBranding(c *gin.Context) {
	b, err := h.Branding.Active(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) listBranding(c *gin.Context) {
	out, err := h.Branding.List(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"branding": out})
}

func (h *handler) recordSearch(c *gin.Context) {
	var in service.SearchInput
	if !bind(c, &in) {
		return
	}
	s, err := h.Search.Record(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *handler) recentSearches(c *gin.Context) {
	out, err := h.Search.Recent(c.Request.Context(), principal(c), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"searches": out})
}

func (h *handler) submitFeedback(c *gin.Context) {
	var in service.FeedbackInput
	if !bind(c, &in) {
		return
	}
	f, err := h.Feedback.Submit(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *handler) myFeedback(c *gin.Context) {
	out, err := h.Feedback.Mine(c.Request.Context(), principal(c), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": out})
}

func (h *handler) listTrends(c *gin.Context) {
	out, err := h.Trends.List(c.Request.Context(), principal(c), c.Query("platform"), c.Query("industry"), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trends": out})
}
