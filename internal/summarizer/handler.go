package summarizer

import (
	"errors"
	"net/http"

	"keyledger/internal/auth"
	"keyledger/internal/httpx"

	"github.com/gin-gonic/gin"
)

const requestKey = "keyledger.summarizer.request"

type AnalyzeRequest struct {
	GithubURL string `json:"githubUrl" binding:"required"`
}

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// SetupRoutes mounts POST /api/github-summarizer behind API key authentication.
// The body is checked first so malformed requests are not charged against the key's quota.
func SetupRoutes(router *gin.Engine, v auth.KeyValidator, s *Service) {
	handler := NewHandler(s)
	router.POST("/api/github-summarizer", handler.BindRequest, auth.APIKeyMiddleware(v), handler.AnalyzeHandler)
}

// BindRequest parses and checks the request body and stores it for AnalyzeHandler.
func (h *Handler) BindRequest(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, err)
		return
	}
	if !h.service.Configured() {
		abort(c, ErrNotConfigured)
		return
	}
	if _, _, err := ParseRepoURL(req.GithubURL); err != nil {
		abort(c, err)
		return
	}
	c.Set(requestKey, req)
	c.Next()
}

func (h *Handler) AnalyzeHandler(c *gin.Context) {
	req, ok := c.Get(requestKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	githubURL := req.(AnalyzeRequest).GithubURL

	analysis, err := h.service.Analyze(c.Request.Context(), githubURL)
	if err != nil {
		abort(c, err)
		return
	}

	var keyID string
	if consumption, ok := auth.ConsumptionFrom(c); ok {
		keyID = consumption.ID
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"id": keyID,
			"repository": gin.H{
				"url":      githubURL,
				"analysis": analysis,
			},
		},
		"message": "Repository analyzed",
	})
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": messageFor(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, ErrReadmeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func messageFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL), errors.Is(err, ErrReadmeNotFound), errors.Is(err, ErrNotConfigured):
		return err.Error()
	default:
		return "failed to analyze repository"
	}
}
