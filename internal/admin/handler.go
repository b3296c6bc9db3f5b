package admin

import (
	"context"
	"errors"
	"io"
	"net/http"

	"keyledger/internal/auth"
	"keyledger/internal/httpx"
	"keyledger/internal/model"
	"keyledger/internal/registry"

	"github.com/gin-gonic/gin"
)

const defaultMonthlyLimit = 1000

// KeyRegistry is the subset of *registry.Registry the handlers need.
type KeyRegistry interface {
	IssueKey(ctx context.Context, req registry.IssueRequest) (*model.APIKey, error)
	UpdateKey(ctx context.Context, id string, req registry.UpdateRequest) (*model.APIKey, error)
	DeleteKey(ctx context.Context, id string) error
	GetKey(ctx context.Context, id string) (*model.APIKey, error)
	ListKeys(ctx context.Context, req registry.ListRequest) (*registry.ListResult, error)
	ValidateAndConsume(ctx context.Context, secret string) (*registry.Consumption, error)
}

// CreateKeyRequest is the body of POST /api/api-keys. Omitted type, status and limit take dashboard defaults.
type CreateKeyRequest struct {
	Name         string          `json:"name" binding:"required"`
	Type         model.KeyType   `json:"type"`
	Status       model.KeyStatus `json:"status"`
	MonthlyLimit *int64          `json:"monthlyLimit"`
}

// ListKeysQuery is the query string of GET /api/api-keys. Absent page and limit take defaults.
type ListKeysQuery struct {
	Page   *int   `form:"page"`
	Limit  *int   `form:"limit"`
	Search string `form:"search"`
}

// ValidateKeyRequest is the optional body of POST /api/validate-key.
type ValidateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

type Handler struct {
	registry KeyRegistry
}

func NewHandler(r KeyRegistry) *Handler {
	return &Handler{registry: r}
}

func (h *Handler) ListKeysHandler(c *gin.Context) {
	var q ListKeysQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpx.BadRequest(c, err)
		return
	}
	req := registry.ListRequest{Page: registry.DefaultPage, Limit: registry.DefaultLimit, Search: q.Search}
	if q.Page != nil {
		req.Page = *q.Page
	}
	if q.Limit != nil {
		req.Limit = *q.Limit
	}

	res, err := h.registry.ListKeys(c.Request.Context(), req)
	if err != nil {
		httpx.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateKeyHandler(c *gin.Context) {
	var req CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, err)
		return
	}
	issue := registry.IssueRequest{
		Name:         req.Name,
		Type:         req.Type,
		Status:       req.Status,
		MonthlyLimit: defaultMonthlyLimit,
	}
	if issue.Type == "" {
		issue.Type = model.KeyTypeDev
	}
	if issue.Status == "" {
		issue.Status = model.KeyStatusActive
	}
	if req.MonthlyLimit != nil {
		issue.MonthlyLimit = *req.MonthlyLimit
	}

	key, err := h.registry.IssueKey(c.Request.Context(), issue)
	if err != nil {
		httpx.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) GetKeyHandler(c *gin.Context) {
	key, err := h.registry.GetKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": key})
}

func (h *Handler) UpdateKeyHandler(c *gin.Context) {
	var req registry.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.BadRequest(c, err)
		return
	}
	key, err := h.registry.UpdateKey(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httpx.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": key})
}

func (h *Handler) DeleteKeyHandler(c *gin.Context) {
	if err := h.registry.DeleteKey(c.Request.Context(), c.Param("id")); err != nil {
		httpx.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API key deleted"})
}

// ValidateKeyHandler accepts the key as a bearer token, an x-api-key header or an apiKey body field.
func (h *Handler) ValidateKeyHandler(c *gin.Context) {
	secret := auth.SecretFromRequest(c)
	if secret == "" {
		var req ValidateKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			httpx.BadRequest(c, err)
			return
		}
		secret = req.APIKey
	}

	consumption, err := h.registry.ValidateAndConsume(c.Request.Context(), secret)
	if err != nil {
		httpx.Abort(c, err)
		return
	}
	auth.SetQuotaHeaders(c, consumption)
	c.JSON(http.StatusOK, gin.H{"data": consumption, "message": "Valid API key"})
}
