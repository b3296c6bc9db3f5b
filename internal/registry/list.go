package registry

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"keyledger/internal/db"
	"keyledger/internal/model"

	"go.uber.org/zap"
)

// ListResult is one page of keys, newest first.
type ListResult struct {
	Items      []model.APIKey `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// ListKeys returns a page of keys, served from the cache when a fresh entry exists.
func (r *Registry) ListKeys(ctx context.Context, req ListRequest) (*ListResult, error) {
	req.Search = strings.TrimSpace(req.Search)
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	offset, err := pageOffset(req.Page, req.Limit)
	if err != nil {
		return nil, err
	}

	key := listCacheKey(req)
	if res, ok := r.cachedList(ctx, key); ok {
		return res, nil
	}

	items, total, err := r.store.CountAndPage(ctx, db.ListQuery{
		Offset: offset,
		Limit:  req.Limit,
		Search: req.Search,
	})
	if err != nil {
		r.logger.Error("Failed to list API keys", zap.Error(err))
		return nil, storeError(err)
	}

	res := &ListResult{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: int((total + int64(req.Limit) - 1) / int64(req.Limit)),
	}
	r.storeList(ctx, key, res)
	return res, nil
}

// pageOffset returns the number of rows before page. Pages whose offset overflows int are rejected.
func pageOffset(page, limit int) (int, error) {
	if page-1 > math.MaxInt/limit {
		return 0, &ValidationError{Fields: []FieldError{{Field: "page", Message: "is too large"}}}
	}
	return (page - 1) * limit, nil
}

func (r *Registry) cachedList(ctx context.Context, key string) (*ListResult, bool) {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.metrics.CacheRequest("error")
		r.logger.Warn("List cache read failed, falling back to store", zap.Error(err))
		return nil, false
	}
	if !ok {
		r.metrics.CacheRequest("miss")
		return nil, false
	}
	var res ListResult
	if err := json.Unmarshal(data, &res); err != nil {
		r.metrics.CacheRequest("error")
		r.logger.Warn("Discarding undecodable list cache entry", zap.String("cache_key", key), zap.Error(err))
		return nil, false
	}
	r.metrics.CacheRequest("hit")
	return &res, true
}

func (r *Registry) storeList(ctx context.Context, key string, res *ListResult) {
	data, err := json.Marshal(res)
	if err != nil {
		r.logger.Warn("Failed to encode list for cache", zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, key, data, r.cacheTTL); err != nil {
		r.metrics.CacheRequest("error")
		r.logger.Warn("List cache write failed", zap.Error(err))
	}
}

// listCacheKey identifies a (page, limit, search) query. Search is case-insensitive, so it is folded first.
func listCacheKey(req ListRequest) string {
	sum := sha256.Sum256([]byte(strings.ToLower(req.Search)))
	return fmt.Sprintf("%slist:%d:%d:%x", cachePrefix, req.Page, req.Limit, sum[:16])
}
