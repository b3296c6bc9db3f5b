package registry

import (
	"context"
	"errors"
	"time"

	"keyledger/internal/cache"
	"keyledger/internal/db"
	"keyledger/internal/logger"
	"keyledger/internal/metrics"
	"keyledger/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const cachePrefix = "apikeys:"

// Options tunes a Registry. Zero values are usable.
type Options struct {
	// CacheTTL bounds how stale a cached listing may be.
	CacheTTL time.Duration

	// EnforceQuota rejects validations once usage reaches the monthly limit.
	// When false, usage keeps counting past the limit and the result is flagged OverQuota.
	EnforceQuota bool

	Metrics *metrics.Metrics
}

// Consumption is the outcome of a successful validation.
type Consumption struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Type               model.KeyType `json:"type"`
	Usage              int64         `json:"usage"`
	MonthlyLimit       int64         `json:"monthlyLimit"`
	RateLimitPerMinute int           `json:"rateLimitPerMinute"`
	OverQuota          bool          `json:"overQuota"` // usage past the limit, not merely at it
}

// Registry issues, edits, deletes, lists and validates API keys.
// It keeps no state of its own; the store is authoritative and the cache is disposable.
type Registry struct {
	store     db.Service
	cache     cache.Cache
	logger    *zap.Logger
	metrics   *metrics.Metrics
	cacheTTL  time.Duration
	enforce   bool
	now       func() time.Time
	newSecret func(model.KeyType) (string, error)
}

// New creates a Registry. A nil cache disables caching and a nil logger discards logs.
func New(store db.Service, c cache.Cache, log *zap.Logger, opts Options) *Registry {
	if c == nil {
		c = cache.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	return &Registry{
		store:     store,
		cache:     c,
		logger:    log.With(zap.String("component", "registry")),
		metrics:   opts.Metrics,
		cacheTTL:  opts.CacheTTL,
		enforce:   opts.EnforceQuota,
		now:       time.Now,
		newSecret: GenerateSecret,
	}
}

// IssueKey creates a key with zero usage and a fresh secret.
func (r *Registry) IssueKey(ctx context.Context, req IssueRequest) (key *model.APIKey, err error) {
	defer func() { r.metrics.KeyOperation("issue", err) }()

	req.normalize()
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	secret, err := r.newSecret(req.Type)
	if err != nil {
		return nil, err
	}
	key = &model.APIKey{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Secret:       secret,
		Status:       req.Status,
		Type:         req.Type,
		Usage:        0,
		MonthlyLimit: req.MonthlyLimit,
		CreatedAt:    r.now().UTC().Truncate(time.Millisecond),
	}

	err = r.store.Transaction(ctx, func(tx db.Service) error {
		if err := ensureNameFree(ctx, tx, key.Name, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, key)
	})
	if err != nil {
		return nil, r.writeError("issue", err)
	}

	r.invalidate(ctx)
	r.logger.Info("API key issued",
		zap.String("id", key.ID),
		zap.String("name", key.Name),
		zap.String("type", string(key.Type)),
		zap.String("key_suffix", logger.KeySuffix(key.Secret)),
	)
	return key, nil
}

// UpdateKey applies a partial edit. The secret and usage are never touched.
func (r *Registry) UpdateKey(ctx context.Context, id string, req UpdateRequest) (key *model.APIKey, err error) {
	defer func() { r.metrics.KeyOperation("update", err) }()

	req.normalize()
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	err = r.store.Transaction(ctx, func(tx db.Service) error {
		existing, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil && *req.Name != existing.Name {
			if err := ensureNameFree(ctx, tx, *req.Name, id); err != nil {
				return err
			}
		}
		if err := tx.UpdateFields(ctx, id, req.fields()); err != nil {
			return err
		}
		key, err = tx.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, r.writeError("update", err)
	}

	r.invalidate(ctx)
	r.logger.Info("API key updated", zap.String("id", id))
	return key, nil
}

// DeleteKey hard-deletes a key. Deleting an unknown id reports ErrNotFound.
func (r *Registry) DeleteKey(ctx context.Context, id string) (err error) {
	defer func() { r.metrics.KeyOperation("delete", err) }()

	if err := r.store.Delete(ctx, id); err != nil {
		return r.writeError("delete", err)
	}
	r.invalidate(ctx)
	r.logger.Info("API key deleted", zap.String("id", id))
	return nil
}

// GetKey returns a single key by id.
func (r *Registry) GetKey(ctx context.Context, id string) (*model.APIKey, error) {
	key, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeError(err)
	}
	return key, nil
}

// ValidateAndConsume checks that secret belongs to an active key and records one use.
// The increment happens in the store so concurrent calls never lose a count.
func (r *Registry) ValidateAndConsume(ctx context.Context, secret string) (*Consumption, error) {
	if secret == "" {
		r.metrics.Validation("invalid")
		return nil, ErrInvalidKey
	}

	key, err := r.store.IncrementUsage(ctx, secret, r.enforce)
	if errors.Is(err, db.ErrNotFound) {
		return nil, r.rejection(ctx, secret)
	}
	if err != nil {
		r.metrics.Validation("error")
		r.logger.Error("Failed to record key usage", zap.String("key_suffix", logger.KeySuffix(secret)), zap.Error(err))
		return nil, storeError(err)
	}

	c := &Consumption{
		ID:                 key.ID,
		Name:               key.Name,
		Type:               key.Type,
		Usage:              key.Usage,
		MonthlyLimit:       key.MonthlyLimit,
		RateLimitPerMinute: key.Type.RateLimitPerMinute(),
		OverQuota:          key.Usage > key.MonthlyLimit,
	}
	if c.OverQuota {
		r.metrics.Validation("over_quota")
		r.logger.Warn("API key is over its monthly limit",
			zap.String("id", key.ID),
			zap.Int64("usage", key.Usage),
			zap.Int64("monthly_limit", key.MonthlyLimit),
		)
	} else {
		r.metrics.Validation("ok")
	}
	return c, nil
}

// rejection works out why an increment matched no row.
func (r *Registry) rejection(ctx context.Context, secret string) error {
	if r.enforce {
		key, err := r.store.FindBySecret(ctx, secret)
		switch {
		case err == nil && key.IsActive():
			r.metrics.Validation("quota_exceeded")
			r.logger.Warn("API key rejected, monthly quota exhausted", zap.String("id", key.ID))
			return ErrQuotaExceeded
		case err != nil && !errors.Is(err, db.ErrNotFound):
			r.metrics.Validation("error")
			return storeError(err)
		}
	}
	r.metrics.Validation("invalid")
	r.logger.Debug("API key rejected", zap.String("key_suffix", logger.KeySuffix(secret)))
	return ErrInvalidKey
}

func ensureNameFree(ctx context.Context, tx db.Service, name, selfID string) error {
	other, err := tx.FindByName(ctx, name)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != selfID:
		return ErrDuplicateName
	default:
		return nil
	}
}

// writeError maps store failures from a mutation onto the registry's error set.
func (r *Registry) writeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrDuplicateName), errors.Is(err, db.ErrDuplicate):
		return ErrDuplicateName
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	default:
		r.logger.Error("Key store operation failed", zap.String("operation", op), zap.Error(err))
		return storeError(err)
	}
}

func (r *Registry) invalidate(ctx context.Context) {
	if err := r.cache.InvalidatePrefix(ctx, cachePrefix); err != nil {
		r.metrics.CacheRequest("error")
		r.logger.Warn("Failed to invalidate list cache", zap.Error(err))
	}
}
