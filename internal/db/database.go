package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"keyledger/internal/config"
	"keyledger/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no key matches the lookup.
	ErrNotFound = errors.New("api key not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate api key")
)

// ListQuery selects one page of keys. Search is matched case-insensitively as a substring of the name.
type ListQuery struct {
	Offset int
	Limit  int
	Search string
}

// Service is the data access contract for API keys.
type Service interface {
	GetDB() *gorm.DB
	FindByID(ctx context.Context, id string) (*model.APIKey, error)
	FindBySecret(ctx context.Context, secret string) (*model.APIKey, error)
	FindByName(ctx context.Context, name string) (*model.APIKey, error)
	Insert(ctx context.Context, key *model.APIKey) error
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	IncrementUsage(ctx context.Context, secret string, enforceLimit bool) (*model.APIKey, error)
	Delete(ctx context.Context, id string) error
	CountAndPage(ctx context.Context, q ListQuery) ([]model.APIKey, int64, error)
	ListExhausted(ctx context.Context) ([]model.APIKey, error)
	Transaction(ctx context.Context, fn func(tx Service) error) error
	Ping(ctx context.Context) error
	Close() error
}

type gormService struct {
	db *gorm.DB
}

// Init initializes the database connection based on the provided configuration.
func Init(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	switch {
	case cfg.Type == "sqlite":
		// sqlite allows a single writer; one connection serializes transactions instead of failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&model.APIKey{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// NewService opens the configured database and returns a Service backed by it.
// Database log output goes to log; a nil log discards it.
func NewService(cfg config.DatabaseConfig, log *zap.Logger) (Service, error) {
	db, err := Init(cfg, log)
	if err != nil {
		return nil, err
	}
	return &gormService{db: db}, nil
}

// NewServiceFromDB wraps an existing connection.
func NewServiceFromDB(db *gorm.DB) Service {
	return &gormService{db: db}
}

func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

func (s *gormService) findOne(ctx context.Context, query string, arg any) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.WithContext(ctx).Where(query, arg).First(&key).Error; err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

func (s *gormService) FindByID(ctx context.Context, id string) (*model.APIKey, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *gormService) FindBySecret(ctx context.Context, secret string) (*model.APIKey, error) {
	return s.findOne(ctx, "secret = ?", secret)
}

func (s *gormService) FindByName(ctx context.Context, name string) (*model.APIKey, error) {
	return s.findOne(ctx, "name = ?", name)
}

// Insert creates the key. A unique violation on name or secret yields ErrDuplicate.
func (s *gormService) Insert(ctx context.Context, key *model.APIKey) error {
	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return fmt.Errorf("failed to insert api key: %w", translate(err))
	}
	return nil
}

// UpdateFields writes the given columns. Existence is the caller's concern since some drivers
// report zero affected rows when the values are unchanged.
func (s *gormService) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Model(&model.APIKey{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update api key %s: %w", id, translate(result.Error))
	}
	return nil
}

// IncrementUsage atomically increments the usage count of an active key and returns the
// post-increment record. With enforceLimit the increment only applies while usage is below
// the monthly limit. ErrNotFound means no row qualified.
func (s *gormService) IncrementUsage(ctx context.Context, secret string, enforceLimit bool) (*model.APIKey, error) {
	var key model.APIKey
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&model.APIKey{}).
			Where("secret = ? AND status = ?", secret, model.KeyStatusActive)
		if enforceLimit {
			query = query.Where("usage_count < monthly_limit")
		}
		result := query.UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("secret = ?", secret).First(&key).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to increment usage for api key: %w", translate(err))
	}
	return &key, nil
}

func (s *gormService) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.APIKey{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete api key %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAndPage returns one page of keys, newest first, and the total number of matches.
func (s *gormService) CountAndPage(ctx context.Context, q ListQuery) ([]model.APIKey, int64, error) {
	base := s.db.WithContext(ctx).Model(&model.APIKey{})
	if q.Search != "" {
		base = base.Where("LOWER(name) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(q.Search))+"%")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count api keys: %w", err)
	}

	keys := []model.APIKey{}
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&keys).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, total, nil
}

// ListExhausted returns keys with no quota left, matching APIKey.Exhausted, highest usage first.
func (s *gormService) ListExhausted(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.WithContext(ctx).
		Where("usage_count >= monthly_limit").
		Order("usage_count DESC").
		Find(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load exhausted api keys: %w", err)
	}
	return keys, nil
}

// Transaction runs fn against a Service bound to a single database transaction.
func (s *gormService) Transaction(ctx context.Context, fn func(tx Service) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormService{db: tx})
	})
}

func (s *gormService) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
