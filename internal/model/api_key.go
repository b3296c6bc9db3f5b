package model

import "time"

// KeyType fixes the per-minute rate class of a key.
type KeyType string

const (
	KeyTypeDev  KeyType = "dev"
	KeyTypeProd KeyType = "prod"
)

// RateLimitPerMinute returns the request budget per minute for the key type.
func (t KeyType) RateLimitPerMinute() int {
	if t == KeyTypeProd {
		return 1000
	}
	return 100
}

// Valid reports whether t is a known key type.
func (t KeyType) Valid() bool {
	return t == KeyTypeDev || t == KeyTypeProd
}

// KeyStatus controls whether a key passes validation.
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusInactive KeyStatus = "inactive"
)

// APIKey is a client's bearer key together with its quota and usage counter.
// Column names avoid `key` and `usage`, which MySQL reserves.
type APIKey struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Secret       string    `gorm:"column:secret;type:varchar(64);uniqueIndex;not null" json:"key"`
	Status       KeyStatus `gorm:"type:varchar(16);default:'active';not null" json:"status"`
	Type         KeyType   `gorm:"type:varchar(16);default:'dev';not null" json:"type"`
	Usage        int64     `gorm:"column:usage_count;default:0;not null" json:"usage"`
	MonthlyLimit int64     `gorm:"default:1000;not null" json:"monthlyLimit"`
	CreatedAt    time.Time `gorm:"index;not null" json:"createdAt"`
}

// TableName pins the table name regardless of naming strategy.
func (APIKey) TableName() string {
	return "api_keys"
}

// IsActive reports whether the key may pass validation.
func (k *APIKey) IsActive() bool {
	return k.Status == KeyStatusActive
}

// Exhausted reports whether usage has reached the monthly limit.
func (k *APIKey) Exhausted() bool {
	return k.Usage >= k.MonthlyLimit
}
