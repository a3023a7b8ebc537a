package models

import (
	"time"

	"gorm.io/datatypes"
)

// CacheEntry is the persistent tier of the dessert cache. It is content-addressed and owned by no user.
type CacheEntry struct {
	ID        uint           `gorm:"primaryKey"`
	Key       string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	Hits      int64          `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time `gorm:"index;not null"`
}
