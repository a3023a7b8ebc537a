package services

import (
	"context"
	"errors"
	"time"

	"dessert_generator_go_backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheServiceDB is the persistent tier of the dessert cache.
type CacheServiceDB interface {
	GetCacheEntryDB(ctx context.Context, key string, now time.Time) (*models.CacheEntry, error)
	UpsertCacheEntryDB(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
	IncrementCacheHitsDB(ctx context.Context, key string) error
	DeleteCacheEntryDB(ctx context.Context, key string) error
	DeleteExpiredCacheEntriesDB(ctx context.Context, now time.Time) (int64, error)
}

type DefaultCacheService struct {
	db *gorm.DB
}

var _ CacheServiceDB = (*DefaultCacheService)(nil)

func NewCacheServiceDB(db *gorm.DB) CacheServiceDB {
	return &DefaultCacheService{db: db}
}

// GetCacheEntryDB returns gorm.ErrRecordNotFound for missing or expired keys.
func (s *DefaultCacheService) GetCacheEntryDB(ctx context.Context, key string, now time.Time) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := s.db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpsertCacheEntryDB overwrites payload and expiry on key conflict and keeps the hit counter.
func (s *DefaultCacheService) UpsertCacheEntryDB(ctx context.Context, key string, payload []byte, expiresAt time.Time) error {
	entry := &models.CacheEntry{
		Key:       key,
		Payload:   datatypes.JSON(payload),
		ExpiresAt: expiresAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(entry).Error
}

func (s *DefaultCacheService) IncrementCacheHitsDB(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Model(&models.CacheEntry{}).
		Where("key = ?", key).
		UpdateColumn("hits", gorm.Expr("hits + 1")).Error
}

func (s *DefaultCacheService) DeleteCacheEntryDB(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.CacheEntry{}).Error
}

func (s *DefaultCacheService) DeleteExpiredCacheEntriesDB(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
