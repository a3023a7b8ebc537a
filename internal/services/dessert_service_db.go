package services

import (
	"context"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DessertServiceDB stores generation records.
type DessertServiceDB interface {
	// RecordGenerationDB charges one credit and inserts the dessert in one transaction. charged is false
	// when the balance guard rejected the charge, in which case nothing is written. created is false when
	// another request already stored a dessert under the same cache key.
	RecordGenerationDB(ctx context.Context, dessert *models.Dessert) (charged bool, created bool, err error)
	GetDessertDB(ctx context.Context, id uuid.UUID) (*models.Dessert, error)
	ListDessertsDB(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dessert, int64, error)
	DeleteDessertDB(ctx context.Context, id, userID uuid.UUID) (int64, error)
}

type DefaultDessertService struct {
	db *gorm.DB
}

var _ DessertServiceDB = (*DefaultDessertService)(nil)

func NewDessertServiceDB(db *gorm.DB) DessertServiceDB {
	return &DefaultDessertService{db: db}
}

func (s *DefaultDessertService) RecordGenerationDB(ctx context.Context, dessert *models.Dessert) (bool, bool, error) {
	var charged, created bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := decrementCredits(tx, dessert.UserID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		charged = true

		result = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cache_key"}},
			DoNothing: true,
		}).Create(dessert)
		if result.Error != nil {
			return result.Error
		}
		created = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return charged, created, nil
}

func (s *DefaultDessertService) GetDessertDB(ctx context.Context, id uuid.UUID) (*models.Dessert, error) {
	var dessert models.Dessert
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&dessert).Error; err != nil {
		return nil, err
	}
	return &dessert, nil
}

func (s *DefaultDessertService) ListDessertsDB(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dessert, int64, error) {
	var (
		desserts []models.Dessert
		total    int64
	)
	owned := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Dessert{}).Where("user_id = ?", userID)
	}
	if err := owned().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := owned().Order("created_at DESC").Limit(limit).Offset(offset).Find(&desserts).Error
	if err != nil {
		return nil, 0, err
	}
	return desserts, total, nil
}

// DeleteDessertDB only deletes when userID owns the row.
func (s *DefaultDessertService) DeleteDessertDB(ctx context.Context, id, userID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Dessert{})
	return result.RowsAffected, result.Error
}
