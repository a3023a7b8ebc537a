package services

import (
	"context"
	"time"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserServiceDB is the storage side of the credit ledger. Every credit mutation is a single
// conditional UPDATE so the balance can never go below zero.
type UserServiceDB interface {
	CreateOrGetUserDB(ctx context.Context, id uuid.UUID, email string, initialCredits int, now time.Time) (*models.User, error)
	GetUserDB(ctx context.Context, id uuid.UUID) (*models.User, error)
	DecrementCreditsDB(ctx context.Context, id uuid.UUID) (int64, error)
	RenewCreditsDB(ctx context.Context, id uuid.UUID, credits int, renewedAt, dueBefore time.Time) (int64, error)
	RenewDuePremiumUsersDB(ctx context.Context, credits int, renewedAt, dueBefore time.Time) ([]models.User, error)
	UpgradeToPremiumDB(ctx context.Context, id uuid.UUID, credits int, renewedAt time.Time) (int64, error)
	SetCreditsDB(ctx context.Context, id uuid.UUID, credits int) (int64, error)
	DeleteUserDB(ctx context.Context, id uuid.UUID) (int64, error)
}

// DefaultUserService implements UserServiceDB with gorm
type DefaultUserService struct {
	db *gorm.DB
}

var _ UserServiceDB = (*DefaultUserService)(nil)

func NewUserServiceDB(db *gorm.DB) UserServiceDB {
	return &DefaultUserService{db: db}
}

// decrementCredits is the guarded decrement shared by the ledger and the generation transaction.
func decrementCredits(db *gorm.DB, id uuid.UUID) *gorm.DB {
	return db.Model(&models.User{}).
		Where("id = ? AND credits > ?", id, 0).
		UpdateColumn("credits", gorm.Expr("credits - 1"))
}

func (s *DefaultUserService) CreateOrGetUserDB(ctx context.Context, id uuid.UUID, email string, initialCredits int, now time.Time) (*models.User, error) {
	// Parallel first requests of one identity both reach the INSERT; the loser is a no-op.
	candidate := models.User{
		ID:               id,
		Email:            models.OptionalEmail(email),
		Plan:             models.PlanFree,
		Credits:          initialCredits,
		CreditsRenewedAt: now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&candidate).Error
	if err != nil {
		return nil, err
	}

	user, err := s.GetUserDB(ctx, id)
	if err != nil {
		return nil, err
	}

	if email != "" && user.EmailAddress() != email {
		if err := s.db.WithContext(ctx).Model(user).Update("email", email).Error; err != nil {
			return nil, err
		}
		user.Email = models.OptionalEmail(email)
	}
	return user, nil
}

func (s *DefaultUserService) GetUserDB(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *DefaultUserService) DecrementCreditsDB(ctx context.Context, id uuid.UUID) (int64, error) {
	result := decrementCredits(s.db.WithContext(ctx), id)
	return result.RowsAffected, result.Error
}

// RenewCreditsDB only touches a premium user whose last renewal is at or before dueBefore, so
// concurrent renewals of the same user apply once.
func (s *DefaultUserService) RenewCreditsDB(ctx context.Context, id uuid.UUID, credits int, renewedAt, dueBefore time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND plan = ? AND credits_renewed_at <= ?", id, models.PlanPremium, dueBefore).
		Updates(map[string]interface{}{
			"credits":            credits,
			"credits_renewed_at": renewedAt,
		})
	return result.RowsAffected, result.Error
}

func (s *DefaultUserService) RenewDuePremiumUsersDB(ctx context.Context, credits int, renewedAt, dueBefore time.Time) ([]models.User, error) {
	var renewed []models.User
	err := s.db.WithContext(ctx).Model(&renewed).
		Clauses(clause.Returning{}).
		Where("plan = ? AND credits_renewed_at <= ?", models.PlanPremium, dueBefore).
		Updates(map[string]interface{}{
			"credits":            credits,
			"credits_renewed_at": renewedAt,
		}).Error
	if err != nil {
		return nil, err
	}
	return renewed, nil
}

func (s *DefaultUserService) UpgradeToPremiumDB(ctx context.Context, id uuid.UUID, credits int, renewedAt time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"plan":               models.PlanPremium,
			"credits":            credits,
			"credits_renewed_at": renewedAt,
		})
	return result.RowsAffected, result.Error
}

// SetCreditsDB is the admin path; it is the only absolute assignment of the balance.
func (s *DefaultUserService) SetCreditsDB(ctx context.Context, id uuid.UUID, credits int) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("credits", credits)
	return result.RowsAffected, result.Error
}

// DeleteUserDB removes the user; desserts and usage logs go with it through the FK cascade.
func (s *DefaultUserService) DeleteUserDB(ctx context.Context, id uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.User{})
	return result.RowsAffected, result.Error
}
