package services

import (
	"context"
	"fmt"
	"time"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
)

// UserService handles registration and account lifecycle for authenticated identities.
type UserService struct {
	users          UserServiceDB
	initialCredits int
	now            func() time.Time
}

func NewUserService(users UserServiceDB, initialCredits int) *UserService {
	return &UserService{users: users, initialCredits: initialCredits, now: time.Now}
}

// CreateOrUpdateUser registers the identity on first sight with the free allotment.
func (s *UserService) CreateOrUpdateUser(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	user, err := s.users.CreateOrGetUserDB(ctx, id, email, s.initialCredits, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUserDB(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the user together with their desserts and usage logs.
func (s *UserService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	affected, err := s.users.DeleteUserDB(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}
