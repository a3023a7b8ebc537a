package services

import (
	"context"
	"fmt"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
)

// DessertPage is one page of a user's generation history.
type DessertPage struct {
	Items  []models.Dessert `json:"items"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// DessertHistoryService gives owners read and delete access to their generated desserts.
type DessertHistoryService struct {
	desserts DessertServiceDB
}

func NewDessertHistoryService(desserts DessertServiceDB) *DessertHistoryService {
	return &DessertHistoryService{desserts: desserts}
}

func (s *DessertHistoryService) ListDesserts(ctx context.Context, userID uuid.UUID, page Page) (*DessertPage, error) {
	page = page.Normalize()
	items, total, err := s.desserts.ListDessertsDB(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list desserts: %w", err)
	}
	if items == nil {
		items = []models.Dessert{}
	}
	return &DessertPage{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// GetDessert hides other users' desserts behind ErrDessertNotFound.
func (s *DessertHistoryService) GetDessert(ctx context.Context, userID, id uuid.UUID) (*models.Dessert, error) {
	dessert, err := s.desserts.GetDessertDB(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrDessertNotFound
		}
		return nil, fmt.Errorf("failed to load dessert: %w", err)
	}
	if dessert.UserID != userID {
		return nil, ErrDessertNotFound
	}
	return dessert, nil
}

// DeleteDessert removes the history row only. The shared cache entry for its key stays valid.
func (s *DessertHistoryService) DeleteDessert(ctx context.Context, userID, id uuid.UUID) error {
	affected, err := s.desserts.DeleteDessertDB(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete dessert: %w", err)
	}
	if affected == 0 {
		return ErrDessertNotFound
	}
	return nil
}
