package services

import (
	"context"
	"fmt"
	"time"

	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageLogServiceDB is the append-only audit trail of credit-affecting actions.
type UsageLogServiceDB interface {
	AppendUsageLogDB(ctx context.Context, entry *models.UsageLog) error
	ListUsageLogsDB(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.UsageLog, error)
	DeleteUsageLogsBeforeDB(ctx context.Context, cutoff time.Time) (int64, error)
}

type DefaultUsageLogService struct {
	db *gorm.DB
}

var _ UsageLogServiceDB = (*DefaultUsageLogService)(nil)

func NewUsageLogServiceDB(db *gorm.DB) UsageLogServiceDB {
	return &DefaultUsageLogService{db: db}
}

func (s *DefaultUsageLogService) AppendUsageLogDB(ctx context.Context, entry *models.UsageLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *DefaultUsageLogService) ListUsageLogsDB(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.UsageLog, error) {
	var logs []models.UsageLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}

func (s *DefaultUsageLogService) DeleteUsageLogsBeforeDB(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.UsageLog{})
	return result.RowsAffected, result.Error
}

// appendUsage encodes details into a log row for userID and stores it.
func appendUsage(ctx context.Context, store UsageLogServiceDB, userID uuid.UUID, creditsUsed int, details models.UsageDetails) error {
	entry, err := models.NewUsageLog(userID, creditsUsed, details)
	if err != nil {
		return err
	}
	if err := store.AppendUsageLogDB(ctx, entry); err != nil {
		return fmt.Errorf("failed to append %s usage log: %w", details.Action(), err)
	}
	return nil
}

// UsageLogService serves usage history and applies the retention policy.
type UsageLogService struct {
	store     UsageLogServiceDB
	retention time.Duration
	now       func() time.Time
}

func NewUsageLogService(store UsageLogServiceDB, retention time.Duration) *UsageLogService {
	return &UsageLogService{store: store, retention: retention, now: time.Now}
}

func (s *UsageLogService) ListUsage(ctx context.Context, userID uuid.UUID, page Page) ([]models.UsageLog, error) {
	page = page.Normalize()
	logs, err := s.store.ListUsageLogsDB(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage logs: %w", err)
	}
	return logs, nil
}

// PruneExpired deletes rows older than the retention window. A non-positive retention disables pruning.
func (s *UsageLogService) PruneExpired(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.store.DeleteUsageLogsBeforeDB(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage logs: %w", err)
	}
	return n, nil
}
