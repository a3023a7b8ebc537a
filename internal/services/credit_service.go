package services

import (
	"context"
	"fmt"
	"time"

	"dessert_generator_go_backend/internal/metrics"
	"dessert_generator_go_backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreditPolicy is the allotment and renewal rule set of the ledger.
type CreditPolicy struct {
	FreeAllotment    int
	PremiumAllotment int
	RenewalPeriod    time.Duration
}

// CreditLedger is the subset of CreditService the orchestrator depends on.
type CreditLedger interface {
	HasCredits(ctx context.Context, userID uuid.UUID) (bool, error)
	DecrementCredit(ctx context.Context, userID uuid.UUID) (*models.User, bool, error)
	CheckAndRenewCredits(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type CreditService struct {
	users   UserServiceDB
	usage   UsageLogServiceDB
	policy  CreditPolicy
	now     func() time.Time
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

var _ CreditLedger = (*CreditService)(nil)

func NewCreditService(users UserServiceDB, usage UsageLogServiceDB, policy CreditPolicy, logger zerolog.Logger, m *metrics.Metrics) *CreditService {
	return &CreditService{
		users:   users,
		usage:   usage,
		policy:  policy,
		now:     time.Now,
		logger:  logger,
		metrics: m,
	}
}

func (s *CreditService) Policy() CreditPolicy {
	return s.policy
}

func (s *CreditService) getUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUserDB(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	return user, nil
}

func (s *CreditService) recordUsage(ctx context.Context, userID uuid.UUID, creditsUsed int, details models.UsageDetails) {
	if err := appendUsage(ctx, s.usage, userID, creditsUsed, details); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("usage log write failed")
	}
}

func (s *CreditService) HasCredits(ctx context.Context, userID uuid.UUID) (bool, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Credits > 0, nil
}

// DecrementCredit consumes one credit if the balance is positive and returns the refreshed user.
// applied is false when the guard rejected the update; that is not an error.
func (s *CreditService) DecrementCredit(ctx context.Context, userID uuid.UUID) (*models.User, bool, error) {
	affected, err := s.users.DecrementCreditsDB(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decrement credits: %w", err)
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	applied := affected > 0
	s.metrics.CreditDecrement(applied)
	return user, applied, nil
}

// CheckAndRenewCredits resets a premium balance once the renewal period has elapsed. Free users are
// returned unchanged.
func (s *CreditService) CheckAndRenewCredits(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsPremium() {
		return user, nil
	}

	now := s.now()
	if now.Sub(user.CreditsRenewedAt) < s.policy.RenewalPeriod {
		return user, nil
	}

	affected, err := s.users.RenewCreditsDB(ctx, userID, s.policy.PremiumAllotment, now, now.Add(-s.policy.RenewalPeriod))
	if err != nil {
		return nil, fmt.Errorf("failed to renew credits: %w", err)
	}
	if affected > 0 {
		s.recordUsage(ctx, userID, 0, models.RenewalDetails{Plan: models.PlanPremium, Credits: s.policy.PremiumAllotment})
		s.logger.Info().Str("user_id", userID.String()).Int("credits", s.policy.PremiumAllotment).Msg("premium credits renewed")
	}
	return s.getUser(ctx, userID)
}

// RenewDuePremiumUsers applies the renewal rule to every premium user that is due.
func (s *CreditService) RenewDuePremiumUsers(ctx context.Context) (int64, error) {
	now := s.now()
	renewed, err := s.users.RenewDuePremiumUsersDB(ctx, s.policy.PremiumAllotment, now, now.Add(-s.policy.RenewalPeriod))
	if err != nil {
		return 0, fmt.Errorf("failed to renew premium users: %w", err)
	}
	for _, u := range renewed {
		s.recordUsage(ctx, u.ID, 0, models.RenewalDetails{Plan: models.PlanPremium, Credits: s.policy.PremiumAllotment})
	}
	return int64(len(renewed)), nil
}

func (s *CreditService) UpgradeToPremium(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	before, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	affected, err := s.users.UpgradeToPremiumDB(ctx, userID, s.policy.PremiumAllotment, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade user: %w", err)
	}
	if affected == 0 {
		return nil, ErrUserNotFound
	}
	s.recordUsage(ctx, userID, 0, models.UpgradeDetails{PreviousPlan: before.Plan, Credits: s.policy.PremiumAllotment})
	return s.getUser(ctx, userID)
}

// UpdateCredits sets the balance to an absolute value. Admin use only.
func (s *CreditService) UpdateCredits(ctx context.Context, userID uuid.UUID, credits int, reason string) (*models.User, error) {
	if credits < 0 {
		return nil, ErrInvalidCredits
	}
	before, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	affected, err := s.users.SetCreditsDB(ctx, userID, credits)
	if err != nil {
		return nil, fmt.Errorf("failed to set credits: %w", err)
	}
	if affected == 0 {
		return nil, ErrUserNotFound
	}
	s.recordUsage(ctx, userID, 0, models.AdminAdjustmentDetails{
		PreviousCredits: before.Credits,
		NewCredits:      credits,
		Reason:          reason,
	})
	return s.getUser(ctx, userID)
}
