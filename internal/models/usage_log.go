package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type UsageAction string

const (
	UsageActionGeneration      UsageAction = "generation"
	UsageActionRenewal         UsageAction = "renewal"
	UsageActionUpgrade         UsageAction = "upgrade"
	UsageActionAdminAdjustment UsageAction = "admin_adjustment"
)

// UsageDetails is implemented by every details variant. The variant is selected by the log's action.
type UsageDetails interface {
	Action() UsageAction
}

type GenerationDetails struct {
	CacheKey  string     `json:"cache_key"`
	FromCache bool       `json:"from_cache"`
	DessertID *uuid.UUID `json:"dessert_id,omitempty"`
	Theme     Theme      `json:"theme"`
	Language  string     `json:"language"`
}

func (GenerationDetails) Action() UsageAction { return UsageActionGeneration }

type RenewalDetails struct {
	Plan    Plan `json:"plan"`
	Credits int  `json:"credits"`
}

func (RenewalDetails) Action() UsageAction { return UsageActionRenewal }

type UpgradeDetails struct {
	PreviousPlan Plan `json:"previous_plan"`
	Credits      int  `json:"credits"`
}

func (UpgradeDetails) Action() UsageAction { return UsageActionUpgrade }

type AdminAdjustmentDetails struct {
	PreviousCredits int    `json:"previous_credits"`
	NewCredits      int    `json:"new_credits"`
	Reason          string `json:"reason,omitempty"`
}

func (AdminAdjustmentDetails) Action() UsageAction { return UsageActionAdminAdjustment }

// UsageLog is append-only. Rows are only ever removed by the retention prune or account deletion.
type UsageLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	Action      UsageAction    `gorm:"type:varchar(32);not null;index" json:"action"`
	CreditsUsed int            `gorm:"not null;default:0" json:"creditsUsed"`
	Details     datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt   time.Time      `gorm:"index" json:"createdAt"`
}

// NewUsageLog builds a log row whose action always matches its details variant.
func NewUsageLog(userID uuid.UUID, creditsUsed int, details UsageDetails) (*UsageLog, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to encode usage details: %w", err)
	}
	return &UsageLog{
		UserID:      userID,
		Action:      details.Action(),
		CreditsUsed: creditsUsed,
		Details:     datatypes.JSON(raw),
	}, nil
}

// DecodeDetails returns the typed details variant for the row's action.
func (l *UsageLog) DecodeDetails() (UsageDetails, error) {
	var details UsageDetails
	switch l.Action {
	case UsageActionGeneration:
		details = &GenerationDetails{}
	case UsageActionRenewal:
		details = &RenewalDetails{}
	case UsageActionUpgrade:
		details = &UpgradeDetails{}
	case UsageActionAdminAdjustment:
		details = &AdminAdjustmentDetails{}
	default:
		return nil, fmt.Errorf("unknown usage action %q", l.Action)
	}
	if len(l.Details) > 0 {
		if err := json.Unmarshal(l.Details, details); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", l.Action, err)
		}
	}
	return details, nil
}
