package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// User owns its desserts and usage logs; deleting the user cascades to both.
type User struct {
	ID               uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Email            *string    `gorm:"uniqueIndex" json:"email,omitempty"`
	Plan             Plan       `gorm:"type:varchar(16);not null;default:'free'" json:"plan"`
	Credits          int        `gorm:"not null;default:0;check:credits >= 0" json:"credits"`
	CreditsRenewedAt time.Time  `gorm:"not null" json:"creditsRenewedAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Desserts         []Dessert  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	UsageLogs        []UsageLog `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// OptionalEmail maps a missing address to NULL. Phone and anonymous identities carry no email and must not
// collide on the unique index.
func OptionalEmail(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}

// EmailAddress returns the address or "" when the identity has none.
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

func (u *User) IsPremium() bool {
	return u.Plan == PlanPremium
}
