package model

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalTierPriority marks the tier whose members are the organization's principals.
const PrincipalTierPriority = 1

// Tier is a membership level within an organization. Lower Priority ranks higher.
type Tier struct {
	ID             uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string       `gorm:"type:varchar(100);not null" json:"name"`
	Priority       int          `gorm:"not null;index" json:"priority"`
	Members        []TierMember `gorm:"foreignKey:TierID" json:"members,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TierMember assigns a user to a tier.
type TierMember struct {
	TierID uuid.UUID `gorm:"type:uuid;primaryKey" json:"tier_id"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
}
