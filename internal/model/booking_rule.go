package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RuleType enum constants
const (
	RuleTypeDateRange          = "date_range"
	RuleTypeConsecutiveBooking = "consecutive_booking"
	RuleTypeConcurrentBooking  = "concurrent_booking"
	RuleTypeLeadTime           = "lead_time"
	RuleTypeCustom             = "custom"
)

// ApprovalType enum constants
const (
	ApprovalTypeAnyApprover   = "any_approver"
	ApprovalTypeAllPrincipals = "all_principals"
	ApprovalTypeTierMembers   = "tier_members"
	ApprovalTypeSpecificUsers = "specific_users"
)

// BookingRule is a booking policy scoped to one membership tier.
// Conditions holds the kind-specific parameters for RuleType; see rules.ParseConditions.
type BookingRule struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TierID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"tier_id"`
	Name               string         `gorm:"type:varchar(255);not null" json:"name"`
	Description        string         `gorm:"type:text" json:"description"`
	RuleType           string         `gorm:"type:varchar(30);not null;index" json:"rule_type"`
	Conditions         datatypes.JSON `gorm:"type:jsonb" json:"conditions"`
	RequiresApproval   bool           `gorm:"default:false" json:"requires_approval"`
	ApprovalType       string         `gorm:"type:varchar(30);default:'any_approver'" json:"approval_type"`
	ApproverTierID     *uuid.UUID     `gorm:"type:uuid" json:"approver_tier_id"`
	IsOverride         bool           `gorm:"default:false" json:"is_override"`
	Priority           int            `gorm:"default:0;index" json:"priority"`
	AppliesToAllAssets bool           `gorm:"not null" json:"applies_to_all_assets"`
	IsActive           bool           `gorm:"not null;index" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// RuleAsset links a rule to a single asset when the rule does not apply to all assets.
type RuleAsset struct {
	RuleID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"rule_id"`
	AssetID uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"asset_id"`
}

// RuleApprover lists the pre-resolved approvers of a specific_users rule.
type RuleApprover struct {
	RuleID uuid.UUID `gorm:"type:uuid;primaryKey" json:"rule_id"`
	UserID uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
}
