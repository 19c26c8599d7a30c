package model

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus enum constants
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// RuleApproval is one pending decision per (reservation, rule, approver).
// Rows are never deleted; they are the audit trail of the approval workflow.
type RuleApproval struct {
	ID             uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;not null;index" json:"organization_id"`
	ReservationID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"reservation_id"`
	RuleID         uuid.UUID    `gorm:"type:uuid;not null;index" json:"rule_id"`
	Rule           *BookingRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
	UserID         uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	Status         string       `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TokenHash      string       `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Token          string       `gorm:"-" json:"-"` // plaintext, only set right after fan-out
	TokenExpiresAt time.Time    `gorm:"not null" json:"token_expires_at"`
	RespondedAt    *time.Time   `json:"responded_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
