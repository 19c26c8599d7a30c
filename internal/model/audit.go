package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateReservation = "CREATE_RESERVATION"
	ActionCreateRule        = "CREATE_BOOKING_RULE"
	ActionUpdateRule        = "UPDATE_BOOKING_RULE"
	ActionDeactivateRule    = "DEACTIVATE_BOOKING_RULE"

	// Approval workflow actions
	ActionRequestApprovals   = "REQUEST_RULE_APPROVALS"
	ActionApproveRule        = "APPROVE_RULE"
	ActionRejectRule         = "REJECT_RULE"
	ActionReservationOutcome = "RESERVATION_OUTCOME"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for token-link actions resolved without a session
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:jsonb" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
