package model

import (
	"time"

	"github.com/google/uuid"
)

// ReservationStatus constants
const (
	ReservationPending  = "pending"
	ReservationApproved = "approved"
	ReservationRejected = "rejected"
	ReservationCanceled = "canceled"
)

// Reservation is a booking of one asset by one member for a time window.
// The engine only ever writes Status.
type Reservation struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	AssetID        uuid.UUID `gorm:"type:uuid;not null;index:idx_reservations_asset_window" json:"asset_id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	TierID         uuid.UUID `gorm:"type:uuid;not null" json:"tier_id"`
	StartTime      time.Time `gorm:"not null;index:idx_reservations_asset_window" json:"start_time"`
	EndTime        time.Time `gorm:"not null" json:"end_time"`
	Status         string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Notes          string    `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IsActive reports whether the reservation still holds its asset.
func (r Reservation) IsActive() bool {
	return r.Status == ReservationPending || r.Status == ReservationApproved
}
