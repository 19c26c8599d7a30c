package service

import (
	"context"
	"time"

	"bookingengine/internal/model"

	"go.uber.org/zap"
)

// Realtime event names pushed to websocket clients
const (
	EventApprovalRequested        = "approval.requested"
	EventReservationStatusChanged = "reservation.status_changed"
)

// EventPublisher pushes an event to connected realtime clients. With no
// recipients the event goes to everyone.
type EventPublisher interface {
	Publish(event string, payload interface{}, recipients ...string)
}

// ApprovalNotifier is told about workflow changes after they are committed.
// Approvals passed to ApprovalsRequested still carry their plaintext Token so a
// mail sender can build response links; nothing else ever sees it.
type ApprovalNotifier interface {
	ApprovalsRequested(ctx context.Context, reservation model.Reservation, approvals []model.RuleApproval)
	ReservationDecided(ctx context.Context, reservation model.Reservation)
}

type ApprovalRequestedEvent struct {
	ApprovalID     string `json:"approval_id"`
	ReservationID  string `json:"reservation_id"`
	RuleID         string `json:"rule_id"`
	UserID         string `json:"user_id"`
	TokenExpiresAt string `json:"token_expires_at"`
}

type ReservationStatusEvent struct {
	ReservationID string `json:"reservation_id"`
	AssetID       string `json:"asset_id"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
}

type realtimeNotifier struct {
	log       *zap.Logger
	publisher EventPublisher
}

// NewApprovalNotifier logs every notification and forwards it to publisher when set.
func NewApprovalNotifier(log *zap.Logger, publisher EventPublisher) ApprovalNotifier {
	return &realtimeNotifier{log: log, publisher: publisher}
}

func (n *realtimeNotifier) ApprovalsRequested(_ context.Context, reservation model.Reservation, approvals []model.RuleApproval) {
	for _, a := range approvals {
		n.log.Info("approval requested",
			zap.String("approval_id", a.ID.String()),
			zap.String("reservation_id", reservation.ID.String()),
			zap.String("rule_id", a.RuleID.String()),
			zap.String("approver_id", a.UserID.String()),
			zap.Time("token_expires_at", a.TokenExpiresAt),
		)
		if n.publisher == nil {
			continue
		}
		n.publisher.Publish(EventApprovalRequested, ApprovalRequestedEvent{
			ApprovalID:     a.ID.String(),
			ReservationID:  reservation.ID.String(),
			RuleID:         a.RuleID.String(),
			UserID:         a.UserID.String(),
			TokenExpiresAt: a.TokenExpiresAt.Format(time.RFC3339),
		}, a.UserID.String())
	}
}

func (n *realtimeNotifier) ReservationDecided(_ context.Context, reservation model.Reservation) {
	n.log.Info("reservation decided",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("status", reservation.Status),
	)
	if n.publisher == nil {
		return
	}
	n.publisher.Publish(EventReservationStatusChanged, ReservationStatusEvent{
		ReservationID: reservation.ID.String(),
		AssetID:       reservation.AssetID.String(),
		UserID:        reservation.UserID.String(),
		Status:        reservation.Status,
	})
}
