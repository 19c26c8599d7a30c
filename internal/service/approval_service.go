package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookingengine/internal/model"
	"bookingengine/internal/repository"
	"bookingengine/internal/rules"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcomes of an approval response. They are results, not errors.
const (
	OutcomeRecorded         = "recorded"
	OutcomeAlreadyResponded = "already_responded"
	OutcomeExpired          = "expired"
	OutcomeNotFound         = "not_found"
)

// --- DTOs ---

type TokenResponseRequest struct {
	Token  string `json:"token" form:"token" binding:"required"`
	Action string `json:"action" form:"action" binding:"required"`
}

type ApprovalResult struct {
	Outcome           string `json:"outcome"`
	ApprovalID        string `json:"approval_id,omitempty"`
	ApprovalStatus    string `json:"approval_status,omitempty"`
	ReservationID     string `json:"reservation_id,omitempty"`
	ReservationStatus string `json:"reservation_status,omitempty"`
}

// --- Interface ---

type ApprovalService interface {
	// SubmitApprovalResponse resolves an approval through the token from its email link.
	SubmitApprovalResponse(ctx context.Context, token, action string) (ApprovalResult, error)
	// RespondAsUser resolves an approval for a logged-in approver.
	RespondAsUser(ctx context.Context, approvalID, userID, action string) (ApprovalResult, error)
	ListPendingForUser(ctx context.Context, userID string, page, limit int) ([]ApprovalResponseItem, int64, error)
}

type approvalService struct {
	approvalRepo    repository.RuleApprovalRepository
	reservationRepo repository.ReservationRepository
	auditRepo       repository.AuditRepository
	txManager       repository.TransactionManager
	notifier        ApprovalNotifier
	log             *zap.Logger
	now             func() time.Time
}

func NewApprovalService(
	approvalRepo repository.RuleApprovalRepository,
	reservationRepo repository.ReservationRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	notifier ApprovalNotifier,
	log *zap.Logger,
) ApprovalService {
	return &approvalService{
		approvalRepo:    approvalRepo,
		reservationRepo: reservationRepo,
		auditRepo:       auditRepo,
		txManager:       txManager,
		notifier:        notifier,
		log:             log,
		now:             time.Now,
	}
}

// --- Implementation ---

func (s *approvalService) SubmitApprovalResponse(ctx context.Context, token, action string) (ApprovalResult, error) {
	act, err := parseAction(action)
	if err != nil {
		return ApprovalResult{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ApprovalResult{Outcome: OutcomeNotFound}, nil
	}

	now := s.now()
	var result ApprovalResult
	var decided *model.Reservation

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		approval, err := s.approvalRepo.FindByTokenHash(txCtx, rules.HashToken(token))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = ApprovalResult{Outcome: OutcomeNotFound}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load approval: %w", err)
		}

		if approval.Status != model.ApprovalStatusPending {
			result, err = s.settledResult(txCtx, *approval)
			return err
		}
		if rules.TokenExpired(*approval, now) {
			result = ApprovalResult{
				Outcome:        OutcomeExpired,
				ApprovalID:     approval.ID.String(),
				ApprovalStatus: approval.Status,
				ReservationID:  approval.ReservationID.String(),
			}
			return nil
		}

		result, decided, err = s.apply(txCtx, *approval, act, nil, now)
		return err
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	if decided != nil {
		s.notifier.ReservationDecided(ctx, *decided)
	}
	return result, nil
}

func (s *approvalService) RespondAsUser(ctx context.Context, approvalID, userID, action string) (ApprovalResult, error) {
	act, err := parseAction(action)
	if err != nil {
		return ApprovalResult{}, err
	}
	id, err := uuid.Parse(approvalID)
	if err != nil {
		return ApprovalResult{}, ErrApprovalNotFound
	}
	actor, err := uuid.Parse(userID)
	if err != nil {
		return ApprovalResult{}, ErrNotApprover
	}

	now := s.now()
	var result ApprovalResult
	var decided *model.Reservation

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		approval, err := s.approvalRepo.FindByID(txCtx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrApprovalNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load approval: %w", err)
		}
		if approval.UserID != actor {
			return ErrNotApprover
		}
		if approval.Status != model.ApprovalStatusPending {
			result, err = s.settledResult(txCtx, *approval)
			return err
		}

		result, decided, err = s.apply(txCtx, *approval, act, &actor, now)
		return err
	})
	if err != nil {
		return ApprovalResult{}, err
	}

	if decided != nil {
		s.notifier.ReservationDecided(ctx, *decided)
	}
	return result, nil
}

func (s *approvalService) ListPendingForUser(ctx context.Context, userID string, page, limit int) ([]ApprovalResponseItem, int64, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, 0, ErrNotApprover
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	approvals, total, err := s.approvalRepo.ListPendingForUser(ctx, uid, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	res := make([]ApprovalResponseItem, 0, len(approvals))
	for _, a := range approvals {
		res = append(res, toApprovalResponseItem(a))
	}
	return res, total, nil
}

// --- Helpers ---

// apply records the decision and, when it settles the reservation, transitions it.
// The reservation row lock serializes concurrent responses for one reservation, so
// the aggregate below always sees every decision committed before it.
func (s *approvalService) apply(txCtx context.Context, approval model.RuleApproval, act rules.Action, actor *uuid.UUID, now time.Time) (ApprovalResult, *model.Reservation, error) {
	reservation, err := s.reservationRepo.LockByID(txCtx, approval.ReservationID)
	if err != nil {
		return ApprovalResult{}, nil, fmt.Errorf("failed to lock reservation: %w", err)
	}

	updated := rules.Respond(&approval, act, now) == nil
	if updated {
		updated, err = s.approvalRepo.UpdateStatusIfPending(txCtx, approval.ID, approval.Status, now)
		if err != nil {
			return ApprovalResult{}, nil, fmt.Errorf("failed to update approval: %w", err)
		}
	}
	if !updated {
		// lost the race against another response for the same approval
		return ApprovalResult{
			Outcome:           OutcomeAlreadyResponded,
			ApprovalID:        approval.ID.String(),
			ReservationID:     reservation.ID.String(),
			ReservationStatus: reservation.Status,
		}, nil, nil
	}

	auditAction := model.ActionApproveRule
	if act == rules.ActionReject {
		auditAction = model.ActionRejectRule
	}
	if err := s.writeAudit(txCtx, actor, auditAction, approval.ID.String(), map[string]interface{}{
		"reservation_id": reservation.ID.String(),
		"rule_id":        approval.RuleID.String(),
		"approver_id":    approval.UserID.String(),
	}); err != nil {
		return ApprovalResult{}, nil, err
	}

	target := model.ReservationRejected
	if act == rules.ActionApprove {
		all, err := s.approvalRepo.ListByReservation(txCtx, reservation.ID)
		if err != nil {
			return ApprovalResult{}, nil, fmt.Errorf("failed to load reservation approvals: %w", err)
		}
		statuses := make([]string, 0, len(all))
		for _, a := range all {
			statuses = append(statuses, a.Status)
		}
		target = rules.AggregateOutcome(statuses)
	}

	var decided *model.Reservation
	if target != model.ReservationPending {
		moved, err := s.reservationRepo.TransitionStatus(txCtx, reservation.ID, model.ReservationPending, target)
		if err != nil {
			return ApprovalResult{}, nil, fmt.Errorf("failed to update reservation status: %w", err)
		}
		if moved {
			reservation.Status = target
			decided = reservation
			if err := s.writeAudit(txCtx, actor, model.ActionReservationOutcome, reservation.ID.String(), map[string]interface{}{
				"status":      target,
				"approval_id": approval.ID.String(),
			}); err != nil {
				return ApprovalResult{}, nil, err
			}
		}
	}

	return ApprovalResult{
		Outcome:           OutcomeRecorded,
		ApprovalID:        approval.ID.String(),
		ApprovalStatus:    approval.Status,
		ReservationID:     reservation.ID.String(),
		ReservationStatus: reservation.Status,
	}, decided, nil
}

func (s *approvalService) settledResult(ctx context.Context, approval model.RuleApproval) (ApprovalResult, error) {
	result := ApprovalResult{
		Outcome:        OutcomeAlreadyResponded,
		ApprovalID:     approval.ID.String(),
		ApprovalStatus: approval.Status,
		ReservationID:  approval.ReservationID.String(),
	}
	reservation, err := s.reservationRepo.FindByID(ctx, approval.ReservationID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ApprovalResult{}, fmt.Errorf("failed to load reservation: %w", err)
	}
	if reservation != nil {
		result.ReservationStatus = reservation.Status
	}
	return result, nil
}

func (s *approvalService) writeAudit(ctx context.Context, actor *uuid.UUID, action, entityID string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	audit := &model.AuditLog{
		UserID:     actor,
		Action:     action,
		EntityID:   entityID,
		EntityName: "rule_approval",
		Details:    string(payload),
	}
	if action == model.ActionReservationOutcome {
		audit.EntityName = "reservation"
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func parseAction(v string) (rules.Action, error) {
	act, err := rules.ParseAction(v)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, v)
	}
	return act, nil
}
