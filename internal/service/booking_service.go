package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"bookingengine/internal/config"
	"bookingengine/internal/model"
	"bookingengine/internal/repository"
	"bookingengine/internal/rules"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type BookingRequest struct {
	AssetID string    `json:"asset_id" binding:"required,uuid"`
	UserID  string    `json:"-"`
	TierID  string    `json:"tier_id" binding:"required,uuid"`
	Start   time.Time `json:"start_time" binding:"required"`
	End     time.Time `json:"end_time" binding:"required"`
	Notes   string    `json:"notes"`
}

type Evaluation struct {
	Blocked          bool                    `json:"blocked"`
	BlockReason      string                  `json:"block_reason,omitempty"`
	BlockingRules    []rules.RuleCheckResult `json:"blocking_rules"`
	TriggeredRules   []rules.RuleCheckResult `json:"triggered_rules"`
	RequiresApproval bool                    `json:"requires_approval"`
	// Governing is the triggered rule that takes precedence when verdicts conflict.
	Governing *rules.RuleCheckResult `json:"governing_rule,omitempty"`
}

type ReservationResponse struct {
	ID        string `json:"id"`
	AssetID   string `json:"asset_id"`
	UserID    string `json:"user_id"`
	TierID    string `json:"tier_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
	CreatedAt string `json:"created_at"`
}

type BookingResult struct {
	Evaluation
	Reservation      *ReservationResponse `json:"reservation,omitempty"`
	ApprovalsCreated int                  `json:"approvals_created"`
}

type ApprovalResponseItem struct {
	ID             string  `json:"id"`
	ReservationID  string  `json:"reservation_id"`
	RuleID         string  `json:"rule_id"`
	RuleName       string  `json:"rule_name"`
	RuleType       string  `json:"rule_type"`
	UserID         string  `json:"user_id"`
	Status         string  `json:"status"`
	TokenExpiresAt string  `json:"token_expires_at"`
	RespondedAt    *string `json:"responded_at"`
	CreatedAt      string  `json:"created_at"`
}

// --- Interface ---

type BookingService interface {
	EvaluateBooking(ctx context.Context, req BookingRequest) (Evaluation, error)
	CreateReservation(ctx context.Context, req BookingRequest) (BookingResult, error)
	// ListReservationApprovals is limited to the reservation owner, its approvers and privileged viewers.
	ListReservationApprovals(ctx context.Context, reservationID, viewerID string, privileged bool) ([]ApprovalResponseItem, error)
}

type bookingService struct {
	ruleRepo        repository.BookingRuleRepository
	tierRepo        repository.TierRepository
	reservationRepo repository.ReservationRepository
	approvalRepo    repository.RuleApprovalRepository
	auditRepo       repository.AuditRepository
	txManager       repository.TransactionManager
	notifier        ApprovalNotifier
	log             *zap.Logger
	tokenTTL        time.Duration
	now             func() time.Time
}

func NewBookingService(
	ruleRepo repository.BookingRuleRepository,
	tierRepo repository.TierRepository,
	reservationRepo repository.ReservationRepository,
	approvalRepo repository.RuleApprovalRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	notifier ApprovalNotifier,
	cfg *config.Config,
	log *zap.Logger,
) BookingService {
	return &bookingService{
		ruleRepo:        ruleRepo,
		tierRepo:        tierRepo,
		reservationRepo: reservationRepo,
		approvalRepo:    approvalRepo,
		auditRepo:       auditRepo,
		txManager:       txManager,
		notifier:        notifier,
		log:             log,
		tokenTTL:        cfg.ApprovalTokenTTL,
		now:             time.Now,
	}
}

// --- Implementation ---

// candidate is a validated booking request.
type candidate struct {
	rules.Candidate
	tier  *model.Tier
	notes string
}

func (s *bookingService) EvaluateBooking(ctx context.Context, req BookingRequest) (Evaluation, error) {
	c, err := s.loadCandidate(ctx, req)
	if err != nil {
		return Evaluation{}, err
	}
	match, err := s.match(ctx, c, s.now())
	if err != nil {
		return Evaluation{}, err
	}
	return toEvaluation(match), nil
}

func (s *bookingService) CreateReservation(ctx context.Context, req BookingRequest) (BookingResult, error) {
	c, err := s.loadCandidate(ctx, req)
	if err != nil {
		return BookingResult{}, err
	}

	now := s.now()
	match, err := s.match(ctx, c, now)
	if err != nil {
		return BookingResult{}, err
	}

	result := BookingResult{Evaluation: toEvaluation(match)}
	if match.Blocked() {
		return result, nil
	}

	status := model.ReservationApproved
	if rules.NeedsApproval(match.Triggered) {
		status = model.ReservationPending
	}

	reservation := model.Reservation{
		ID:             uuid.New(),
		OrganizationID: c.tier.OrganizationID,
		AssetID:        c.AssetID,
		UserID:         c.UserID,
		TierID:         c.TierID,
		StartTime:      c.Start,
		EndTime:        c.End,
		Status:         status,
		Notes:          c.notes,
	}

	var approvals []model.RuleApproval
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.reservationRepo.LockAsset(txCtx, c.AssetID); err != nil {
			return fmt.Errorf("failed to lock asset: %w", err)
		}
		taken, err := s.reservationRepo.HasActiveOverlapForAsset(txCtx, c.AssetID, c.Start, c.End)
		if err != nil {
			return fmt.Errorf("failed to check asset availability: %w", err)
		}
		if taken {
			return ErrAssetUnavailable
		}

		if err := s.reservationRepo.Create(txCtx, &reservation); err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		directory, err := s.resolveDirectory(txCtx, c.tier.OrganizationID, match.Triggered)
		if err != nil {
			return err
		}

		approvals, err = rules.BuildApprovals(rules.FanoutRequest{
			OrganizationID: reservation.OrganizationID,
			ReservationID:  reservation.ID,
			Triggered:      match.Triggered,
			Directory:      directory,
			Now:            now,
			TokenTTL:       s.tokenTTL,
		})
		if err != nil {
			return err
		}
		if err := s.approvalRepo.CreateBatch(txCtx, approvals); err != nil {
			return fmt.Errorf("failed to create rule approvals: %w", err)
		}

		triggeredIDs := make([]string, 0, len(match.Triggered))
		for _, r := range match.Triggered {
			triggeredIDs = append(triggeredIDs, r.RuleID.String())
		}
		details, _ := json.Marshal(map[string]interface{}{
			"asset_id":        reservation.AssetID.String(),
			"start_time":      reservation.StartTime,
			"end_time":        reservation.EndTime,
			"status":          reservation.Status,
			"triggered_rules": triggeredIDs,
			"approvals":       len(approvals),
		})
		uid := reservation.UserID
		audit := &model.AuditLog{
			UserID:     &uid,
			Action:     model.ActionCreateReservation,
			EntityID:   reservation.ID.String(),
			EntityName: "reservation",
			Details:    string(details),
		}
		if err := s.auditRepo.Log(txCtx, audit); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		if len(approvals) == 0 {
			return nil
		}

		approverIDs := make([]string, 0, len(approvals))
		for _, a := range approvals {
			approverIDs = append(approverIDs, a.UserID.String())
		}
		details, _ = json.Marshal(map[string]interface{}{
			"approvals": len(approvals),
			"approvers": approverIDs,
		})
		if err := s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     &uid,
			Action:     model.ActionRequestApprovals,
			EntityID:   reservation.ID.String(),
			EntityName: "reservation",
			Details:    string(details),
		}); err != nil {
			return fmt.Errorf("failed to write audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAssetUnavailable) {
			s.log.Error("reservation fan-out failed",
				zap.String("asset_id", c.AssetID.String()),
				zap.String("user_id", c.UserID.String()),
				zap.Error(err),
			)
		}
		return BookingResult{}, err
	}

	if len(approvals) > 0 {
		s.notifier.ApprovalsRequested(ctx, reservation, approvals)
	} else if status == model.ReservationPending {
		s.log.Warn("reservation requires approval but no approvers were resolved",
			zap.String("reservation_id", reservation.ID.String()),
		)
	}

	resp := toReservationResponse(reservation)
	result.Reservation = &resp
	result.ApprovalsCreated = len(approvals)
	return result, nil
}

func (s *bookingService) ListReservationApprovals(ctx context.Context, reservationID, viewerID string, privileged bool) ([]ApprovalResponseItem, error) {
	id, err := uuid.Parse(reservationID)
	if err != nil {
		return nil, ErrReservationNotFound
	}
	reservation, err := s.reservationRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}

	approvals, err := s.approvalRepo.ListByReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	if !privileged && reservation.UserID.String() != viewerID &&
		!slices.ContainsFunc(approvals, func(a model.RuleApproval) bool { return a.UserID.String() == viewerID }) {
		return nil, ErrNotParticipant
	}
	res := make([]ApprovalResponseItem, 0, len(approvals))
	for _, a := range approvals {
		res = append(res, toApprovalResponseItem(a))
	}
	return res, nil
}

// --- Helpers ---

func (s *bookingService) loadCandidate(ctx context.Context, req BookingRequest) (candidate, error) {
	assetID, errA := uuid.Parse(req.AssetID)
	userID, errU := uuid.Parse(req.UserID)
	tierID, errT := uuid.Parse(req.TierID)
	if errA != nil || errU != nil || errT != nil {
		return candidate{}, ErrInvalidRequest
	}
	if !req.End.After(req.Start) {
		return candidate{}, ErrInvalidWindow
	}

	tier, err := s.tierRepo.FindByID(ctx, tierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return candidate{}, ErrTierNotFound
		}
		return candidate{}, fmt.Errorf("failed to load tier: %w", err)
	}
	member, err := s.tierRepo.IsMember(ctx, tierID, userID)
	if err != nil {
		return candidate{}, fmt.Errorf("failed to check tier membership: %w", err)
	}
	if !member {
		return candidate{}, ErrNotTierMember
	}

	return candidate{
		Candidate: rules.Candidate{
			BookingWindow: rules.BookingWindow{
				AssetID: assetID,
				UserID:  userID,
				Start:   req.Start,
				End:     req.End,
			},
			TierID: tierID,
		},
		tier:  tier,
		notes: req.Notes,
	}, nil
}

// match loads the tier's rules and the reservations they look at, then runs the matcher.
func (s *bookingService) match(ctx context.Context, c candidate, now time.Time) (rules.MatchResult, error) {
	tierRules, err := s.ruleRepo.ListActiveByTier(ctx, c.TierID)
	if err != nil {
		return rules.MatchResult{}, fmt.Errorf("failed to load booking rules: %w", err)
	}

	var linkedRuleIDs []uuid.UUID
	for _, r := range tierRules {
		if !r.AppliesToAllAssets {
			linkedRuleIDs = append(linkedRuleIDs, r.ID)
		}
	}
	links, err := s.ruleRepo.ListAssetLinks(ctx, linkedRuleIDs)
	if err != nil {
		return rules.MatchResult{}, fmt.Errorf("failed to load rule assets: %w", err)
	}

	applicable := rules.ApplicableRules(c.Candidate, tierRules, links)
	ec := rules.EvalContext{Now: now}

	if span := consecutiveLookback(applicable); span > 0 {
		ec.AssetReservations, err = s.reservationRepo.ListActiveForAsset(ctx, c.AssetID, c.Start.Add(-span), c.Start.Add(span))
		if err != nil {
			return rules.MatchResult{}, fmt.Errorf("failed to load asset reservations: %w", err)
		}
	}
	if hasRuleType(applicable, model.RuleTypeConcurrentBooking) {
		ec.UserReservations, err = s.reservationRepo.ListActiveOverlappingForUser(ctx, c.UserID, c.Start, c.End)
		if err != nil {
			return rules.MatchResult{}, fmt.Errorf("failed to load user reservations: %w", err)
		}
	}

	result := rules.MatchRules(c.Candidate, applicable, links, ec)
	for _, bad := range result.Misconfigured() {
		s.log.Warn("skipping misconfigured booking rule",
			zap.String("rule_id", bad.RuleID.String()),
			zap.String("rule_type", bad.RuleType),
			zap.String("error", bad.ConfigError),
		)
	}
	result.Triggered = rules.Prioritize(result.Triggered)
	return result, nil
}

// resolveDirectory gathers the approver sets the triggered rules refer to.
func (s *bookingService) resolveDirectory(ctx context.Context, organizationID uuid.UUID, triggered []rules.RuleCheckResult) (rules.ApproverDirectory, error) {
	var dir rules.ApproverDirectory
	var needPrincipals bool
	var tierIDs, specificRuleIDs []uuid.UUID

	for _, r := range triggered {
		if !r.RequiresApproval {
			continue
		}
		switch r.ApprovalType {
		case model.ApprovalTypeTierMembers:
			if r.ApproverTierID != nil {
				tierIDs = append(tierIDs, *r.ApproverTierID)
			}
		case model.ApprovalTypeSpecificUsers:
			specificRuleIDs = append(specificRuleIDs, r.RuleID)
		default:
			needPrincipals = true
		}
	}

	if needPrincipals {
		principal, err := s.tierRepo.FindPrincipal(ctx, organizationID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.log.Warn("organization has no principal tier", zap.String("organization_id", organizationID.String()))
		case err != nil:
			return dir, fmt.Errorf("failed to load principal tier: %w", err)
		default:
			dir.PrincipalUserIDs, err = s.tierRepo.ListMemberIDs(ctx, principal.ID)
			if err != nil {
				return dir, fmt.Errorf("failed to load principals: %w", err)
			}
		}
	}

	if len(tierIDs) > 0 {
		members, err := s.tierRepo.ListMemberIDsByTiers(ctx, tierIDs)
		if err != nil {
			return dir, fmt.Errorf("failed to load approver tiers: %w", err)
		}
		dir.TierMembers = members
	}

	if len(specificRuleIDs) > 0 {
		approvers, err := s.ruleRepo.ListSpecificApprovers(ctx, specificRuleIDs)
		if err != nil {
			return dir, fmt.Errorf("failed to load rule approvers: %w", err)
		}
		dir.SpecificUsers = make(map[uuid.UUID][]uuid.UUID, len(specificRuleIDs))
		for _, a := range approvers {
			dir.SpecificUsers[a.RuleID] = append(dir.SpecificUsers[a.RuleID], a.UserID)
		}
	}

	return dir, nil
}

// consecutiveLookback is how far around the candidate consecutive_booking rules need to see.
func consecutiveLookback(applicable []model.BookingRule) time.Duration {
	var span time.Duration
	for _, r := range applicable {
		if r.RuleType != model.RuleTypeConsecutiveBooking {
			continue
		}
		cond, err := rules.ParseConditions(r.RuleType, r.Conditions)
		if err != nil {
			continue
		}
		c, ok := cond.(rules.ConsecutiveBookingConditions)
		if !ok {
			continue
		}
		period := 7 * 24 * time.Hour
		if c.Unit == rules.UnitDays {
			period = 24 * time.Hour
		}
		if d := time.Duration(c.Count+1) * period; d > span {
			span = d
		}
	}
	return span
}

func hasRuleType(list []model.BookingRule, ruleType string) bool {
	for _, r := range list {
		if r.RuleType == ruleType {
			return true
		}
	}
	return false
}

func toEvaluation(m rules.MatchResult) Evaluation {
	e := Evaluation{
		Blocked:          m.Blocked(),
		BlockReason:      m.BlockReason(),
		BlockingRules:    m.Blocking,
		TriggeredRules:   m.Triggered,
		RequiresApproval: !m.Blocked() && rules.NeedsApproval(m.Triggered),
	}
	if top, ok := rules.Authoritative(m.Triggered); ok {
		e.Governing = &top
	}
	if e.BlockingRules == nil {
		e.BlockingRules = []rules.RuleCheckResult{}
	}
	if e.TriggeredRules == nil {
		e.TriggeredRules = []rules.RuleCheckResult{}
	}
	return e
}

func toReservationResponse(r model.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:        r.ID.String(),
		AssetID:   r.AssetID.String(),
		UserID:    r.UserID.String(),
		TierID:    r.TierID.String(),
		StartTime: r.StartTime.Format(time.RFC3339),
		EndTime:   r.EndTime.Format(time.RFC3339),
		Status:    r.Status,
		Notes:     r.Notes,
		CreatedAt: r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toApprovalResponseItem(a model.RuleApproval) ApprovalResponseItem {
	item := ApprovalResponseItem{
		ID:             a.ID.String(),
		ReservationID:  a.ReservationID.String(),
		RuleID:         a.RuleID.String(),
		UserID:         a.UserID.String(),
		Status:         a.Status,
		TokenExpiresAt: a.TokenExpiresAt.Format(time.RFC3339),
		CreatedAt:      a.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if a.Rule != nil {
		item.RuleName = a.Rule.Name
		item.RuleType = a.Rule.RuleType
	}
	if a.RespondedAt != nil {
		at := a.RespondedAt.Format(time.RFC3339)
		item.RespondedAt = &at
	}
	return item
}
