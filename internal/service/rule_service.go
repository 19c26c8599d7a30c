package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookingengine/internal/model"
	"bookingengine/internal/repository"
	"bookingengine/internal/rules"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// --- DTOs ---

type RuleRequest struct {
	Name               string          `json:"name" binding:"required"`
	Description        string          `json:"description"`
	RuleType           string          `json:"rule_type" binding:"required,oneof=date_range consecutive_booking concurrent_booking lead_time custom"`
	Conditions         json.RawMessage `json:"conditions" swaggertype:"object"`
	RequiresApproval   bool            `json:"requires_approval"`
	ApprovalType       string          `json:"approval_type" binding:"omitempty,oneof=any_approver all_principals tier_members specific_users"`
	ApproverTierID     *string         `json:"approver_tier_id" binding:"omitempty,uuid"`
	IsOverride         bool            `json:"is_override"`
	Priority           int             `json:"priority"`
	AppliesToAllAssets *bool           `json:"applies_to_all_assets"`
	IsActive           *bool           `json:"is_active"`
	AssetIDs           []string        `json:"asset_ids" binding:"omitempty,dive,uuid"`
	ApproverUserIDs    []string        `json:"approver_user_ids" binding:"omitempty,dive,uuid"`
}

type RuleResponse struct {
	ID                 string          `json:"id"`
	TierID             string          `json:"tier_id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	RuleType           string          `json:"rule_type"`
	Conditions         json.RawMessage `json:"conditions" swaggertype:"object"`
	RequiresApproval   bool            `json:"requires_approval"`
	ApprovalType       string          `json:"approval_type"`
	ApproverTierID     *string         `json:"approver_tier_id"`
	IsOverride         bool            `json:"is_override"`
	Priority           int             `json:"priority"`
	AppliesToAllAssets bool            `json:"applies_to_all_assets"`
	IsActive           bool            `json:"is_active"`
	AssetIDs           []string        `json:"asset_ids"`
	ApproverUserIDs    []string        `json:"approver_user_ids"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at"`
}

// --- Interface ---

type RuleService interface {
	ListRules(ctx context.Context, tierID string) ([]RuleResponse, error)
	GetRule(ctx context.Context, id string) (RuleResponse, error)
	CreateRule(ctx context.Context, userID, tierID string, req RuleRequest) (RuleResponse, error)
	UpdateRule(ctx context.Context, userID, id string, req RuleRequest) (RuleResponse, error)
	// DeleteRule deactivates the rule; approvals already issued under it are kept.
	DeleteRule(ctx context.Context, userID, id string) error
}

type ruleService struct {
	ruleRepo  repository.BookingRuleRepository
	tierRepo  repository.TierRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	log       *zap.Logger
}

func NewRuleService(
	ruleRepo repository.BookingRuleRepository,
	tierRepo repository.TierRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	log *zap.Logger,
) RuleService {
	return &ruleService{
		ruleRepo:  ruleRepo,
		tierRepo:  tierRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		log:       log,
	}
}

// --- Implementation ---

func (s *ruleService) ListRules(ctx context.Context, tierID string) ([]RuleResponse, error) {
	tier, err := s.findTier(ctx, tierID)
	if err != nil {
		return nil, err
	}

	list, err := s.ruleRepo.ListByTier(ctx, tier.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch booking rules: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	links, err := s.ruleRepo.ListAssetLinks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule assets: %w", err)
	}
	approvers, err := s.ruleRepo.ListSpecificApprovers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule approvers: %w", err)
	}

	res := make([]RuleResponse, 0, len(list))
	for _, r := range list {
		res = append(res, toRuleResponse(r, links, approvers))
	}
	return res, nil
}

func (s *ruleService) GetRule(ctx context.Context, id string) (RuleResponse, error) {
	rule, err := s.findRule(ctx, id)
	if err != nil {
		return RuleResponse{}, err
	}
	return s.load(ctx, *rule)
}

func (s *ruleService) CreateRule(ctx context.Context, userID, tierID string, req RuleRequest) (RuleResponse, error) {
	tier, err := s.findTier(ctx, tierID)
	if err != nil {
		return RuleResponse{}, err
	}

	rule := model.BookingRule{
		ID:                 uuid.New(),
		TierID:             tier.ID,
		AppliesToAllAssets: true,
		IsActive:           true,
	}
	assetIDs, approverIDs, err := s.applyRequest(ctx, tier, &rule, req)
	if err != nil {
		return RuleResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ruleRepo.Create(txCtx, &rule); err != nil {
			return fmt.Errorf("failed to create booking rule: %w", err)
		}
		if err := s.saveLinks(txCtx, rule.ID, assetIDs, approverIDs); err != nil {
			return err
		}
		return s.writeAudit(txCtx, userID, model.ActionCreateRule, rule, req)
	})
	if err != nil {
		return RuleResponse{}, err
	}

	s.log.Info("booking rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("tier_id", rule.TierID.String()),
		zap.String("rule_type", rule.RuleType),
	)
	return s.load(ctx, rule)
}

func (s *ruleService) UpdateRule(ctx context.Context, userID, id string, req RuleRequest) (RuleResponse, error) {
	rule, err := s.findRule(ctx, id)
	if err != nil {
		return RuleResponse{}, err
	}
	tier, err := s.tierRepo.FindByID(ctx, rule.TierID)
	if err != nil {
		return RuleResponse{}, fmt.Errorf("failed to load rule tier: %w", err)
	}

	assetIDs, approverIDs, err := s.applyRequest(ctx, tier, rule, req)
	if err != nil {
		return RuleResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ruleRepo.Update(txCtx, rule); err != nil {
			return fmt.Errorf("failed to update booking rule: %w", err)
		}
		if err := s.saveLinks(txCtx, rule.ID, assetIDs, approverIDs); err != nil {
			return err
		}
		return s.writeAudit(txCtx, userID, model.ActionUpdateRule, *rule, req)
	})
	if err != nil {
		return RuleResponse{}, err
	}
	return s.load(ctx, *rule)
}

func (s *ruleService) DeleteRule(ctx context.Context, userID, id string) error {
	rule, err := s.findRule(ctx, id)
	if err != nil {
		return err
	}
	if !rule.IsActive {
		return nil
	}

	rule.IsActive = false
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ruleRepo.Update(txCtx, rule); err != nil {
			return fmt.Errorf("failed to deactivate booking rule: %w", err)
		}
		return s.writeAudit(txCtx, userID, model.ActionDeactivateRule, *rule, map[string]interface{}{
			"tier_id": rule.TierID.String(),
		})
	})
}

// --- Helpers ---

// applyRequest copies req onto rule and validates the result.
func (s *ruleService) applyRequest(ctx context.Context, tier *model.Tier, rule *model.BookingRule, req RuleRequest) ([]uuid.UUID, []uuid.UUID, error) {
	rule.Name = req.Name
	rule.Description = req.Description
	rule.RuleType = req.RuleType
	rule.Conditions = datatypes.JSON(req.Conditions)
	if len(req.Conditions) == 0 && req.RuleType == model.RuleTypeCustom {
		rule.Conditions = datatypes.JSON("{}")
	}
	rule.RequiresApproval = req.RequiresApproval
	rule.ApprovalType = req.ApprovalType
	if rule.ApprovalType == "" {
		rule.ApprovalType = model.ApprovalTypeAnyApprover
	}
	rule.IsOverride = req.IsOverride
	rule.Priority = req.Priority
	if req.AppliesToAllAssets != nil {
		rule.AppliesToAllAssets = *req.AppliesToAllAssets
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	rule.ApproverTierID = nil
	if req.ApproverTierID != nil && *req.ApproverTierID != "" {
		approverTier, err := s.findTier(ctx, *req.ApproverTierID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: approver tier not found", ErrInvalidConditions)
		}
		if approverTier.OrganizationID != tier.OrganizationID {
			return nil, nil, fmt.Errorf("%w: approver tier belongs to another organization", ErrInvalidConditions)
		}
		rule.ApproverTierID = &approverTier.ID
	}

	if err := rules.ValidateRule(*rule); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidConditions, err)
	}

	assetIDs, err := parseUUIDs(req.AssetIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid asset id", ErrInvalidConditions)
	}
	if !rule.AppliesToAllAssets && len(assetIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: asset_ids are required when the rule does not apply to all assets", ErrInvalidConditions)
	}
	if rule.AppliesToAllAssets {
		assetIDs = nil
	}

	approverIDs, err := parseUUIDs(req.ApproverUserIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid approver user id", ErrInvalidConditions)
	}
	if rule.ApprovalType != model.ApprovalTypeSpecificUsers {
		approverIDs = nil
	} else if rule.RequiresApproval && len(approverIDs) == 0 {
		return nil, nil, fmt.Errorf("%w: approver_user_ids are required for specific_users approval", ErrInvalidConditions)
	}

	return assetIDs, approverIDs, nil
}

func (s *ruleService) saveLinks(ctx context.Context, ruleID uuid.UUID, assetIDs, approverIDs []uuid.UUID) error {
	if err := s.ruleRepo.ReplaceAssetLinks(ctx, ruleID, assetIDs); err != nil {
		return fmt.Errorf("failed to save rule assets: %w", err)
	}
	if err := s.ruleRepo.ReplaceApprovers(ctx, ruleID, approverIDs); err != nil {
		return fmt.Errorf("failed to save rule approvers: %w", err)
	}
	return nil
}

func (s *ruleService) load(ctx context.Context, rule model.BookingRule) (RuleResponse, error) {
	ids := []uuid.UUID{rule.ID}
	links, err := s.ruleRepo.ListAssetLinks(ctx, ids)
	if err != nil {
		return RuleResponse{}, fmt.Errorf("failed to fetch rule assets: %w", err)
	}
	approvers, err := s.ruleRepo.ListSpecificApprovers(ctx, ids)
	if err != nil {
		return RuleResponse{}, fmt.Errorf("failed to fetch rule approvers: %w", err)
	}
	return toRuleResponse(rule, links, approvers), nil
}

func (s *ruleService) findTier(ctx context.Context, id string) (*model.Tier, error) {
	tierID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrTierNotFound
	}
	tier, err := s.tierRepo.FindByID(ctx, tierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to load tier: %w", err)
	}
	return tier, nil
}

func (s *ruleService) findRule(ctx context.Context, id string) (*model.BookingRule, error) {
	ruleID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrRuleNotFound
	}
	rule, err := s.ruleRepo.FindByID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to load booking rule: %w", err)
	}
	return rule, nil
}

func (s *ruleService) writeAudit(ctx context.Context, userID, action string, rule model.BookingRule, details interface{}) error {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}
	payload, _ := json.Marshal(details)
	audit := &model.AuditLog{
		UserID:     uid,
		Action:     action,
		EntityID:   rule.ID.String(),
		EntityName: rule.Name,
		Details:    string(payload),
	}
	if err := s.auditRepo.Log(ctx, audit); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(values))
	seen := make(map[uuid.UUID]bool, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func toRuleResponse(r model.BookingRule, links []model.RuleAsset, approvers []model.RuleApprover) RuleResponse {
	res := RuleResponse{
		ID:                 r.ID.String(),
		TierID:             r.TierID.String(),
		Name:               r.Name,
		Description:        r.Description,
		RuleType:           r.RuleType,
		Conditions:         json.RawMessage(r.Conditions),
		RequiresApproval:   r.RequiresApproval,
		ApprovalType:       r.ApprovalType,
		IsOverride:         r.IsOverride,
		Priority:           r.Priority,
		AppliesToAllAssets: r.AppliesToAllAssets,
		IsActive:           r.IsActive,
		AssetIDs:           []string{},
		ApproverUserIDs:    []string{},
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          r.UpdatedAt.Format(time.RFC3339),
	}
	if len(res.Conditions) == 0 {
		res.Conditions = json.RawMessage("null")
	}
	if r.ApproverTierID != nil {
		id := r.ApproverTierID.String()
		res.ApproverTierID = &id
	}
	for _, l := range links {
		if l.RuleID == r.ID {
			res.AssetIDs = append(res.AssetIDs, l.AssetID.String())
		}
	}
	for _, a := range approvers {
		if a.RuleID == r.ID {
			res.ApproverUserIDs = append(res.ApproverUserIDs, a.UserID.String())
		}
	}
	return res
}
