package repository

import (
	"context"

	"bookingengine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingRuleRepository interface {
	Create(ctx context.Context, rule *model.BookingRule) error
	Update(ctx context.Context, rule *model.BookingRule) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BookingRule, error)
	ListByTier(ctx context.Context, tierID uuid.UUID) ([]model.BookingRule, error)
	ListActiveByTier(ctx context.Context, tierID uuid.UUID) ([]model.BookingRule, error)
	ListAssetLinks(ctx context.Context, ruleIDs []uuid.UUID) ([]model.RuleAsset, error)
	ListSpecificApprovers(ctx context.Context, ruleIDs []uuid.UUID) ([]model.RuleApprover, error)
	ReplaceAssetLinks(ctx context.Context, ruleID uuid.UUID, assetIDs []uuid.UUID) error
	ReplaceApprovers(ctx context.Context, ruleID uuid.UUID, userIDs []uuid.UUID) error
}

type bookingRuleRepository struct {
	db *gorm.DB
}

func NewBookingRuleRepository(db *gorm.DB) BookingRuleRepository {
	return &bookingRuleRepository{db: db}
}

func (r *bookingRuleRepository) Create(ctx context.Context, rule *model.BookingRule) error {
	return GetDB(ctx, r.db).Create(rule).Error
}

func (r *bookingRuleRepository) Update(ctx context.Context, rule *model.BookingRule) error {
	return GetDB(ctx, r.db).Save(rule).Error
}

func (r *bookingRuleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BookingRule, error) {
	var rule model.BookingRule
	if err := GetDB(ctx, r.db).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *bookingRuleRepository) ListByTier(ctx context.Context, tierID uuid.UUID) ([]model.BookingRule, error) {
	var rules []model.BookingRule
	if err := GetDB(ctx, r.db).
		Where("tier_id = ?", tierID).
		Order("is_override DESC, priority ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *bookingRuleRepository) ListActiveByTier(ctx context.Context, tierID uuid.UUID) ([]model.BookingRule, error) {
	var rules []model.BookingRule
	if err := GetDB(ctx, r.db).
		Where("tier_id = ? AND is_active = ?", tierID, true).
		Order("priority ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *bookingRuleRepository) ListAssetLinks(ctx context.Context, ruleIDs []uuid.UUID) ([]model.RuleAsset, error) {
	var links []model.RuleAsset
	if len(ruleIDs) == 0 {
		return links, nil
	}
	if err := GetDB(ctx, r.db).Where("rule_id IN ?", ruleIDs).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *bookingRuleRepository) ListSpecificApprovers(ctx context.Context, ruleIDs []uuid.UUID) ([]model.RuleApprover, error) {
	var approvers []model.RuleApprover
	if len(ruleIDs) == 0 {
		return approvers, nil
	}
	if err := GetDB(ctx, r.db).Where("rule_id IN ?", ruleIDs).Find(&approvers).Error; err != nil {
		return nil, err
	}
	return approvers, nil
}

func (r *bookingRuleRepository) ReplaceAssetLinks(ctx context.Context, ruleID uuid.UUID, assetIDs []uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("rule_id = ?", ruleID).Delete(&model.RuleAsset{}).Error; err != nil {
		return err
	}
	if len(assetIDs) == 0 {
		return nil
	}
	links := make([]model.RuleAsset, 0, len(assetIDs))
	for _, id := range assetIDs {
		links = append(links, model.RuleAsset{RuleID: ruleID, AssetID: id})
	}
	return db.Create(&links).Error
}

func (r *bookingRuleRepository) ReplaceApprovers(ctx context.Context, ruleID uuid.UUID, userIDs []uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("rule_id = ?", ruleID).Delete(&model.RuleApprover{}).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}
	approvers := make([]model.RuleApprover, 0, len(userIDs))
	for _, id := range userIDs {
		approvers = append(approvers, model.RuleApprover{RuleID: ruleID, UserID: id})
	}
	return db.Create(&approvers).Error
}
