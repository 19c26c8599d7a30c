package repository

import (
	"context"
	"time"

	"bookingengine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RuleApprovalRepository interface {
	// CreateBatch inserts all approvals of one reservation in a single statement.
	CreateBatch(ctx context.Context, approvals []model.RuleApproval) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.RuleApproval, error)
	FindByTokenHash(ctx context.Context, hash string) (*model.RuleApproval, error)
	ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]model.RuleApproval, error)
	ListPendingForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.RuleApproval, int64, error)
	// UpdateStatusIfPending resolves a pending approval; false means it was already resolved.
	UpdateStatusIfPending(ctx context.Context, id uuid.UUID, status string, respondedAt time.Time) (bool, error)
}

type ruleApprovalRepository struct {
	db *gorm.DB
}

func NewRuleApprovalRepository(db *gorm.DB) RuleApprovalRepository {
	return &ruleApprovalRepository{db: db}
}

func (r *ruleApprovalRepository) CreateBatch(ctx context.Context, approvals []model.RuleApproval) error {
	if len(approvals) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&approvals).Error
}

func (r *ruleApprovalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.RuleApproval, error) {
	var a model.RuleApproval
	if err := GetDB(ctx, r.db).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ruleApprovalRepository) FindByTokenHash(ctx context.Context, hash string) (*model.RuleApproval, error) {
	var a model.RuleApproval
	if err := GetDB(ctx, r.db).First(&a, "token_hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *ruleApprovalRepository) ListByReservation(ctx context.Context, reservationID uuid.UUID) ([]model.RuleApproval, error) {
	var list []model.RuleApproval
	if err := GetDB(ctx, r.db).Preload("Rule").
		Where("reservation_id = ?", reservationID).
		Order("created_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ruleApprovalRepository) ListPendingForUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.RuleApproval, int64, error) {
	var list []model.RuleApproval
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.RuleApproval{}).Where("user_id = ? AND status = ?", userID, model.ApprovalStatusPending)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Rule").
		Where("user_id = ? AND status = ?", userID, model.ApprovalStatusPending).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *ruleApprovalRepository) UpdateStatusIfPending(ctx context.Context, id uuid.UUID, status string, respondedAt time.Time) (bool, error) {
	result := GetDB(ctx, r.db).Model(&model.RuleApproval{}).
		Where("id = ? AND status = ?", id, model.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"responded_at": respondedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
