package repository

import (
	"context"

	"bookingengine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TierRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Tier, error)
	// FindPrincipal returns the organization's priority-1 tier.
	FindPrincipal(ctx context.Context, organizationID uuid.UUID) (*model.Tier, error)
	ListMemberIDs(ctx context.Context, tierID uuid.UUID) ([]uuid.UUID, error)
	IsMember(ctx context.Context, tierID, userID uuid.UUID) (bool, error)
	ListMemberIDsByTiers(ctx context.Context, tierIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
}

type tierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) TierRepository {
	return &tierRepository{db: db}
}

func (r *tierRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Tier, error) {
	var tier model.Tier
	if err := GetDB(ctx, r.db).First(&tier, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *tierRepository) FindPrincipal(ctx context.Context, organizationID uuid.UUID) (*model.Tier, error) {
	var tier model.Tier
	if err := GetDB(ctx, r.db).
		Where("organization_id = ? AND priority = ?", organizationID, model.PrincipalTierPriority).
		Order("created_at ASC").
		First(&tier).Error; err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *tierRepository) ListMemberIDs(ctx context.Context, tierID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := GetDB(ctx, r.db).Model(&model.TierMember{}).
		Where("tier_id = ?", tierID).
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *tierRepository) IsMember(ctx context.Context, tierID, userID uuid.UUID) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.TierMember{}).
		Where("tier_id = ? AND user_id = ?", tierID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *tierRepository) ListMemberIDsByTiers(ctx context.Context, tierIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(tierIDs))
	if len(tierIDs) == 0 {
		return out, nil
	}

	var members []model.TierMember
	if err := GetDB(ctx, r.db).Where("tier_id IN ?", tierIDs).Order("user_id").Find(&members).Error; err != nil {
		return nil, err
	}
	for _, m := range members {
		out[m.TierID] = append(out[m.TierID], m.UserID)
	}
	return out, nil
}
