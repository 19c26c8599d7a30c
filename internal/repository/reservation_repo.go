package repository

import (
	"context"
	"time"

	"bookingengine/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var activeReservationStatuses = []string{model.ReservationPending, model.ReservationApproved}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *model.Reservation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	// LockByID reads the reservation with SELECT ... FOR UPDATE. It fails with ErrNoTransaction outside RunInTx.
	LockByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	// TransitionStatus moves the reservation to `to` only if it is still in `from`.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	ListActiveForAsset(ctx context.Context, assetID uuid.UUID, from, to time.Time) ([]model.Reservation, error)
	ListActiveOverlappingForUser(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]model.Reservation, error)
	HasActiveOverlapForAsset(ctx context.Context, assetID uuid.UUID, start, end time.Time) (bool, error)
	// LockAsset takes a transaction-scoped advisory lock on the asset so that
	// overlap checks and inserts for it are serialized. Requires RunInTx.
	LockAsset(ctx context.Context, assetID uuid.UUID) error
}

type reservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	return GetDB(ctx, r.db).Create(reservation).Error
}

func (r *reservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	if err := GetDB(ctx, r.db).First(&res, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	if !InTx(ctx) {
		return nil, ErrNoTransaction
	}
	var res model.Reservation
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) LockAsset(ctx context.Context, assetID uuid.UUID) error {
	if !InTx(ctx) {
		return ErrNoTransaction
	}
	return GetDB(ctx, r.db).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", assetID.String()).Error
}

func (r *reservationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result := GetDB(ctx, r.db).Model(&model.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListActiveForAsset returns active reservations on the asset starting inside [from, to].
func (r *reservationRepository) ListActiveForAsset(ctx context.Context, assetID uuid.UUID, from, to time.Time) ([]model.Reservation, error) {
	var list []model.Reservation
	if err := GetDB(ctx, r.db).
		Where("asset_id = ? AND status IN ? AND start_time >= ? AND start_time <= ?", assetID, activeReservationStatuses, from, to).
		Order("start_time ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListActiveOverlappingForUser returns the user's active reservations with start < end AND end_time > start.
func (r *reservationRepository) ListActiveOverlappingForUser(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]model.Reservation, error) {
	var list []model.Reservation
	if err := GetDB(ctx, r.db).
		Where("user_id = ? AND status IN ? AND start_time < ? AND end_time > ?", userID, activeReservationStatuses, end, start).
		Order("start_time ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *reservationRepository) HasActiveOverlapForAsset(ctx context.Context, assetID uuid.UUID, start, end time.Time) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Reservation{}).
		Where("asset_id = ? AND status IN ? AND start_time < ? AND end_time > ?", assetID, activeReservationStatuses, end, start).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
