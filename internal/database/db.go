package database

import (
	"fmt"

	"bookingengine/internal/model"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string, autoMigrate bool, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if !autoMigrate {
		return db, nil
	}

	err = db.AutoMigrate(
		&model.Tier{},
		&model.TierMember{},
		&model.BookingRule{},
		&model.RuleAsset{},
		&model.RuleApprover{},
		&model.Reservation{},
		&model.RuleApproval{},
		&model.AuditLog{},
	)
	if err != nil {
		log.Warn("Failed to auto-migrate models", zap.Error(err))
	}

	return db, nil
}
