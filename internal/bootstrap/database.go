package bootstrap

import (
	"fmt"

	"gorm.io/gorm"

	"bersepay/internal/models"
)

// MigrateAndSeed ensures required tables exist and inserts a baseline provider
// set when the configuration store is empty.
func MigrateAndSeed(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedDefaults(db); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.PaymentProvider{},
		&models.RoutingRule{},
		&models.PaymentLedger{},
	}
}

// seedDefaults inserts a manual bank-transfer provider as the default so a
// fresh install can take payments before any processor is configured.
func seedDefaults(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.PaymentProvider{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Create(&models.PaymentProvider{
		Code:        "banktransfer",
		Name:        "Manual Bank Transfer",
		Environment: "test",
		Currencies:  `["MYR","SGD"]`,
		Countries:   `["MY","SG"]`,
		Active:      true,
		IsDefault:   true,
		Priority:    100,
	}).Error
}
