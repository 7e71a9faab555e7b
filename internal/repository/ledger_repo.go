package repository

import (
	"time"

	"gorm.io/gorm"

	"bersepay/internal/models"
)

// LedgerRepository owns the payment ledger rows that webhook events reconcile
// against.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// FindByIntentID returns the ledger row for a provider intent id.
func (r *LedgerRepository) FindByIntentID(intentID string) (*models.PaymentLedger, error) {
	var row models.PaymentLedger
	if err := r.db.Where("intent_id = ?", intentID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Create inserts a new ledger row.
func (r *LedgerRepository) Create(row *models.PaymentLedger) error {
	return r.db.Create(row).Error
}

// UpdateStatus records a status transition together with the event that
// caused it.
func (r *LedgerRepository) UpdateStatus(intentID, status, eventID string, paidAt *time.Time) error {
	updates := map[string]interface{}{
		"status":        status,
		"last_event_id": eventID,
		"updated_at":    time.Now(),
	}
	if paidAt != nil {
		updates["paid_at"] = paidAt
	}
	return r.db.Model(&models.PaymentLedger{}).
		Where("intent_id = ?", intentID).
		Updates(updates).Error
}
