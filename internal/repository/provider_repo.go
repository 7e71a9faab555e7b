package repository

import (
	"gorm.io/gorm"

	"bersepay/internal/models"
)

// ProviderRepository reads payment provider configuration records.
type ProviderRepository struct {
	db *gorm.DB
}

func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// FindByID returns a provider record by primary key.
func (r *ProviderRepository) FindByID(id uint) (*models.PaymentProvider, error) {
	var p models.PaymentProvider
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindByCode returns a provider record by its unique code.
func (r *ProviderRepository) FindByCode(code string) (*models.PaymentProvider, error) {
	var p models.PaymentProvider
	if err := r.db.Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// FindDefault returns the active provider flagged default. If more than one
// record somehow qualifies, the lowest priority wins.
func (r *ProviderRepository) FindDefault() (*models.PaymentProvider, error) {
	var p models.PaymentProvider
	err := r.db.
		Where("active = ? AND is_default = ?", true, true).
		Order("priority ASC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindActive returns all active providers ordered by priority.
func (r *ProviderRepository) FindActive() ([]models.PaymentProvider, error) {
	var providers []models.PaymentProvider
	if err := r.db.Where("active = ?", true).Order("priority ASC").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
