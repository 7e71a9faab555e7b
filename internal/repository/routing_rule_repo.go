package repository

import (
	"gorm.io/gorm"

	"bersepay/internal/models"
)

// RoutingRuleRepository reads routing rule configuration records.
type RoutingRuleRepository struct {
	db *gorm.DB
}

func NewRoutingRuleRepository(db *gorm.DB) *RoutingRuleRepository {
	return &RoutingRuleRepository{db: db}
}

// FindActiveOrdered returns active rules in ascending priority order. Rule
// evaluation depends on this ordering being stable, so ties break on id.
func (r *RoutingRuleRepository) FindActiveOrdered() ([]models.RoutingRule, error) {
	var rules []models.RoutingRule
	err := r.db.
		Where("active = ?", true).
		Order("priority ASC, id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
