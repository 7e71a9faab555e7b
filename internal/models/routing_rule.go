package models

// RoutingRule maps to the `routing_rules` table. Rules are evaluated in
// ascending priority order; Conditions holds a JSON object of field
// predicates (scalar equality, {min,max}, {in:[...]}, {regex:"..."}).
type RoutingRule struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name       string `gorm:"column:name;size:200" json:"name"`
	Priority   int    `gorm:"column:priority;index" json:"priority"`
	Conditions string `gorm:"column:conditions;type:text" json:"conditions"`
	ProviderID uint   `gorm:"column:provider_id" json:"provider_id"`
	Active     bool   `gorm:"column:active;default:true" json:"active"`
}

func (RoutingRule) TableName() string {
	return "routing_rules"
}
