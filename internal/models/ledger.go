package models

import "time"

// PaymentLedger maps to the `payment_ledger` table: the durable local record a
// webhook event reconciles against, keyed by the provider intent id.
type PaymentLedger struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	IntentID     string     `gorm:"column:intent_id;size:200;uniqueIndex" json:"intent_id"`
	ProviderCode string     `gorm:"column:provider_code;size:50" json:"provider_code"`
	Amount       int64      `gorm:"column:amount" json:"amount"`
	Currency     string     `gorm:"column:currency;size:10" json:"currency"`
	Status       string     `gorm:"column:status;size:20" json:"status"`
	LastEventID  string     `gorm:"column:last_event_id;size:200" json:"last_event_id"`
	PaidAt       *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (PaymentLedger) TableName() string {
	return "payment_ledger"
}
