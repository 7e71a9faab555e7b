package models

import "encoding/json"

// PaymentProvider maps to the `payment_providers` table. It is administered
// externally; this service only reads it.
type PaymentProvider struct {
	ID            uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Code          string `gorm:"column:code;size:50;uniqueIndex" json:"code"`
	Name          string `gorm:"column:name;size:200" json:"name"`
	Environment   string `gorm:"column:environment;size:20;default:test" json:"environment"`
	APIKey        string `gorm:"column:api_key;size:500" json:"-"`
	SecretKey     string `gorm:"column:secret_key;size:500" json:"-"`
	WebhookSecret string `gorm:"column:webhook_secret;size:500" json:"-"`
	Currencies    string `gorm:"column:currencies;type:text" json:"currencies"`
	Countries     string `gorm:"column:countries;type:text" json:"countries"`
	Active        bool   `gorm:"column:active;default:true" json:"active"`
	IsDefault     bool   `gorm:"column:is_default;default:false" json:"is_default"`
	Priority      int    `gorm:"column:priority;default:100" json:"priority"`
	PlatformBps   int    `gorm:"column:platform_bps;default:0" json:"platform_bps"`
	GatewayBps    int    `gorm:"column:gateway_bps;default:0" json:"gateway_bps"`
	GatewayFixed  int64  `gorm:"column:gateway_fixed;default:0" json:"gateway_fixed"`
}

func (PaymentProvider) TableName() string {
	return "payment_providers"
}

// IsLive reports whether the record points at the provider's production
// environment. Anything other than "live" is treated as sandbox.
func (p *PaymentProvider) IsLive() bool {
	return p.Environment == "live"
}

// CurrencyList decodes the JSON currency column. Empty column means no
// declared restriction.
func (p *PaymentProvider) CurrencyList() []string {
	return parseJSONList(p.Currencies)
}

// CountryList decodes the JSON country column.
func (p *PaymentProvider) CountryList() []string {
	return parseJSONList(p.Countries)
}

func parseJSONList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}
