package gateway

import (
	"fmt"

	"bersepay/internal/models"
)

// FromRecord instantiates the integration a provider record's code names.
// Credentials are validated here, eagerly: a misconfigured provider must fail
// at construction, not on the first network call deep inside a request.
//
// Credential column usage per integration:
//
//	stripe       secret_key = API secret, webhook_secret = signing secret
//	billplz      api_key = API key, secret_key = collection id, webhook_secret = x-signature key
//	toyyibpay    secret_key = user secret key, api_key = category code, webhook_secret = callback token
//	banktransfer webhook_secret = back-office admin token
func FromRecord(p *models.PaymentProvider) (Gateway, error) {
	fees := FeeSchedule{
		PlatformBps:  p.PlatformBps,
		GatewayBps:   p.GatewayBps,
		GatewayFixed: p.GatewayFixed,
	}

	switch p.Code {
	case "stripe":
		if p.SecretKey == "" {
			return nil, E(KindConfiguration, p.Code, "construct", "secret key is not set")
		}
		return NewStripeGateway(p.SecretKey, p.WebhookSecret, p.IsLive(), fees), nil

	case "billplz":
		if p.APIKey == "" {
			return nil, E(KindConfiguration, p.Code, "construct", "api key is not set")
		}
		if p.SecretKey == "" {
			return nil, E(KindConfiguration, p.Code, "construct", "collection id is not set")
		}
		return NewBillplzGateway(p.APIKey, p.SecretKey, p.WebhookSecret, p.IsLive(), fees), nil

	case "toyyibpay":
		if p.SecretKey == "" {
			return nil, E(KindConfiguration, p.Code, "construct", "user secret key is not set")
		}
		if p.APIKey == "" {
			return nil, E(KindConfiguration, p.Code, "construct", "category code is not set")
		}
		return NewToyyibPayGateway(p.SecretKey, p.APIKey, p.WebhookSecret, p.IsLive(), fees), nil

	case "banktransfer":
		if p.IsLive() && p.WebhookSecret == "" {
			return nil, E(KindConfiguration, p.Code, "construct", "admin token is not set")
		}
		return NewBankTransferGateway(p.WebhookSecret, p.IsLive(), fees), nil

	default:
		return nil, E(KindConfiguration, p.Code, "construct",
			fmt.Sprintf("unsupported provider code: %s", p.Code))
	}
}
