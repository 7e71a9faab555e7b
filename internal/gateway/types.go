package gateway

import (
	"context"
	"net/http"
	"time"
)

// Status is the canonical payment status every provider vocabulary collapses into.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsPaid reports whether the status represents settled funds.
func (s Status) IsPaid() bool {
	return s == StatusCompleted
}

// IsFinal reports whether no further provider-side transition is expected.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// PayoutStatus is the canonical vocabulary for outbound transfers. It is
// deliberately separate from Status: payouts have their own lifecycle.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "PENDING"
	PayoutProcessing PayoutStatus = "PROCESSING"
	PayoutPaid       PayoutStatus = "PAID"
	PayoutFailed     PayoutStatus = "FAILED"
	PayoutCanceled   PayoutStatus = "CANCELED"
)

// EventType is the closed set of canonical webhook event types.
type EventType string

const (
	EventPaymentSucceeded  EventType = "payment_succeeded"
	EventPaymentFailed     EventType = "payment_failed"
	EventPaymentCancelled  EventType = "payment_cancelled"
	EventPaymentProcessing EventType = "payment_processing"
)

// CreateIntentRequest is the uniform shape for starting a payment.
// Amount is in the smallest currency unit (sen, cents).
type CreateIntentRequest struct {
	Amount           int64
	Currency         string
	Description      string
	Metadata         map[string]string
	CustomerRef      string
	PaymentMethodRef string
	CallbackURL      string
	RedirectURL      string
}

// PaymentIntent is the provider-side handle for one attempted payment.
type PaymentIntent struct {
	IntentID     string            `json:"intent_id"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Status       Status            `json:"status"`
	RawStatus    string            `json:"raw_status,omitempty"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	PaymentURL   string            `json:"payment_url,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// CaptureResult reports a finalized capture.
type CaptureResult struct {
	IntentID   string    `json:"intent_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	CapturedAt time.Time `json:"captured_at"`
}

// RefundRequest asks for a full or partial refund of a settled transaction.
// Amount of 0 means a full refund.
type RefundRequest struct {
	TransactionID string
	Amount        int64
	Reason        string
}

// RefundResult reports an accepted refund.
type RefundResult struct {
	RefundID      string    `json:"refund_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// CustomerRequest creates a provider-side customer record.
type CustomerRequest struct {
	Email string
	Name  string
	Phone string
}

// Customer is a provider-side customer reference. NotRequired marks providers
// that have no customer object at all, so callers do not mistake the empty
// reference for a failure.
type Customer struct {
	CustomerRef string `json:"customer_ref,omitempty"`
	Email       string `json:"email,omitempty"`
	NotRequired bool   `json:"not_required,omitempty"`
}

// PaymentMethod is a stored, tokenized payment instrument.
type PaymentMethod struct {
	MethodRef string `json:"method_ref"`
	Type      string `json:"type"`
	Brand     string `json:"brand,omitempty"`
	Last4     string `json:"last4,omitempty"`
}

// PayoutRequest moves funds out to a recipient.
type PayoutRequest struct {
	Amount       int64
	Currency     string
	RecipientRef string
	Description  string
	Metadata     map[string]string
}

// PayoutResult reports a payout and its own status vocabulary.
type PayoutResult struct {
	PayoutID  string       `json:"payout_id"`
	Amount    int64        `json:"amount"`
	Currency  string       `json:"currency"`
	Status    PayoutStatus `json:"status"`
	RawStatus string       `json:"raw_status,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// WebhookEvent is the canonical form of one provider callback. Unmapped is set
// when the provider reported a status outside the vocabulary the integration
// claims to support; the pipeline logs these loudly and the canonical status
// falls back to PENDING as an explicit, conservative choice.
type WebhookEvent struct {
	EventID       string            `json:"event_id"`
	Type          EventType         `json:"type"`
	Status        Status            `json:"status"`
	RawStatus     string            `json:"raw_status,omitempty"`
	Unmapped      bool              `json:"-"`
	IntentID      string            `json:"intent_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// FeeQuote is the derived fee breakdown for one amount. Never persisted.
type FeeQuote struct {
	PlatformFee int64 `json:"platform_fee"`
	GatewayFee  int64 `json:"gateway_fee"`
	TotalFees   int64 `json:"total_fees"`
}

// Gateway is the capability contract every provider integration satisfies.
// Implementations are stateless facades bound to one provider's configuration;
// all network calls honor the caller's context deadline and are never retried
// internally (a retried intent creation can double-charge).
type Gateway interface {
	// Code returns the provider integration identifier, e.g. "billplz".
	Code() string

	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error)
	// ConfirmPayment re-fetches the current intent state. Safe to call repeatedly.
	ConfirmPayment(ctx context.Context, intentID string) (*PaymentIntent, error)
	// CapturePayment finalizes an intent. Amount of 0 captures the full amount.
	// Fails with an invalid-state error unless the remote status allows capture.
	CapturePayment(ctx context.Context, intentID string, amount int64) (*CaptureResult, error)
	CancelPayment(ctx context.Context, intentID string) error
	RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error)
	GetPaymentStatus(ctx context.Context, intentID string) (*PaymentIntent, error)

	CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error)
	AddPaymentMethod(ctx context.Context, customerRef, methodToken string) (*PaymentMethod, error)
	RemovePaymentMethod(ctx context.Context, methodRef string) error
	ListPaymentMethods(ctx context.Context, customerRef string) ([]PaymentMethod, error)

	CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResult, error)

	// VerifyWebhookSignature must fail closed: a missing or misconfigured
	// webhook secret in a live environment is a verification failure.
	VerifyWebhookSignature(signature string, payload []byte, headers http.Header) bool
	// WebhookSignatureHeader names the transport header carrying the signature.
	WebhookSignatureHeader() string
	ParseWebhookEvent(payload []byte) (*WebhookEvent, error)

	// CalculateFees is a pure function of the provider fee model. No network.
	CalculateFees(amount int64, currency string) FeeQuote
	SupportedPaymentMethods() []string
	SupportedCurrencies() []string
	HealthCheck(ctx context.Context) bool
}
