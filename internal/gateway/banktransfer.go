package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// BankTransferGateway handles manual bank transfers. It never talks to a
// processor: an intent is just a transfer reference the payer quotes, and the
// back office posts a confirmation callback once the transfer is sighted.
type BankTransferGateway struct {
	adminToken string
	live       bool
	fees       FeeSchedule
}

func NewBankTransferGateway(adminToken string, live bool, fees FeeSchedule) *BankTransferGateway {
	return &BankTransferGateway{adminToken: adminToken, live: live, fees: fees}
}

func (g *BankTransferGateway) Code() string {
	return "banktransfer"
}

func (g *BankTransferGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, E(KindInvalidState, g.Code(), "create_intent", "amount must be positive")
	}
	expires := time.Now().Add(72 * time.Hour)
	return &PaymentIntent{
		IntentID:  "bt_" + uuid.NewString(),
		Status:    StatusPending,
		RawStatus: "awaiting_transfer",
		Amount:    req.Amount,
		Currency:  req.Currency,
		ExpiresAt: &expires,
		Metadata:  req.Metadata,
	}, nil
}

// ConfirmPayment cannot observe a manual transfer; the state only moves when
// the back office posts its confirmation callback.
func (g *BankTransferGateway) ConfirmPayment(ctx context.Context, intentID string) (*PaymentIntent, error) {
	return &PaymentIntent{
		IntentID:  intentID,
		Status:    StatusPending,
		RawStatus: "awaiting_transfer",
	}, nil
}

func (g *BankTransferGateway) GetPaymentStatus(ctx context.Context, intentID string) (*PaymentIntent, error) {
	return g.ConfirmPayment(ctx, intentID)
}

func (g *BankTransferGateway) CapturePayment(ctx context.Context, intentID string, amount int64) (*CaptureResult, error) {
	return nil, E(KindInvalidState, g.Code(), "capture",
		"manual transfers settle via back-office confirmation, not capture")
}

func (g *BankTransferGateway) CancelPayment(ctx context.Context, intentID string) error {
	// Nothing provider-side to invalidate; the reference simply goes unused.
	return nil
}

func (g *BankTransferGateway) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "refund",
		"manual transfers are refunded out of band")
}

func (g *BankTransferGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	return &Customer{Email: req.Email, NotRequired: true}, nil
}

func (g *BankTransferGateway) AddPaymentMethod(ctx context.Context, customerRef, methodToken string) (*PaymentMethod, error) {
	return nil, E(KindNotImplemented, g.Code(), "add_payment_method",
		"manual transfers have no stored payment methods")
}

func (g *BankTransferGateway) RemovePaymentMethod(ctx context.Context, methodRef string) error {
	return E(KindNotImplemented, g.Code(), "remove_payment_method",
		"manual transfers have no stored payment methods")
}

func (g *BankTransferGateway) ListPaymentMethods(ctx context.Context, customerRef string) ([]PaymentMethod, error) {
	return []PaymentMethod{}, nil
}

func (g *BankTransferGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "create_payout",
		"manual payouts are handled by finance")
}

func (g *BankTransferGateway) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "payout_status",
		"manual payouts are handled by finance")
}

// VerifyWebhookSignature trusts only the back-office admin token.
func (g *BankTransferGateway) VerifyWebhookSignature(signature string, payload []byte, headers http.Header) bool {
	return verifySharedToken(g.live, g.adminToken, signature)
}

func (g *BankTransferGateway) WebhookSignatureHeader() string {
	return "X-Admin-Token"
}

type bankTransferCallback struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
	Note      string `json:"note"`
}

var bankTransferStatuses = map[string]Status{
	"confirmed": StatusCompleted,
	"rejected":  StatusFailed,
	"expired":   StatusCancelled,
	"pending":   StatusPending,
}

func (g *BankTransferGateway) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var cb bankTransferCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "parse_webhook", "malformed payload", err)
	}
	if cb.Reference == "" {
		return nil, E(KindProvider, g.Code(), "parse_webhook", "missing transfer reference")
	}

	status, known := bankTransferStatuses[cb.Status]
	if !known {
		status = StatusPending
	}

	var eventType EventType
	switch status {
	case StatusCompleted:
		eventType = EventPaymentSucceeded
	case StatusFailed:
		eventType = EventPaymentFailed
	case StatusCancelled:
		eventType = EventPaymentCancelled
	default:
		eventType = EventPaymentProcessing
	}

	event := &WebhookEvent{
		EventID:   "banktransfer:" + cb.Reference + ":" + cb.Status,
		Type:      eventType,
		Status:    status,
		RawStatus: cb.Status,
		Unmapped:  !known,
		IntentID:  cb.Reference,
		Amount:    cb.Amount,
		Currency:  cb.Currency,
		CreatedAt: time.Now(),
	}
	if cb.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, cb.PaidAt); err == nil {
			event.PaidAt = &t
		}
	}
	return event, nil
}

func (g *BankTransferGateway) CalculateFees(amount int64, currency string) FeeQuote {
	return g.fees.Quote(amount)
}

func (g *BankTransferGateway) SupportedPaymentMethods() []string {
	return []string{"bank_transfer"}
}

func (g *BankTransferGateway) SupportedCurrencies() []string {
	return []string{"MYR", "SGD"}
}

func (g *BankTransferGateway) HealthCheck(ctx context.Context) bool {
	return true
}
