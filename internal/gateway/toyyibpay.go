package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bersepay/internal/pkg/httpclient"
)

const (
	toyyibpayAPIBase     = "https://toyyibpay.com"
	toyyibpaySandboxBase = "https://dev.toyyibpay.com"
)

// ToyyibPayGateway implements the Gateway interface for toyyibPay, a Malaysian
// FPX processor with a form-encoded API and numeric status codes. Callbacks
// carry no payload signature; authenticity rests on a shared callback token.
type ToyyibPayGateway struct {
	secretKey     string
	categoryCode  string
	callbackToken string
	live          bool
	fees          FeeSchedule
	client        *httpclient.Client
}

func NewToyyibPayGateway(secretKey, categoryCode, callbackToken string, live bool, fees FeeSchedule) *ToyyibPayGateway {
	base := toyyibpaySandboxBase
	if live {
		base = toyyibpayAPIBase
	}
	return &ToyyibPayGateway{
		secretKey:     secretKey,
		categoryCode:  categoryCode,
		callbackToken: callbackToken,
		live:          live,
		fees:          fees,
		client: httpclient.New().
			WithTimeout(30 * time.Second).
			WithBaseURL(base),
	}
}

// WithAPIBase points the integration at a different API host. Used against
// mock provider servers in tests.
func (g *ToyyibPayGateway) WithAPIBase(url string) *ToyyibPayGateway {
	g.client.WithBaseURL(url)
	return g
}

func (g *ToyyibPayGateway) Code() string {
	return "toyyibpay"
}

// toyyibPay reports payment state as numeric strings.
var toyyibpayStatuses = map[string]Status{
	"1": StatusCompleted,
	"2": StatusPending,
	"3": StatusFailed,
	"4": StatusPending,
}

func mapToyyibpayStatus(raw string) (Status, bool) {
	s, ok := toyyibpayStatuses[raw]
	if !ok {
		return StatusPending, false
	}
	return s, true
}

func (g *ToyyibPayGateway) paymentURL(billCode string) string {
	base := toyyibpaySandboxBase
	if g.live {
		base = toyyibpayAPIBase
	}
	return base + "/" + billCode
}

func (g *ToyyibPayGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, E(KindInvalidState, g.Code(), "create_intent", "amount must be positive")
	}

	form := map[string]string{
		"userSecretKey":           g.secretKey,
		"categoryCode":            g.categoryCode,
		"billName":                req.Description,
		"billDescription":         req.Description,
		"billPriceSetting":        "1",
		"billPayorInfo":           "0",
		"billAmount":              strconv.FormatInt(req.Amount, 10),
		"billReturnUrl":           req.RedirectURL,
		"billCallbackUrl":         req.CallbackURL,
		"billExternalReferenceNo": req.Metadata["reference"],
	}
	resp, err := g.client.PostForm(ctx, "/index.php/api/createBill", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_intent", "request failed", err)
	}
	if !resp.OK() {
		return nil, E(KindProvider, g.Code(), "create_intent",
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	var raw []struct {
		BillCode string `json:"BillCode"`
	}
	if err := json.Unmarshal(resp.Body, &raw); err != nil || len(raw) == 0 || raw[0].BillCode == "" {
		return nil, E(KindProvider, g.Code(), "create_intent", "no bill code returned")
	}

	return &PaymentIntent{
		IntentID:   raw[0].BillCode,
		Status:     StatusPending,
		RawStatus:  "2",
		Amount:     req.Amount,
		Currency:   "MYR",
		PaymentURL: g.paymentURL(raw[0].BillCode),
		Metadata:   req.Metadata,
	}, nil
}

type toyyibpayTransaction struct {
	BillPaymentStatus    string `json:"billpaymentStatus"`
	BillPaymentAmount    string `json:"billpaymentAmount"`
	BillPaymentDate      string `json:"billpaymentDate"`
	BillPaymentInvoiceNo string `json:"billpaymentInvoiceNo"`
}

func (g *ToyyibPayGateway) fetchTransactions(ctx context.Context, op, billCode string) ([]toyyibpayTransaction, error) {
	form := map[string]string{"billCode": billCode}
	resp, err := g.client.PostForm(ctx, "/index.php/api/getBillTransactions", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "request failed", err)
	}
	if !resp.OK() {
		return nil, E(KindProvider, g.Code(), op,
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	var txns []toyyibpayTransaction
	if err := json.Unmarshal(resp.Body, &txns); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "malformed response", err)
	}
	return txns, nil
}

func (g *ToyyibPayGateway) billStatus(ctx context.Context, op, billCode string) (*PaymentIntent, error) {
	txns, err := g.fetchTransactions(ctx, op, billCode)
	if err != nil {
		return nil, err
	}
	intent := &PaymentIntent{
		IntentID:   billCode,
		Status:     StatusPending,
		RawStatus:  "2",
		Currency:   "MYR",
		PaymentURL: g.paymentURL(billCode),
	}
	if len(txns) == 0 {
		return intent, nil
	}
	txn := settledOrLast(txns)
	status, _ := mapToyyibpayStatus(txn.BillPaymentStatus)
	intent.Status = status
	intent.RawStatus = txn.BillPaymentStatus
	intent.Amount = ringgitToSen(txn.BillPaymentAmount)
	return intent, nil
}

// settledOrLast picks the successful transaction when the bill has one. The
// API does not document transaction order, so slice position alone cannot
// decide whether a settled bill reads as paid.
func settledOrLast(txns []toyyibpayTransaction) toyyibpayTransaction {
	for _, txn := range txns {
		if txn.BillPaymentStatus == "1" {
			return txn
		}
	}
	return txns[len(txns)-1]
}

// ringgitToSen converts toyyibPay's decimal ringgit strings ("100.00") into
// sen.
func ringgitToSen(raw string) int64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

func (g *ToyyibPayGateway) ConfirmPayment(ctx context.Context, intentID string) (*PaymentIntent, error) {
	return g.billStatus(ctx, "confirm", intentID)
}

func (g *ToyyibPayGateway) GetPaymentStatus(ctx context.Context, intentID string) (*PaymentIntent, error) {
	return g.billStatus(ctx, "status", intentID)
}

// CapturePayment acknowledges a settled bill; toyyibPay settles on payment.
func (g *ToyyibPayGateway) CapturePayment(ctx context.Context, intentID string, amount int64) (*CaptureResult, error) {
	intent, err := g.billStatus(ctx, "capture", intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != StatusCompleted {
		return nil, E(KindInvalidState, g.Code(), "capture",
			fmt.Sprintf("bill %s is %s, not paid", intentID, intent.Status))
	}
	captured := amount
	if captured == 0 {
		captured = intent.Amount
	}
	return &CaptureResult{
		IntentID:   intentID,
		Amount:     captured,
		Currency:   "MYR",
		CapturedAt: time.Now(),
	}, nil
}

func (g *ToyyibPayGateway) CancelPayment(ctx context.Context, intentID string) error {
	form := map[string]string{
		"secretKey": g.secretKey,
		"billCode":  intentID,
	}
	resp, err := g.client.PostForm(ctx, "/index.php/api/inactiveBill", form)
	if err != nil {
		return Ewrap(KindProvider, g.Code(), "cancel", "request failed", err)
	}
	if !resp.OK() {
		return E(KindProvider, g.Code(), "cancel",
			fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

func (g *ToyyibPayGateway) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "refund",
		"toyyibpay refunds are processed manually via the dashboard")
}

func (g *ToyyibPayGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	return &Customer{Email: req.Email, NotRequired: true}, nil
}

func (g *ToyyibPayGateway) AddPaymentMethod(ctx context.Context, customerRef, methodToken string) (*PaymentMethod, error) {
	return nil, E(KindNotImplemented, g.Code(), "add_payment_method",
		"toyyibpay does not store payment methods")
}

func (g *ToyyibPayGateway) RemovePaymentMethod(ctx context.Context, methodRef string) error {
	return E(KindNotImplemented, g.Code(), "remove_payment_method",
		"toyyibpay does not store payment methods")
}

func (g *ToyyibPayGateway) ListPaymentMethods(ctx context.Context, customerRef string) ([]PaymentMethod, error) {
	return []PaymentMethod{}, nil
}

func (g *ToyyibPayGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "create_payout",
		"toyyibpay has no payout API")
}

func (g *ToyyibPayGateway) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "payout_status",
		"toyyibpay has no payout API")
}

// VerifyWebhookSignature compares the shared callback token. toyyibPay does
// not sign payloads, so the token is the whole trust boundary; with no token
// configured in live mode every callback is rejected.
func (g *ToyyibPayGateway) VerifyWebhookSignature(signature string, payload []byte, headers http.Header) bool {
	return verifySharedToken(g.live, g.callbackToken, signature)
}

func (g *ToyyibPayGateway) WebhookSignatureHeader() string {
	return "X-Callback-Token"
}

func (g *ToyyibPayGateway) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "parse_webhook", "malformed payload", err)
	}
	billCode := values.Get("billcode")
	refNo := values.Get("refno")
	if billCode == "" && refNo == "" {
		return nil, E(KindProvider, g.Code(), "parse_webhook", "missing bill code and ref no")
	}

	rawStatus := values.Get("status")
	status, known := mapToyyibpayStatus(rawStatus)

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

	eventID := "toyyibpay:" + refNo
	if refNo == "" {
		eventID = fmt.Sprintf("toyyibpay:%s:%s", billCode, rawStatus)
	}

	event := &WebhookEvent{
		EventID:       eventID,
		Type:          eventType,
		Status:        status,
		RawStatus:     rawStatus,
		Unmapped:      !known,
		IntentID:      billCode,
		TransactionID: refNo,
		Amount:        ringgitToSen(values.Get("amount")),
		Currency:      "MYR",
		CreatedAt:     time.Now(),
	}
	if raw := values.Get("transaction_time"); raw != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
			event.PaidAt = &t
		}
	}
	return event, nil
}

func (g *ToyyibPayGateway) CalculateFees(amount int64, currency string) FeeQuote {
	return g.fees.Quote(amount)
}

func (g *ToyyibPayGateway) SupportedPaymentMethods() []string {
	return []string{"fpx"}
}

func (g *ToyyibPayGateway) SupportedCurrencies() []string {
	return []string{"MYR"}
}

func (g *ToyyibPayGateway) HealthCheck(ctx context.Context) bool {
	form := map[string]string{
		"userSecretKey": g.secretKey,
		"categoryCode":  g.categoryCode,
	}
	resp, err := g.client.PostForm(ctx, "/index.php/api/getCategoryDetails", form)
	return err == nil && resp.OK()
}
