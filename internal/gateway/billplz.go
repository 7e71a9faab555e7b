package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"bersepay/internal/pkg/httpclient"
)

const (
	billplzAPIBase     = "https://www.billplz.com/api/v3"
	billplzSandboxBase = "https://www.billplz-sandbox.com/api/v3"
)

// BillplzGateway implements the Gateway interface for Billplz, a Malaysian
// bill-based processor. Bills settle directly on payment, so there is no
// separate authorize/capture step; capture acknowledges an already-paid bill.
type BillplzGateway struct {
	apiKey        string
	collectionID  string
	xSignatureKey string
	live          bool
	fees          FeeSchedule
	client        *httpclient.Client
}

func NewBillplzGateway(apiKey, collectionID, xSignatureKey string, live bool, fees FeeSchedule) *BillplzGateway {
	base := billplzSandboxBase
	if live {
		base = billplzAPIBase
	}
	return &BillplzGateway{
		apiKey:        apiKey,
		collectionID:  collectionID,
		xSignatureKey: xSignatureKey,
		live:          live,
		fees:          fees,
		client: httpclient.New().
			WithTimeout(30 * time.Second).
			WithBaseURL(base).
			WithBasicAuth(apiKey, ""),
	}
}

// WithAPIBase points the integration at a different API host. Used against
// mock provider servers in tests.
func (g *BillplzGateway) WithAPIBase(url string) *BillplzGateway {
	g.client.WithBaseURL(url)
	return g
}

func (g *BillplzGateway) Code() string {
	return "billplz"
}

var billplzStates = map[string]Status{
	"due":     StatusPending,
	"overdue": StatusPending,
	"paid":    StatusCompleted,
	"deleted": StatusCancelled,
	"hidden":  StatusPending,
}

func mapBillplzState(raw string) (Status, bool) {
	s, ok := billplzStates[raw]
	if !ok {
		return StatusPending, false
	}
	return s, true
}

type billplzBill struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Paid        bool   `json:"paid"`
	Amount      int64  `json:"amount"`
	URL         string `json:"url"`
	DueAt       string `json:"due_at"`
	Description string `json:"description"`
}

func (g *BillplzGateway) billResult(raw *billplzBill) *PaymentIntent {
	status, _ := mapBillplzState(raw.State)
	if raw.Paid {
		status = StatusCompleted
	}
	return &PaymentIntent{
		IntentID:   raw.ID,
		Status:     status,
		RawStatus:  raw.State,
		Amount:     raw.Amount,
		Currency:   "MYR",
		PaymentURL: raw.URL,
	}
}

func (g *BillplzGateway) remoteError(op string, resp *httpclient.Response) error {
	var be struct {
		Error struct {
			Message []string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(resp.Body, &be)
	msg := strings.Join(be.Error.Message, "; ")
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return E(KindNotFound, g.Code(), op, msg)
	}
	return E(KindProvider, g.Code(), op, msg)
}

func (g *BillplzGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, E(KindInvalidState, g.Code(), "create_intent", "amount must be positive")
	}
	if !strings.EqualFold(req.Currency, "MYR") {
		return nil, E(KindConfiguration, g.Code(), "create_intent",
			"billplz only settles MYR, got "+req.Currency)
	}

	form := map[string]string{
		"collection_id": g.collectionID,
		"amount":        strconv.FormatInt(req.Amount, 10),
		"description":   req.Description,
		"callback_url":  req.CallbackURL,
	}
	if req.RedirectURL != "" {
		form["redirect_url"] = req.RedirectURL
	}
	if email, ok := req.Metadata["email"]; ok {
		form["email"] = email
	}
	if name, ok := req.Metadata["name"]; ok {
		form["name"] = name
	}

	resp, err := g.client.PostForm(ctx, "/bills", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_intent", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("create_intent", resp)
	}

	var raw billplzBill
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_intent", "malformed response", err)
	}
	result := g.billResult(&raw)
	result.Metadata = req.Metadata
	return result, nil
}

func (g *BillplzGateway) fetchBill(ctx context.Context, op, billID string) (*billplzBill, error) {
	resp, err := g.client.Get(ctx, "/bills/"+billID)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError(op, resp)
	}
	var raw billplzBill
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "malformed response", err)
	}
	return &raw, nil
}

func (g *BillplzGateway) ConfirmPayment(ctx context.Context, intentID string) (*PaymentIntent, error) {
	raw, err := g.fetchBill(ctx, "confirm", intentID)
	if err != nil {
		return nil, err
	}
	return g.billResult(raw), nil
}

func (g *BillplzGateway) GetPaymentStatus(ctx context.Context, intentID string) (*PaymentIntent, error) {
	raw, err := g.fetchBill(ctx, "status", intentID)
	if err != nil {
		return nil, err
	}
	return g.billResult(raw), nil
}

// CapturePayment acknowledges settlement of a paid bill. Billplz settles on
// payment, so there is nothing to finalize remotely; an unpaid bill is an
// invalid-state error, same as a card capture before authorization.
func (g *BillplzGateway) CapturePayment(ctx context.Context, intentID string, amount int64) (*CaptureResult, error) {
	raw, err := g.fetchBill(ctx, "capture", intentID)
	if err != nil {
		return nil, err
	}
	if !raw.Paid {
		return nil, E(KindInvalidState, g.Code(), "capture",
			fmt.Sprintf("bill %s is %s, not paid", intentID, raw.State))
	}
	captured := amount
	if captured == 0 {
		captured = raw.Amount
	}
	return &CaptureResult{
		IntentID:   raw.ID,
		Amount:     captured,
		Currency:   "MYR",
		CapturedAt: time.Now(),
	}, nil
}

func (g *BillplzGateway) CancelPayment(ctx context.Context, intentID string) error {
	raw, err := g.fetchBill(ctx, "cancel", intentID)
	if err != nil {
		return err
	}
	if raw.Paid || raw.State == "paid" {
		return E(KindInvalidState, g.Code(), "cancel", "bill already paid")
	}
	resp, err := g.client.Delete(ctx, "/bills/"+intentID)
	if err != nil {
		return Ewrap(KindProvider, g.Code(), "cancel", "request failed", err)
	}
	if !resp.OK() {
		return g.remoteError("cancel", resp)
	}
	return nil
}

func (g *BillplzGateway) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "refund",
		"billplz refunds are processed manually via the dashboard")
}

// Billplz has no stored customer or payment method objects; the labeled
// not-required results keep callers from mistaking that for a failure.

func (g *BillplzGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	return &Customer{Email: req.Email, NotRequired: true}, nil
}

func (g *BillplzGateway) AddPaymentMethod(ctx context.Context, customerRef, methodToken string) (*PaymentMethod, error) {
	return nil, E(KindNotImplemented, g.Code(), "add_payment_method",
		"billplz does not store payment methods")
}

func (g *BillplzGateway) RemovePaymentMethod(ctx context.Context, methodRef string) error {
	return E(KindNotImplemented, g.Code(), "remove_payment_method",
		"billplz does not store payment methods")
}

func (g *BillplzGateway) ListPaymentMethods(ctx context.Context, customerRef string) ([]PaymentMethod, error) {
	return []PaymentMethod{}, nil
}

func (g *BillplzGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "create_payout",
		"billplz payouts are not wired")
}

func (g *BillplzGateway) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResult, error) {
	return nil, E(KindNotImplemented, g.Code(), "payout_status",
		"billplz payouts are not wired")
}

// VerifyWebhookSignature checks the X-Signature scheme: HMAC-SHA256 over the
// callback's non-signature fields, each rendered as "key|value", sorted by
// key and joined with "|".
func (g *BillplzGateway) VerifyWebhookSignature(signature string, payload []byte, headers http.Header) bool {
	if g.xSignatureKey == "" {
		return !g.live
	}
	if signature == "" {
		return false
	}
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return false
	}
	source := billplzSignatureSource(values)
	return secureCompare(hmacSHA256Hex(g.xSignatureKey, []byte(source)), signature)
}

func billplzSignatureSource(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "x_signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+values.Get(k))
	}
	return strings.Join(parts, "|")
}

func (g *BillplzGateway) WebhookSignatureHeader() string {
	return "X-Signature"
}

func (g *BillplzGateway) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "parse_webhook", "malformed payload", err)
	}
	billID := firstOf(values, "billplz[id]", "id")
	if billID == "" {
		return nil, E(KindProvider, g.Code(), "parse_webhook", "missing bill id")
	}

	state := firstOf(values, "billplz[state]", "state")
	paid := firstOf(values, "billplz[paid]", "paid") == "true"
	amount, _ := strconv.ParseInt(firstOf(values, "billplz[amount]", "amount"), 10, 64)
	transactionID := firstOf(values, "billplz[transaction_id]", "transaction_id")

	status, known := mapBillplzState(state)
	if paid {
		status, known = StatusCompleted, true
	}

	var eventType EventType
	switch status {
	case StatusCompleted:
		eventType = EventPaymentSucceeded
	case StatusCancelled:
		eventType = EventPaymentCancelled
	case StatusFailed:
		eventType = EventPaymentFailed
	default:
		eventType = EventPaymentProcessing
	}

	// Billplz sends no event id; the bill id plus the reported state is
	// stable across redeliveries of the same real-world event.
	eventID := fmt.Sprintf("billplz:%s:%s", billID, state)
	if transactionID != "" {
		eventID = "billplz:" + transactionID
	}

	event := &WebhookEvent{
		EventID:       eventID,
		Type:          eventType,
		Status:        status,
		RawStatus:     state,
		Unmapped:      !known,
		IntentID:      billID,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      "MYR",
		CreatedAt:     time.Now(),
	}
	if raw := firstOf(values, "billplz[paid_at]", "paid_at"); raw != "" {
		if t, err := time.Parse("2006-01-02 15:04:05 -0700", raw); err == nil {
			event.PaidAt = &t
		}
	}
	return event, nil
}

func firstOf(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := values.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func (g *BillplzGateway) CalculateFees(amount int64, currency string) FeeQuote {
	return g.fees.Quote(amount)
}

func (g *BillplzGateway) SupportedPaymentMethods() []string {
	return []string{"fpx", "card", "ewallet"}
}

func (g *BillplzGateway) SupportedCurrencies() []string {
	return []string{"MYR"}
}

func (g *BillplzGateway) HealthCheck(ctx context.Context) bool {
	resp, err := g.client.Get(ctx, "/collections/"+g.collectionID)
	return err == nil && resp.OK()
}
