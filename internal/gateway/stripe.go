package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bersepay/internal/pkg/httpclient"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeGateway implements the Gateway interface for Stripe. Card payments
// with a capture step, stored customers/payment methods, and payouts.
type StripeGateway struct {
	secretKey     string
	webhookSecret string
	live          bool
	fees          FeeSchedule
	client        *httpclient.Client
}

func NewStripeGateway(secretKey, webhookSecret string, live bool, fees FeeSchedule) *StripeGateway {
	return &StripeGateway{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		live:          live,
		fees:          fees,
		client: httpclient.New().
			WithTimeout(30 * time.Second).
			WithBaseURL(stripeAPIBase).
			WithBearerToken(secretKey),
	}
}

// WithAPIBase points the integration at a different API host. Used against
// mock provider servers in tests.
func (g *StripeGateway) WithAPIBase(url string) *StripeGateway {
	g.client.WithBaseURL(url)
	return g
}

func (g *StripeGateway) Code() string {
	return "stripe"
}

// stripeStatuses is the total mapping of every intent status this integration
// claims to support into the canonical vocabulary.
var stripeStatuses = map[string]Status{
	"requires_payment_method": StatusPending,
	"requires_confirmation":   StatusPending,
	"requires_action":         StatusPending,
	"processing":              StatusProcessing,
	"requires_capture":        StatusAuthorized,
	"succeeded":               StatusCompleted,
	"canceled":                StatusCancelled,
}

func mapStripeStatus(raw string) (Status, bool) {
	s, ok := stripeStatuses[raw]
	if !ok {
		return StatusPending, false
	}
	return s, true
}

var stripePayoutStatuses = map[string]PayoutStatus{
	"pending":    PayoutPending,
	"in_transit": PayoutProcessing,
	"paid":       PayoutPaid,
	"failed":     PayoutFailed,
	"canceled":   PayoutCanceled,
}

type stripeIntent struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
	LatestCharge string            `json:"latest_charge"`
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *StripeGateway) remoteError(op string, resp *httpclient.Response) error {
	var se stripeError
	_ = json.Unmarshal(resp.Body, &se)
	msg := se.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound || se.Error.Code == "resource_missing" {
		return E(KindNotFound, g.Code(), op, msg)
	}
	return E(KindProvider, g.Code(), op, msg)
}

func (g *StripeGateway) intentResult(raw *stripeIntent) *PaymentIntent {
	status, _ := mapStripeStatus(raw.Status)
	return &PaymentIntent{
		IntentID:     raw.ID,
		ClientSecret: raw.ClientSecret,
		Status:       status,
		RawStatus:    raw.Status,
		Amount:       raw.Amount,
		Currency:     strings.ToUpper(raw.Currency),
		Metadata:     raw.Metadata,
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, E(KindInvalidState, g.Code(), "create_intent", "amount must be positive")
	}

	form := map[string]string{
		"amount":   strconv.FormatInt(req.Amount, 10),
		"currency": strings.ToLower(req.Currency),
	}
	if req.Description != "" {
		form["description"] = req.Description
	}
	if req.CustomerRef != "" {
		form["customer"] = req.CustomerRef
	}
	if req.PaymentMethodRef != "" {
		form["payment_method"] = req.PaymentMethodRef
	}
	for k, v := range req.Metadata {
		form["metadata["+k+"]"] = v
	}

	resp, err := g.client.PostForm(ctx, "/payment_intents", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_intent", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("create_intent", resp)
	}

	var raw stripeIntent
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_intent", "malformed response", err)
	}
	return g.intentResult(&raw), nil
}

func (g *StripeGateway) fetchIntent(ctx context.Context, op, intentID string) (*stripeIntent, error) {
	resp, err := g.client.Get(ctx, "/payment_intents/"+intentID)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError(op, resp)
	}
	var raw stripeIntent
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "malformed response", err)
	}
	return &raw, nil
}

func (g *StripeGateway) ConfirmPayment(ctx context.Context, intentID string) (*PaymentIntent, error) {
	raw, err := g.fetchIntent(ctx, "confirm", intentID)
	if err != nil {
		return nil, err
	}
	return g.intentResult(raw), nil
}

func (g *StripeGateway) GetPaymentStatus(ctx context.Context, intentID string) (*PaymentIntent, error) {
	raw, err := g.fetchIntent(ctx, "status", intentID)
	if err != nil {
		return nil, err
	}
	return g.intentResult(raw), nil
}

func (g *StripeGateway) CapturePayment(ctx context.Context, intentID string, amount int64) (*CaptureResult, error) {
	raw, err := g.fetchIntent(ctx, "capture", intentID)
	if err != nil {
		return nil, err
	}
	if raw.Status != "requires_capture" {
		return nil, E(KindInvalidState, g.Code(), "capture",
			fmt.Sprintf("intent %s is %s, not capturable", intentID, raw.Status))
	}

	form := map[string]string{}
	if amount > 0 {
		form["amount_to_capture"] = strconv.FormatInt(amount, 10)
	}
	resp, err := g.client.PostForm(ctx, "/payment_intents/"+intentID+"/capture", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "capture", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("capture", resp)
	}

	var captured stripeIntent
	if err := json.Unmarshal(resp.Body, &captured); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "capture", "malformed response", err)
	}
	capturedAmount := amount
	if capturedAmount == 0 {
		capturedAmount = captured.Amount
	}
	return &CaptureResult{
		IntentID:   captured.ID,
		Amount:     capturedAmount,
		Currency:   strings.ToUpper(captured.Currency),
		CapturedAt: time.Now(),
	}, nil
}

func (g *StripeGateway) CancelPayment(ctx context.Context, intentID string) error {
	resp, err := g.client.PostForm(ctx, "/payment_intents/"+intentID+"/cancel", map[string]string{})
	if err != nil {
		return Ewrap(KindProvider, g.Code(), "cancel", "request failed", err)
	}
	if !resp.OK() {
		return g.remoteError("cancel", resp)
	}
	return nil
}

func (g *StripeGateway) RefundPayment(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	intent, err := g.fetchIntent(ctx, "refund", req.TransactionID)
	if err != nil {
		return nil, err
	}
	if intent.Status != "succeeded" {
		return nil, E(KindInvalidState, g.Code(), "refund",
			fmt.Sprintf("intent %s is %s, not refundable", req.TransactionID, intent.Status))
	}

	form := map[string]string{"payment_intent": req.TransactionID}
	if req.Amount > 0 {
		form["amount"] = strconv.FormatInt(req.Amount, 10)
	}
	if req.Reason != "" {
		form["reason"] = req.Reason
	}
	resp, err := g.client.PostForm(ctx, "/refunds", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "refund", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("refund", resp)
	}

	var refund struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body, &refund); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "refund", "malformed response", err)
	}
	status := StatusCompleted
	if refund.Status == "pending" {
		status = StatusProcessing
	}
	return &RefundResult{
		RefundID:      refund.ID,
		TransactionID: req.TransactionID,
		Amount:        refund.Amount,
		Status:        status,
		CreatedAt:     time.Now(),
	}, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	form := map[string]string{}
	if req.Email != "" {
		form["email"] = req.Email
	}
	if req.Name != "" {
		form["name"] = req.Name
	}
	if req.Phone != "" {
		form["phone"] = req.Phone
	}
	resp, err := g.client.PostForm(ctx, "/customers", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_customer", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("create_customer", resp)
	}
	var cust struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(resp.Body, &cust); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_customer", "malformed response", err)
	}
	return &Customer{CustomerRef: cust.ID, Email: cust.Email}, nil
}

func (g *StripeGateway) AddPaymentMethod(ctx context.Context, customerRef, methodToken string) (*PaymentMethod, error) {
	form := map[string]string{"customer": customerRef}
	resp, err := g.client.PostForm(ctx, "/payment_methods/"+methodToken+"/attach", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "add_payment_method", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("add_payment_method", resp)
	}
	var pm stripePaymentMethod
	if err := json.Unmarshal(resp.Body, &pm); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "add_payment_method", "malformed response", err)
	}
	return pm.result(), nil
}

func (g *StripeGateway) RemovePaymentMethod(ctx context.Context, methodRef string) error {
	resp, err := g.client.PostForm(ctx, "/payment_methods/"+methodRef+"/detach", map[string]string{})
	if err != nil {
		return Ewrap(KindProvider, g.Code(), "remove_payment_method", "request failed", err)
	}
	if !resp.OK() {
		return g.remoteError("remove_payment_method", resp)
	}
	return nil
}

type stripePaymentMethod struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Card struct {
		Brand string `json:"brand"`
		Last4 string `json:"last4"`
	} `json:"card"`
}

func (pm *stripePaymentMethod) result() *PaymentMethod {
	return &PaymentMethod{
		MethodRef: pm.ID,
		Type:      pm.Type,
		Brand:     pm.Card.Brand,
		Last4:     pm.Card.Last4,
	}
}

func (g *StripeGateway) ListPaymentMethods(ctx context.Context, customerRef string) ([]PaymentMethod, error) {
	resp, err := g.client.Get(ctx, "/customers/"+customerRef+"/payment_methods")
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "list_payment_methods", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("list_payment_methods", resp)
	}
	var list struct {
		Data []stripePaymentMethod `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "list_payment_methods", "malformed response", err)
	}
	methods := make([]PaymentMethod, 0, len(list.Data))
	for i := range list.Data {
		methods = append(methods, *list.Data[i].result())
	}
	return methods, nil
}

func (g *StripeGateway) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	form := map[string]string{
		"amount":   strconv.FormatInt(req.Amount, 10),
		"currency": strings.ToLower(req.Currency),
	}
	if req.RecipientRef != "" {
		form["destination"] = req.RecipientRef
	}
	if req.Description != "" {
		form["description"] = req.Description
	}
	for k, v := range req.Metadata {
		form["metadata["+k+"]"] = v
	}
	resp, err := g.client.PostForm(ctx, "/payouts", form)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "create_payout", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("create_payout", resp)
	}
	return g.payoutResult("create_payout", resp.Body)
}

func (g *StripeGateway) GetPayoutStatus(ctx context.Context, payoutID string) (*PayoutResult, error) {
	resp, err := g.client.Get(ctx, "/payouts/"+payoutID)
	if err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "payout_status", "request failed", err)
	}
	if !resp.OK() {
		return nil, g.remoteError("payout_status", resp)
	}
	return g.payoutResult("payout_status", resp.Body)
}

func (g *StripeGateway) payoutResult(op string, body []byte) (*PayoutResult, error) {
	var raw struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), op, "malformed response", err)
	}
	status, ok := stripePayoutStatuses[raw.Status]
	if !ok {
		status = PayoutPending
	}
	return &PayoutResult{
		PayoutID:  raw.ID,
		Amount:    raw.Amount,
		Currency:  strings.ToUpper(raw.Currency),
		Status:    status,
		RawStatus: raw.Status,
		CreatedAt: time.Now(),
	}, nil
}

// VerifyWebhookSignature checks the "t=<ts>,v1=<hmac>" scheme: the hex
// HMAC-SHA256 of "<ts>.<payload>" keyed by the webhook secret.
func (g *StripeGateway) VerifyWebhookSignature(signature string, payload []byte, headers http.Header) bool {
	if g.webhookSecret == "" {
		return !g.live
	}
	if signature == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(signature, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	signed := append([]byte(ts+"."), payload...)
	return secureCompare(hmacSHA256Hex(g.webhookSecret, signed), v1)
}

func (g *StripeGateway) WebhookSignatureHeader() string {
	return "Stripe-Signature"
}

var stripeEventTypes = map[string]EventType{
	"payment_intent.succeeded":      EventPaymentSucceeded,
	"payment_intent.payment_failed": EventPaymentFailed,
	"payment_intent.canceled":       EventPaymentCancelled,
	"payment_intent.processing":     EventPaymentProcessing,
}

func (g *StripeGateway) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var raw struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object stripeIntent `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, Ewrap(KindProvider, g.Code(), "parse_webhook", "malformed payload", err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, E(KindProvider, g.Code(), "parse_webhook", "missing event id or type")
	}

	eventType, knownType := stripeEventTypes[raw.Type]
	status, knownStatus := mapStripeStatus(raw.Data.Object.Status)
	if !knownType {
		eventType = EventPaymentProcessing
	}

	event := &WebhookEvent{
		EventID:       raw.ID,
		Type:          eventType,
		Status:        status,
		RawStatus:     raw.Data.Object.Status,
		Unmapped:      !knownType || !knownStatus,
		IntentID:      raw.Data.Object.ID,
		TransactionID: raw.Data.Object.LatestCharge,
		Amount:        raw.Data.Object.Amount,
		Currency:      strings.ToUpper(raw.Data.Object.Currency),
		Metadata:      raw.Data.Object.Metadata,
		CreatedAt:     time.Now(),
	}
	if eventType == EventPaymentSucceeded {
		paidAt := time.Unix(raw.Created, 0)
		event.PaidAt = &paidAt
	}
	return event, nil
}

func (g *StripeGateway) CalculateFees(amount int64, currency string) FeeQuote {
	return g.fees.Quote(amount)
}

func (g *StripeGateway) SupportedPaymentMethods() []string {
	return []string{"card", "fpx", "grabpay"}
}

func (g *StripeGateway) SupportedCurrencies() []string {
	return []string{"MYR", "SGD", "USD", "EUR", "GBP"}
}

func (g *StripeGateway) HealthCheck(ctx context.Context) bool {
	resp, err := g.client.Get(ctx, "/balance")
	return err == nil && resp.OK()
}
