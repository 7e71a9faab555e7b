package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToyyibpayTestServer(t *testing.T, transactions string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /index.php/api/createBill", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "cat_1", r.PostFormValue("categoryCode"))
		fmt.Fprint(w, `[{"BillCode":"gcbhict9"}]`)
	})
	mux.HandleFunc("POST /index.php/api/getBillTransactions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, transactions)
	})
	mux.HandleFunc("POST /index.php/api/inactiveBill", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func newTestToyyibpay(srvURL string) *ToyyibPayGateway {
	return NewToyyibPayGateway("sec_1", "cat_1", "abc123", false, FeeSchedule{}).WithAPIBase(srvURL)
}

func TestToyyibpayCreatePaymentIntent(t *testing.T) {
	srv := newToyyibpayTestServer(t, `[]`)
	defer srv.Close()
	gw := newTestToyyibpay(srv.URL)

	intent, err := gw.CreatePaymentIntent(context.Background(), CreateIntentRequest{
		Amount: 5000, Currency: "MYR", Description: "community event",
		Metadata: map[string]string{"reference": "ord_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gcbhict9", intent.IntentID)
	assert.Equal(t, StatusPending, intent.Status)
	assert.Contains(t, intent.PaymentURL, "gcbhict9")
}

func TestToyyibpayStatusBeforeAnyTransaction(t *testing.T) {
	srv := newToyyibpayTestServer(t, `[]`)
	defer srv.Close()
	gw := newTestToyyibpay(srv.URL)

	intent, err := gw.GetPaymentStatus(context.Background(), "gcbhict9")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, intent.Status)
}

func TestToyyibpayStatusAfterPayment(t *testing.T) {
	srv := newToyyibpayTestServer(t,
		`[{"billpaymentStatus":"1","billpaymentAmount":"50.00","billpaymentInvoiceNo":"inv_1"}]`)
	defer srv.Close()
	gw := newTestToyyibpay(srv.URL)

	intent, err := gw.GetPaymentStatus(context.Background(), "gcbhict9")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, intent.Status)
	assert.Equal(t, int64(5000), intent.Amount)
}

// The transactions endpoint does not document ordering; a settled bill must
// read as paid no matter where its successful attempt sits in the list.
func TestToyyibpayStatusPrefersSettledTransaction(t *testing.T) {
	orderings := map[string]string{
		"newest-first": `[{"billpaymentStatus":"1","billpaymentAmount":"50.00","billpaymentInvoiceNo":"inv_2"},` +
			`{"billpaymentStatus":"3","billpaymentAmount":"50.00","billpaymentInvoiceNo":"inv_1"}]`,
		"oldest-first": `[{"billpaymentStatus":"3","billpaymentAmount":"50.00","billpaymentInvoiceNo":"inv_1"},` +
			`{"billpaymentStatus":"1","billpaymentAmount":"50.00","billpaymentInvoiceNo":"inv_2"}]`,
	}
	for name, txns := range orderings {
		t.Run(name, func(t *testing.T) {
			srv := newToyyibpayTestServer(t, txns)
			defer srv.Close()
			gw := newTestToyyibpay(srv.URL)

			intent, err := gw.GetPaymentStatus(context.Background(), "gcbhict9")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, intent.Status)
			assert.Equal(t, int64(5000), intent.Amount)
		})
	}
}

func TestToyyibpayStatusWithoutSettledTransactionUsesLast(t *testing.T) {
	srv := newToyyibpayTestServer(t,
		`[{"billpaymentStatus":"3","billpaymentAmount":"50.00"},`+
			`{"billpaymentStatus":"2","billpaymentAmount":"50.00"}]`)
	defer srv.Close()
	gw := newTestToyyibpay(srv.URL)

	intent, err := gw.GetPaymentStatus(context.Background(), "gcbhict9")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, intent.Status)
}

func TestToyyibpayCaptureRequiresPaidBill(t *testing.T) {
	srv := newToyyibpayTestServer(t,
		`[{"billpaymentStatus":"2","billpaymentAmount":"50.00"}]`)
	defer srv.Close()
	gw := newTestToyyibpay(srv.URL)

	_, err := gw.CapturePayment(context.Background(), "gcbhict9", 0)
	assert.True(t, IsInvalidState(err))
}

// Shared-token verification: configured token "abc123", presented token "xyz"
// must fail; presented "abc123" must pass.
func TestToyyibpayVerifySharedToken(t *testing.T) {
	gw := NewToyyibPayGateway("sec_1", "cat_1", "abc123", true, FeeSchedule{})
	payload := []byte("status=1&billcode=gcbhict9")

	assert.False(t, gw.VerifyWebhookSignature("xyz", payload, nil))
	assert.True(t, gw.VerifyWebhookSignature("abc123", payload, nil))
	assert.False(t, gw.VerifyWebhookSignature("", payload, nil))
}

func TestToyyibpayVerifyFailsClosedWithoutTokenInLive(t *testing.T) {
	live := NewToyyibPayGateway("sec_1", "cat_1", "", true, FeeSchedule{})
	assert.False(t, live.VerifyWebhookSignature("anything", nil, nil))
	assert.False(t, live.VerifyWebhookSignature("", nil, nil))

	sandbox := NewToyyibPayGateway("sec_1", "cat_1", "", false, FeeSchedule{})
	assert.True(t, sandbox.VerifyWebhookSignature("", nil, nil))
}

func TestToyyibpayParseWebhookEvent(t *testing.T) {
	values := url.Values{}
	values.Set("refno", "TP123")
	values.Set("status", "1")
	values.Set("billcode", "gcbhict9")
	values.Set("order_id", "ord_1")
	values.Set("amount", "50.00")
	values.Set("transaction_time", "2026-08-30 12:00:00")
	gw := newTestToyyibpay("http://unused")

	event, err := gw.ParseWebhookEvent([]byte(values.Encode()))
	require.NoError(t, err)
	assert.Equal(t, "toyyibpay:TP123", event.EventID)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, StatusCompleted, event.Status)
	assert.Equal(t, "gcbhict9", event.IntentID)
	assert.Equal(t, int64(5000), event.Amount)
	assert.NotNil(t, event.PaidAt)
}

func TestToyyibpayParseWebhookEventFailedPayment(t *testing.T) {
	gw := newTestToyyibpay("http://unused")

	event, err := gw.ParseWebhookEvent([]byte("refno=TP124&status=3&billcode=gcbhict9"))
	require.NoError(t, err)
	assert.Equal(t, EventPaymentFailed, event.Type)
	assert.Equal(t, StatusFailed, event.Status)
}

func TestToyyibpayParseWebhookEventUnknownStatus(t *testing.T) {
	gw := newTestToyyibpay("http://unused")

	event, err := gw.ParseWebhookEvent([]byte("refno=TP125&status=9&billcode=gcbhict9"))
	require.NoError(t, err)
	assert.True(t, event.Unmapped)
	assert.Equal(t, StatusPending, event.Status)
}

func TestToyyibpayStatusMappingTotality(t *testing.T) {
	canonical := map[Status]bool{
		StatusPending: true, StatusProcessing: true, StatusAuthorized: true,
		StatusCompleted: true, StatusFailed: true, StatusCancelled: true,
	}
	for raw := range toyyibpayStatuses {
		status, ok := mapToyyibpayStatus(raw)
		assert.True(t, ok)
		assert.True(t, canonical[status], "status %q maps outside the canonical set", raw)
	}
}

func TestRinggitToSen(t *testing.T) {
	assert.Equal(t, int64(5000), ringgitToSen("50.00"))
	assert.Equal(t, int64(5055), ringgitToSen("50.55"))
	assert.Equal(t, int64(0), ringgitToSen("junk"))
}
