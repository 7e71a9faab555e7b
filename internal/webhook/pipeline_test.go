package webhook

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bersepay/internal/gateway"
)

type fakeResolver struct {
	gw gateway.Gateway
}

func (r *fakeResolver) ByProviderCode(code string) (gateway.Gateway, error) {
	if r.gw == nil || r.gw.Code() != code {
		return nil, gateway.E(gateway.KindNotFound, code, "resolve", "provider code not found")
	}
	return r.gw, nil
}

type recordingReconciler struct {
	applied  []*gateway.WebhookEvent
	failNext int
	failErr  error
}

func (r *recordingReconciler) Apply(_ context.Context, _ string, event *gateway.WebhookEvent) error {
	if r.failNext > 0 {
		r.failNext--
		return r.failErr
	}
	r.applied = append(r.applied, event)
	return nil
}

func newTestPipeline(t *testing.T, rec *recordingReconciler) *Pipeline {
	t.Helper()
	// Live-mode bank transfer gateway with admin token "abc123".
	gw := gateway.NewBankTransferGateway("abc123", true, gateway.FeeSchedule{})
	guard, err := NewReplayGuard("", "", 0, time.Minute)
	require.NoError(t, err)
	return NewPipeline(&fakeResolver{gw: gw}, rec, guard, zap.NewNop())
}

func confirmedPayload() []byte {
	return []byte(`{"reference":"bt_1","status":"confirmed","amount":12000,"currency":"MYR"}`)
}

func headersWithToken(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("X-Admin-Token", token)
	}
	return h
}

func TestPipelineRejectsUnknownProvider(t *testing.T) {
	rec := &recordingReconciler{}
	p := newTestPipeline(t, rec)

	_, err := p.Ingest(context.Background(), "carrier_pigeon", confirmedPayload(), headersWithToken("abc123"))
	assert.True(t, gateway.IsNotFound(err))
	assert.Empty(t, rec.applied)
}

func TestPipelineRejectsBadSignatureWithoutSideEffects(t *testing.T) {
	rec := &recordingReconciler{}
	p := newTestPipeline(t, rec)

	_, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("xyz"))
	assert.True(t, gateway.IsAuthentication(err))
	assert.Empty(t, rec.applied)

	_, err = p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken(""))
	assert.True(t, gateway.IsAuthentication(err))
	assert.Empty(t, rec.applied)
}

func TestPipelineDispatchesVerifiedEvent(t *testing.T) {
	rec := &recordingReconciler{}
	p := newTestPipeline(t, rec)

	event, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)
	require.Len(t, rec.applied, 1)
	assert.Equal(t, gateway.EventPaymentSucceeded, event.Type)
	assert.Equal(t, gateway.StatusCompleted, event.Status)
	assert.NotEmpty(t, event.EventID)
	assert.Same(t, event, rec.applied[0])
}

func TestPipelineDropsDuplicateDelivery(t *testing.T) {
	rec := &recordingReconciler{}
	p := newTestPipeline(t, rec)

	_, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)

	// Same payload again: same derived event id, so no second dispatch.
	event, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)
	assert.NotNil(t, event)
	assert.Len(t, rec.applied, 1)
}

func TestPipelineParseFailureIsRejected(t *testing.T) {
	rec := &recordingReconciler{}
	p := newTestPipeline(t, rec)

	_, err := p.Ingest(context.Background(), "banktransfer", []byte("not json"), headersWithToken("abc123"))
	assert.True(t, gateway.IsProvider(err))
	assert.Empty(t, rec.applied)
}

func TestPipelineSurfacesReconcilerFailure(t *testing.T) {
	rec := &recordingReconciler{failNext: 1, failErr: assert.AnError}
	p := newTestPipeline(t, rec)

	_, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.Error(t, err)
	// Dispatch failures carry no gateway kind so the HTTP layer answers
	// with a retryable 5xx, not a payload rejection.
	assert.Equal(t, gateway.Kind(""), gateway.KindOf(err))
}

func TestPipelineRedeliveryAfterDispatchFailureIsApplied(t *testing.T) {
	rec := &recordingReconciler{failNext: 1, failErr: assert.AnError}
	p := newTestPipeline(t, rec)

	_, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.Error(t, err)
	require.Empty(t, rec.applied)

	// The provider redelivers after the transient failure. The guard must
	// not treat the event id as already delivered.
	event, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)
	require.Len(t, rec.applied, 1)
	assert.Equal(t, event.EventID, rec.applied[0].EventID)

	// A third delivery after the successful one is a true replay.
	_, err = p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)
	assert.Len(t, rec.applied, 1)
}

func TestPipelineLogsSandboxPassThroughLoudly(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recordingReconciler{}
	// Sandbox gateway with no secret configured: every delivery passes.
	gw := gateway.NewBankTransferGateway("", false, gateway.FeeSchedule{})
	guard, err := NewReplayGuard("", "", 0, time.Minute)
	require.NoError(t, err)
	p := NewPipeline(&fakeResolver{gw: gw}, rec, guard, zap.New(core))

	// A garbage token passes in pass-through mode and must still be loud.
	_, err = p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("garbage"))
	require.NoError(t, err)
	assert.NotEmpty(t, logs.FilterMessageSnippet("verification skipped").All())

	logs.TakeAll()

	// Same with no token at all.
	payload := []byte(`{"reference":"bt_2","status":"confirmed","amount":100,"currency":"MYR"}`)
	_, err = p.Ingest(context.Background(), "banktransfer", payload, headersWithToken(""))
	require.NoError(t, err)
	assert.NotEmpty(t, logs.FilterMessageSnippet("verification skipped").All())
}

func TestPipelineWorksWithoutReplayGuard(t *testing.T) {
	rec := &recordingReconciler{}
	gw := gateway.NewBankTransferGateway("abc123", true, gateway.FeeSchedule{})
	p := NewPipeline(&fakeResolver{gw: gw}, rec, nil, zap.NewNop())

	_, err := p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)
	_, err = p.Ingest(context.Background(), "banktransfer", confirmedPayload(), headersWithToken("abc123"))
	require.NoError(t, err)
	// No guard: every delivery reaches the reconciler, which dedupes itself.
	assert.Len(t, rec.applied, 2)
}
