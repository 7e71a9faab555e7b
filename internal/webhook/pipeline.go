package webhook

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bersepay/internal/gateway"
)

// GatewayResolver narrows the registry surface the pipeline needs.
type GatewayResolver interface {
	ByProviderCode(code string) (gateway.Gateway, error)
}

// Pipeline takes one inbound provider callback through
// received → signature-verified → parsed → dispatched, or rejects it.
// Verification failure is a hard boundary: nothing downstream runs.
type Pipeline struct {
	gateways   GatewayResolver
	reconciler Reconciler
	replay     ReplayGuard
	logger     *zap.Logger
}

func NewPipeline(gateways GatewayResolver, reconciler Reconciler, replay ReplayGuard, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		gateways:   gateways,
		reconciler: reconciler,
		replay:     replay,
		logger:     logger,
	}
}

// Ingest verifies, normalizes and dispatches one raw callback. It returns the
// canonical event on success and a typed gateway error on rejection; a
// dispatch failure is reported untyped so callers answer with a retryable
// status instead of blaming the payload.
func (p *Pipeline) Ingest(ctx context.Context, providerCode string, payload []byte, headers http.Header) (*gateway.WebhookEvent, error) {
	gw, err := p.gateways.ByProviderCode(providerCode)
	if err != nil {
		return nil, err
	}

	signature := headers.Get(gw.WebhookSignatureHeader())
	if !gw.VerifyWebhookSignature(signature, payload, headers) {
		p.logger.Warn("Webhook signature rejected",
			zap.String("provider", providerCode),
			zap.Bool("signature_present", signature != ""))
		return nil, gateway.E(gateway.KindAuthentication, providerCode, "verify",
			"webhook signature verification failed")
	}
	if gw.VerifyWebhookSignature("", payload, headers) {
		// Only a pass-through gateway (sandbox, no secret configured)
		// accepts an empty signature; fail-closed verifiers never do.
		// Keep it loud so a misconfigured live deployment cannot skip
		// verification quietly, whatever the header carried.
		p.logger.Warn("Webhook signature verification skipped (sandbox mode, no secret configured)",
			zap.String("provider", providerCode))
	}

	event, err := gw.ParseWebhookEvent(payload)
	if err != nil {
		return nil, err
	}
	if event.EventID == "" {
		event.EventID = providerCode + ":" + uuid.NewString()
	}
	if event.Unmapped {
		p.logger.Warn("Unrecognized provider status, conservatively treated as PENDING",
			zap.String("provider", providerCode),
			zap.String("raw_status", event.RawStatus),
			zap.String("event_id", event.EventID))
	}

	marked := false
	if p.replay != nil {
		duplicate, err := p.replay.Seen(ctx, event.EventID)
		if err != nil {
			// Guard failure must not drop real events; the reconciler is
			// idempotent on event id anyway.
			p.logger.Warn("Replay guard unavailable", zap.Error(err))
		} else if duplicate {
			p.logger.Info("Duplicate webhook delivery dropped",
				zap.String("provider", providerCode),
				zap.String("event_id", event.EventID))
			return event, nil
		} else {
			marked = true
		}
	}

	if err := p.reconciler.Apply(ctx, providerCode, event); err != nil {
		// Release the event id so the provider's redelivery is not
		// dropped as a replay while the reconciler is down.
		if marked {
			if ferr := p.replay.Forget(ctx, event.EventID); ferr != nil {
				p.logger.Error("Cannot release event id after failed dispatch, redelivery may be dropped",
					zap.String("event_id", event.EventID),
					zap.Error(ferr))
			}
		}
		return nil, fmt.Errorf("dispatch %s: %w", event.EventID, err)
	}

	p.logger.Info("Webhook event dispatched",
		zap.String("provider", providerCode),
		zap.String("event_id", event.EventID),
		zap.String("type", string(event.Type)),
		zap.String("status", string(event.Status)))
	return event, nil
}
