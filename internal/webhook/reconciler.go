package webhook

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bersepay/internal/gateway"
	"bersepay/internal/models"
)

// Reconciler accepts canonical webhook events keyed by event id and owns the
// durable transaction state transition. It must tolerate the same event id
// arriving more than once.
type Reconciler interface {
	Apply(ctx context.Context, providerCode string, event *gateway.WebhookEvent) error
}

// LedgerStore is the persistence surface the reconciler needs. Implemented by
// repository.LedgerRepository.
type LedgerStore interface {
	FindByIntentID(intentID string) (*models.PaymentLedger, error)
	Create(row *models.PaymentLedger) error
	UpdateStatus(intentID, status, eventID string, paidAt *time.Time) error
}

// LedgerReconciler applies canonical events to the payment ledger. Updates
// are monotonic: a terminal status never regresses because deliveries arrive
// out of provider-emission order.
type LedgerReconciler struct {
	ledger LedgerStore
	logger *zap.Logger
}

func NewLedgerReconciler(ledger LedgerStore, logger *zap.Logger) *LedgerReconciler {
	return &LedgerReconciler{ledger: ledger, logger: logger}
}

// statusRank orders canonical statuses so late deliveries of stale states are
// ignored. Terminal states share the top rank; the first one recorded sticks.
var statusRank = map[gateway.Status]int{
	gateway.StatusPending:    0,
	gateway.StatusProcessing: 1,
	gateway.StatusAuthorized: 2,
	gateway.StatusCompleted:  3,
	gateway.StatusFailed:     3,
	gateway.StatusCancelled:  3,
}

func (r *LedgerReconciler) Apply(ctx context.Context, providerCode string, event *gateway.WebhookEvent) error {
	row, err := r.ledger.FindByIntentID(event.IntentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return r.ledger.Create(&models.PaymentLedger{
			IntentID:     event.IntentID,
			ProviderCode: providerCode,
			Amount:       event.Amount,
			Currency:     event.Currency,
			Status:       string(event.Status),
			LastEventID:  event.EventID,
			PaidAt:       event.PaidAt,
		})
	}

	if row.LastEventID == event.EventID {
		r.logger.Debug("Event already applied",
			zap.String("event_id", event.EventID),
			zap.String("intent_id", event.IntentID))
		return nil
	}

	if statusRank[gateway.Status(row.Status)] > statusRank[event.Status] {
		r.logger.Info("Ignoring stale status transition",
			zap.String("intent_id", event.IntentID),
			zap.String("current", row.Status),
			zap.String("incoming", string(event.Status)))
		return nil
	}
	if gateway.Status(row.Status).IsFinal() && event.Status.IsFinal() &&
		row.Status != string(event.Status) {
		r.logger.Warn("Conflicting terminal statuses, keeping first",
			zap.String("intent_id", event.IntentID),
			zap.String("current", row.Status),
			zap.String("incoming", string(event.Status)))
		return nil
	}

	return r.ledger.UpdateStatus(event.IntentID, string(event.Status), event.EventID, event.PaidAt)
}
