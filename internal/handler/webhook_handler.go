package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"bersepay/internal/gateway"
	"bersepay/internal/webhook"
)

// WebhookHandler is the HTTP face of the webhook pipeline: raw bytes and
// headers in, canonical event or rejection reason out.
type WebhookHandler struct {
	pipeline *webhook.Pipeline
	logger   *zap.Logger
}

func NewWebhookHandler(pipeline *webhook.Pipeline, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{pipeline: pipeline, logger: logger}
}

// Ingest handles POST /webhooks/:code.
func (h *WebhookHandler) Ingest(c echo.Context) error {
	providerCode := c.Param("code")

	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"status": false,
			"msg":    "unreadable payload",
		})
	}

	event, err := h.pipeline.Ingest(c.Request().Context(), providerCode, payload, c.Request().Header)
	if err != nil {
		// Untyped errors (reconciler outage) fall through to 500 so the
		// provider retries the delivery.
		status := http.StatusInternalServerError
		switch gateway.KindOf(err) {
		case gateway.KindAuthentication:
			status = http.StatusUnauthorized
		case gateway.KindNotFound:
			status = http.StatusNotFound
		case gateway.KindProvider:
			status = http.StatusBadRequest
		case gateway.KindInvalidState, gateway.KindConfiguration:
			status = http.StatusConflict
		}
		h.logger.Warn("Webhook rejected",
			zap.String("provider", providerCode),
			zap.Int("status", status),
			zap.Error(err))
		return c.JSON(status, map[string]interface{}{
			"status": false,
			"msg":    err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": true,
		"obj": map[string]interface{}{
			"event_id": event.EventID,
			"type":     event.Type,
		},
	})
}
