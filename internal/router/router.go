package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"bersepay/internal/handler"
)

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, webhookHandler *handler.WebhookHandler) {
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Providers post asynchronous payment notifications here.
	e.POST("/webhooks/:code", webhookHandler.Ingest)
}
