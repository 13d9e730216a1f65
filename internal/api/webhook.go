package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kwestby/ciwatch/internal/ingest"
	"github.com/kwestby/ciwatch/internal/logger"
	"github.com/kwestby/ciwatch/internal/observability/metrics"
)

// Webhook request headers set by the upstream sender.
const (
	headerSignature = "X-Hub-Signature-256"
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"
)

// maxWebhookBody caps the request body read for signature verification.
const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookIntake authenticates and ingests one pushed delivery. The
// signature is verified over the exact raw body before any JSON parsing.
// Non-workflow-run events are acknowledged with 202 so the sender does not
// retry them indefinitely.
func (c *Controller) WebhookIntake(ctx echo.Context) error {
	deliveryID := ctx.Request().Header.Get(headerDelivery)
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	event := ctx.Request().Header.Get(headerEvent)

	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBody))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}

	sig := ctx.Request().Header.Get(headerSignature)
	if err := ingest.VerifySignature(c.webhookSecret, body, sig); err != nil {
		metrics.WebhookDeliveries.WithLabelValues("unauthorized").Inc()
		if errors.Is(err, ingest.ErrSecretNotConfigured) {
			c.log.Error("webhook rejected: no secret configured",
				logger.String("delivery_id", deliveryID))
			return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Webhook intake is not configured"})
		}
		c.log.Warn("webhook rejected: signature verification failed",
			logger.String("delivery_id", deliveryID),
			logger.String("event", event))
		return ctx.JSON(http.StatusUnauthorized, map[string]string{"error": "Signature verification failed"})
	}

	result, err := c.pipeline.HandleDelivery(ctx.Request().Context(), event, body)
	if err != nil {
		if errors.Is(err, ingest.ErrMalformedPayload) {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Malformed payload"})
		}
		return c.HandleError(ctx, err, "Failed to ingest delivery", http.StatusInternalServerError)
	}

	if !result.Accepted {
		// Recognized but uninteresting event category.
		return ctx.JSON(http.StatusAccepted, result)
	}
	return ctx.JSON(http.StatusOK, result)
}
