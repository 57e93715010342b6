package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/versewise/versewise-server/internal/pkg/billing"
	"github.com/versewise/versewise-server/internal/pkg/metrics"
	"github.com/versewise/versewise-server/internal/service"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// WebhookHandler receives Stripe event deliveries. Unlike the rest of the
// API it speaks plain HTTP status codes: the provider retries on any
// non-2xx, so permanent rejections return 400 and retryable processing
// failures return 500.
type WebhookHandler struct {
	gateway            billing.Gateway
	entitlementService *service.EntitlementService
}

func NewWebhookHandler(gateway billing.Gateway, entitlementService *service.EntitlementService) *WebhookHandler {
	return &WebhookHandler{
		gateway:            gateway,
		entitlementService: entitlementService,
	}
}

// Handle verifies the signature over the raw body, translates the event and
// runs it through the entitlement engine.
// POST /api/v1/billing/webhook
func (h *WebhookHandler) Handle(c *gin.Context) {
	start := time.Now()
	eventType := "unknown"
	outcome := "failed"
	defer func() {
		metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		outcome = "rejected"
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		outcome = "rejected"
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe signature"})
		return
	}

	// Signature must validate before the payload is parsed at all.
	event, err := h.gateway.ConstructWebhookEvent(payload, sigHeader)
	if err != nil {
		outcome = "rejected"
		log.Warn().Err(err).Msg("webhook signature verification failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	ev, err := billing.EventFromStripe(event)
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("webhook payload decode failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	if ev == nil {
		// Not a type the engine understands; acknowledge so the provider
		// stops redelivering.
		outcome = "ignored"
		log.Info().
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("webhook ignored (unhandled type)")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	result, err := h.entitlementService.Apply(c.Request.Context(), ev)
	if err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("type", eventType).
			Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	if !result.Matched {
		// Unmatched events are acknowledged and dropped; a retry cannot fix
		// them and the provider must not keep redelivering.
		outcome = "unmatched"
	} else {
		outcome = "processed"
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
