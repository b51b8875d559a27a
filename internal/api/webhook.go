package api

import (
	"encoding/json"
	"io"
	"net/http"

	"fightzone/backend/internal/stripe"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/shared/observability"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives payment-provider webhooks and serves the
// post-checkout verification endpoint the return page polls
type WebhookHandler struct {
	relay         *stripe.Relay
	webhookSecret string
	maxBodySize   int64
	logger        *logger.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(relay *stripe.Relay, webhookSecret string, maxBodySize int64, logger *logger.Logger) *WebhookHandler {
	if maxBodySize <= 0 {
		maxBodySize = 1 << 20
	}
	return &WebhookHandler{
		relay:         relay,
		webhookSecret: webhookSecret,
		maxBodySize:   maxBodySize,
		logger:        logger,
	}
}

// HandleWebhook verifies the provider signature over the raw body and
// relays the event into the access store. The provider retries on
// non-2xx, so processing failures return 500 on purpose.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	sig := c.GetHeader("Stripe-Signature")
	if err := stripe.VerifySignature(payload, sig, h.webhookSecret); err != nil {
		h.logger.Warn("Webhook signature rejected", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	handled, err := h.relay.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		observability.WebhookEvents.WithLabelValues(event.Type, "error").Inc()
		h.logger.Error("Webhook processing failed", "type", event.Type, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event processing failed"})
		return
	}

	if handled {
		observability.WebhookEvents.WithLabelValues(event.Type, "handled").Inc()
	} else {
		observability.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		h.logger.Debug("Ignoring webhook event", "type", event.Type)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// HandleVerify answers the return page's "did my payment land yet" poll.
// Lookup failures report inactive rather than an error so the page keeps
// polling until the webhook catches up.
func (h *WebhookHandler) HandleVerify(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	result, err := h.relay.VerifySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Warn("Session verification failed", "session_id", sessionID, "error", err.Error())
		c.JSON(http.StatusOK, gin.H{"ok": true, "active": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"active":    result.Active,
		"tier":      result.Tier,
		"expiresAt": result.ExpiresAt,
		"email":     result.Email,
	})
}
