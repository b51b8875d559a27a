package api

import (
	"net/http"
	"time"

	"fightzone/backend/internal/access"
	"fightzone/backend/internal/models"
	"fightzone/backend/internal/stripe"
	"fightzone/backend/pkg/cache"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/shared/observability"

	"github.com/gin-gonic/gin"
)

// accessStatus is the payload of an access check
type accessStatus struct {
	Active    bool        `json:"active"`
	Tier      models.Tier `json:"tier,omitempty"`
	ExpiresAt *int64      `json:"expiresAt,omitempty"`
}

// AccessHandler answers "can this user watch this event" and starts
// checkout flows for the plans that unlock it
type AccessHandler struct {
	store  access.Store
	api    stripe.API
	cache  *cache.Cache
	logger *logger.Logger
}

// NewAccessHandler creates a new access handler. The cache keeps hot
// event pages from hitting redis on every request.
func NewAccessHandler(store access.Store, api stripe.API, c *cache.Cache, logger *logger.Logger) *AccessHandler {
	return &AccessHandler{
		store:  store,
		api:    api,
		cache:  c,
		logger: logger,
	}
}

// CheckAccess reports whether the authenticated user can watch the event
func (h *AccessHandler) CheckAccess(c *gin.Context) {
	email := models.NormalizeEmail(c.GetString("userEmail"))
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	eventID := c.Param("event_id")
	cacheKey := "access:" + email + ":" + eventID

	if cached, ok := h.cache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, cached.(accessStatus))
		return
	}

	status := accessStatus{}

	rec, err := h.store.GetByEmail(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("Error reading access record", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
		return
	}
	if rec != nil {
		status.Tier = rec.Tier
		status.ExpiresAt = rec.ExpiresAt
		status.Active = rec.ActiveAt(time.Now())
	}

	// A single-event purchase unlocks just this event
	if !status.Active && eventID != "" {
		granted, err := h.store.HasEventGrant(c.Request.Context(), email, eventID)
		if err != nil {
			h.logger.Error("Error reading event grant", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
			return
		}
		status.Active = granted
	}

	if status.Active {
		observability.AccessChecks.WithLabelValues("granted").Inc()
		// Only grants are cached. A denial can flip to a grant the moment
		// the payment webhook settles, and the post-checkout return poll
		// must observe that within its one-second cadence.
		h.cache.Set(cacheKey, status)
	} else {
		observability.AccessChecks.WithLabelValues("denied").Inc()
	}

	c.JSON(http.StatusOK, status)
}

type checkoutRequest struct {
	Plan     string `json:"plan" binding:"required"`
	ReturnTo string `json:"return_to" binding:"required"`
	EventID  string `json:"event_id"`
}

// StartCheckout creates a payment session and returns its redirect URL
func (h *AccessHandler) StartCheckout(c *gin.Context) {
	userID, exists := c.Get("userId")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	session, err := h.api.CreateCheckoutSession(c.Request.Context(), stripe.CheckoutParams{
		Plan:      req.Plan,
		ReturnTo:  req.ReturnTo,
		EventID:   req.EventID,
		UserID:    userID.(uint),
		UserEmail: c.GetString("userEmail"),
	})
	if err != nil {
		h.logger.Error("Error creating checkout session", "plan", req.Plan, "error", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to start checkout"})
		return
	}

	observability.CheckoutSessions.WithLabelValues(req.Plan).Inc()
	c.JSON(http.StatusOK, gin.H{"url": session.URL, "session_id": session.ID})
}
