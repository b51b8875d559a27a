package stripe

import (
	"context"
	"encoding/json"
	"time"

	"fightzone/backend/internal/access"
	"fightzone/backend/internal/models"
	"fightzone/backend/pkg/logger"
)

// Event is the envelope of a Stripe webhook payload
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// subscriptionEvent is the object carried by customer.subscription.* and
// invoice.payment_failed events
type subscriptionEvent struct {
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// VerifyResult is the outcome of a session verification
type VerifyResult struct {
	Active    bool        `json:"active"`
	Tier      models.Tier `json:"tier"`
	ExpiresAt *int64      `json:"expiresAt"`
	Email     string      `json:"email,omitempty"`
}

// Relay reconciles payment-provider events into the access store. It is
// stateless per request; all state lives in the store.
type Relay struct {
	api   API
	store access.Store
	log   *logger.Logger
	grace time.Duration
	now   func() time.Time
}

// NewRelay creates a relay with the given grace window for the case where
// a subscription lookup fails right after checkout
func NewRelay(api API, store access.Store, grace time.Duration, log *logger.Logger) *Relay {
	return &Relay{
		api:   api,
		store: store,
		log:   log,
		grace: grace,
		now:   time.Now,
	}
}

// HandleEvent processes one verified webhook event. The boolean reports
// whether the event type was recognized; unknown types are acknowledged
// without touching the store.
func (r *Relay) HandleEvent(ctx context.Context, evt *Event) (bool, error) {
	switch evt.Type {
	case "checkout.session.completed":
		return true, r.handleCheckoutCompleted(ctx, evt.Data.Object)

	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return true, r.handleSubscriptionChange(ctx, evt.Data.Object)

	case "invoice.payment_failed":
		return true, r.handlePaymentFailed(ctx, evt.Data.Object)
	}

	return false, nil
}

func (r *Relay) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var session CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return err
	}

	email := session.Email()
	if models.NormalizeEmail(email) == "" {
		r.log.Warn("Checkout completed without an email, nothing to store", "session_id", session.ID)
		return nil
	}

	// One-time event purchases grant a single event, not a tier
	if session.Metadata["plan"] == "one_time" {
		eventID := session.Metadata["event_id"]
		if eventID == "" {
			r.log.Warn("One-time checkout without event id", "session_id", session.ID)
			return nil
		}
		return r.store.PutEventGrant(ctx, email, eventID)
	}

	tier, expiresAt := r.deriveEntitlement(ctx, &session)

	rec := models.AccessRecord{Tier: tier, ExpiresAt: expiresAt}
	return r.store.Put(ctx, session.ID, email, rec)
}

// deriveEntitlement computes {tier, expiry} for a completed checkout.
// VIP is a lifetime purchase and carries no expiry. Subscriptions expire
// at the current period end; a failed subscription lookup grants a short
// grace window instead of locking the buyer out.
func (r *Relay) deriveEntitlement(ctx context.Context, session *CheckoutSession) (models.Tier, *int64) {
	tier := models.TierFromAmount(session.AmountTotal, session.Currency)

	if tier == models.TierVIP {
		return tier, nil
	}

	if session.Mode == "subscription" && session.Subscription != "" {
		sub, err := r.api.GetSubscription(ctx, session.Subscription)
		if err != nil {
			r.log.Warn("Subscription lookup failed, granting grace window",
				"session_id", session.ID,
				"error", err.Error(),
			)
			return tier, models.ExpiryAt(r.now().Add(r.grace).Unix())
		}
		if sub.Entitling() {
			return tier, models.ExpiryAt(sub.CurrentPeriodEnd)
		}
		// not active -> no access
		return tier, models.ExpiryAt(0)
	}

	// Unknown shape: do not grant long access
	return tier, models.ExpiryAt(r.now().Add(r.grace).Unix())
}

func (r *Relay) handleSubscriptionChange(ctx context.Context, raw json.RawMessage) error {
	var sub subscriptionEvent
	if err := json.Unmarshal(raw, &sub); err != nil {
		return err
	}

	email := r.resolveCustomerEmail(ctx, sub.Customer)
	if email == "" {
		return nil
	}

	// The event alone cannot tell basic from premium, so the stored tier
	// is preserved; accounts with no record default to basic.
	tier := r.storedTierOrBasic(ctx, email)

	var expiresAt *int64
	if sub.Status == "active" || sub.Status == "trialing" {
		expiresAt = models.ExpiryAt(sub.CurrentPeriodEnd)
	} else {
		expiresAt = models.ExpiryAt(0)
	}

	return r.store.Put(ctx, "", email, models.AccessRecord{Tier: tier, ExpiresAt: expiresAt})
}

func (r *Relay) handlePaymentFailed(ctx context.Context, raw json.RawMessage) error {
	var invoice subscriptionEvent
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return err
	}

	email := r.resolveCustomerEmail(ctx, invoice.Customer)
	if email == "" {
		return nil
	}

	tier := r.storedTierOrBasic(ctx, email)

	// Immediate revocation
	return r.store.Put(ctx, "", email, models.AccessRecord{Tier: tier, ExpiresAt: models.ExpiryAt(0)})
}

// resolveCustomerEmail maps a customer id to an email; failures are
// logged and treated as "nothing to update"
func (r *Relay) resolveCustomerEmail(ctx context.Context, customerID string) string {
	if customerID == "" {
		return ""
	}
	cust, err := r.api.GetCustomer(ctx, customerID)
	if err != nil {
		r.log.Warn("Customer lookup failed", "customer_id", customerID, "error", err.Error())
		return ""
	}
	return cust.Email
}

func (r *Relay) storedTierOrBasic(ctx context.Context, email string) models.Tier {
	existing, err := r.store.GetByEmail(ctx, email)
	if err != nil || existing == nil || existing.Tier == "" {
		return models.TierBasic
	}
	return existing.Tier
}

// VerifySession answers "is this checkout session entitled right now".
// The store is consulted first; on a miss or a stale record the session
// is re-derived from Stripe directly, which covers webhook delivery lag,
// and the result is written back.
func (r *Relay) VerifySession(ctx context.Context, sessionID string) (*VerifyResult, error) {
	cached, err := r.store.GetBySession(ctx, sessionID)
	if err == nil && cached != nil && cached.ActiveAt(r.now()) {
		return &VerifyResult{
			Active:    true,
			Tier:      cached.Tier,
			ExpiresAt: cached.ExpiresAt,
			Email:     cached.Email,
		}, nil
	}

	session, err := r.api.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	email := session.Email()
	tier := models.TierFromAmount(session.AmountTotal, session.Currency)
	var expiresAt *int64

	if tier == models.TierVIP {
		expiresAt = nil
	} else if session.Mode == "subscription" && session.Subscription != "" {
		sub, err := r.api.GetSubscription(ctx, session.Subscription)
		if err != nil {
			return nil, err
		}
		if sub.Entitling() {
			expiresAt = models.ExpiryAt(sub.CurrentPeriodEnd)
		} else {
			expiresAt = models.ExpiryAt(0)
		}

		// A basic-amount lookup must not downgrade an account already
		// stored as premium; the raw amount is a poor tier signal here.
		if existing, err := r.store.GetByEmail(ctx, email); err == nil && existing != nil && existing.Tier == models.TierPremium {
			tier = models.TierPremium
		}
	} else {
		expiresAt = models.ExpiryAt(r.now().Add(r.grace).Unix())
	}

	rec := models.AccessRecord{Tier: tier, ExpiresAt: expiresAt}
	if err := r.store.Put(ctx, sessionID, email, rec); err != nil {
		r.log.Warn("Failed to write back verified access record", "session_id", sessionID, "error", err.Error())
	}

	return &VerifyResult{
		Active:    rec.ActiveAt(r.now()),
		Tier:      tier,
		ExpiresAt: expiresAt,
		Email:     models.NormalizeEmail(email),
	}, nil
}

// SetNow overrides the relay clock (tests only)
func (r *Relay) SetNow(now func() time.Time) {
	r.now = now
}
