package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fightzone/backend/pkg/config"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/pkg/resilience"
)

// API is the subset of the Stripe REST API the relay depends on
type API interface {
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// CheckoutSession mirrors the fields of a Stripe Checkout Session this
// service reads
type CheckoutSession struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Mode            string            `json:"mode"` // "subscription" or "payment"
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email"`
	Customer        string            `json:"customer"`
	Subscription    string            `json:"subscription"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Email returns the buyer's email, preferring customer_details
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// Subscription mirrors the fields of a Stripe Subscription this service reads
type Subscription struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	Customer         string `json:"customer"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

// Entitling reports whether the subscription status grants access
func (s *Subscription) Entitling() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// Customer mirrors the fields of a Stripe Customer this service reads
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CheckoutParams describes a checkout session to create
type CheckoutParams struct {
	Plan      string
	ReturnTo  string
	EventID   string
	UserID    uint
	UserEmail string
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Stripe REST API with form-encoded requests. All
// calls go through a circuit breaker so a provider outage fails fast
// instead of stacking up timeouts in the webhook path.
type Client struct {
	client    *http.Client
	baseURL   string
	secretKey string
	breaker   *resilience.CircuitBreaker
	log       *logger.Logger
}

// NewClient builds a Stripe client from application configuration
func NewClient(secretKey string, log *logger.Logger) *Client {
	cfg := config.Get()
	return &Client{
		client:    &http.Client{Timeout: cfg.Stripe.Timeout},
		baseURL:   cfg.Stripe.APIBaseURL,
		secretKey: secretKey,
		breaker:   resilience.NewCircuitBreaker(resilience.DefaultConfig("stripe"), log),
		log:       log,
	}
}

// GetCheckoutSession fetches a checkout session by id
func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/checkout/sessions/"+url.PathEscape(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSubscription fetches a subscription by id
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetCustomer fetches a customer by id
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var cust Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &cust); err != nil {
		return nil, err
	}
	return &cust, nil
}

// Plan pricing: basic and premium are monthly subscriptions, vip and
// one_time are single payments. Amounts are EUR cents and must stay in
// sync with the tier inference table.
var planPricing = map[string]struct {
	Amount int64
	Name   string
	Mode   string
}{
	"basic":    {Amount: 500, Name: "Fightzone Basic (monthly)", Mode: "subscription"},
	"premium":  {Amount: 1000, Name: "Fightzone Premium (monthly)", Mode: "subscription"},
	"vip":      {Amount: 2500, Name: "Fightzone VIP (lifetime)", Mode: "payment"},
	"one_time": {Amount: 500, Name: "Fightzone event access", Mode: "payment"},
}

// CreateCheckoutSession creates a checkout session for the given plan and
// returns the session including the redirect URL
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	pricing, ok := planPricing[params.Plan]
	if !ok {
		return nil, fmt.Errorf("unknown plan %q", params.Plan)
	}

	successURL := params.ReturnTo
	if strings.Contains(successURL, "?") {
		successURL += "&paid=1&session_id={CHECKOUT_SESSION_ID}"
	} else {
		successURL += "?paid=1&session_id={CHECKOUT_SESSION_ID}"
	}

	form := url.Values{}
	form.Set("mode", pricing.Mode)
	form.Set("success_url", successURL)
	form.Set("cancel_url", params.ReturnTo)
	form.Set("customer_email", params.UserEmail)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", "eur")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(pricing.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", pricing.Name)
	if pricing.Mode == "subscription" {
		form.Set("line_items[0][price_data][recurring][interval]", "month")
	}
	form.Set("metadata[user_id]", strconv.FormatUint(uint64(params.UserID), 10))
	form.Set("metadata[plan]", params.Plan)
	if params.EventID != "" {
		form.Set("metadata[event_id]", params.EventID)
	}

	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// do performs one API call through the circuit breaker
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	return c.breaker.Execute(func() error {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 400 {
			var apiErr apiError
			if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
				return fmt.Errorf("stripe: %s", apiErr.Error.Message)
			}
			return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
		}

		return json.Unmarshal(raw, out)
	})
}
