package paywall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"fightzone/backend/pkg/logger"
)

var (
	// ErrLoginRequired is returned when checkout is attempted without a
	// usable session token, after one refresh attempt
	ErrLoginRequired = errors.New("login required")

	// ErrEventRequired is returned for single-event purchases without an
	// event id
	ErrEventRequired = errors.New("event id required for one-time purchase")
)

// AccessChecker answers whether the current user can watch an event. Any
// error means no access; denial reasons are not distinguished.
type AccessChecker interface {
	HasAccess(ctx context.Context, eventID string) (bool, error)
}

// Overlay is the paywall curtain over the player
type Overlay interface {
	Show()
	Hide()
}

// TokenSource provides the session bearer token. Refresh is the one
// retry allowed before checkout gives up.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Redirector sends the browser to the checkout page
type Redirector interface {
	Redirect(url string)
}

// Config tunes the gate; zero values fall back to the defaults
type Config struct {
	// CheckoutURL is the endpoint that creates payment sessions
	CheckoutURL string
	// ReturnTo is where checkout sends the buyer back to
	ReturnTo string
	// ReturnPollTries bounds the post-purchase poll that covers webhook
	// settlement latency
	ReturnPollTries    int
	ReturnPollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ReturnPollTries <= 0 {
		c.ReturnPollTries = 12
	}
	if c.ReturnPollInterval <= 0 {
		c.ReturnPollInterval = time.Second
	}
}

// Gate owns paywall visibility for one event
type Gate struct {
	eventID  string
	checker  AccessChecker
	overlay  Overlay
	tokens   TokenSource
	redirect Redirector
	client   *http.Client
	cfg      Config
	log      *logger.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// NewGate creates a paywall gate for the given event
func NewGate(eventID string, checker AccessChecker, overlay Overlay, tokens TokenSource, redirect Redirector, cfg Config, log *logger.Logger) *Gate {
	cfg.applyDefaults()
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Gate{
		eventID:  eventID,
		checker:  checker,
		overlay:  overlay,
		tokens:   tokens,
		redirect: redirect,
		client:   &http.Client{Timeout: 15 * time.Second},
		cfg:      cfg,
		log:      log,
		sleep:    time.Sleep,
	}
}

// Refresh re-checks access and toggles the overlay. Errors resolve to
// "no access": the curtain stays down rather than risking a free stream.
func (g *Gate) Refresh(ctx context.Context) bool {
	has, err := g.checker.HasAccess(ctx, g.eventID)
	if err != nil {
		g.log.Warn("Access check failed", "event_id", g.eventID, "error", err.Error())
		has = false
	}

	if has {
		g.overlay.Hide()
	} else {
		g.overlay.Show()
	}
	return has
}

// HandleReturn processes the URL the buyer lands on after checkout. When
// it carries paid=1, access is polled for a bounded window so the page
// unlocks as soon as the webhook settles, then the marker is stripped.
// The cleaned URL is returned either way.
func (g *Gate) HandleReturn(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	query := parsed.Query()
	if query.Get("paid") != "1" {
		g.Refresh(ctx)
		return rawURL, nil
	}

	for try := 0; try < g.cfg.ReturnPollTries; try++ {
		if g.Refresh(ctx) {
			break
		}
		if try < g.cfg.ReturnPollTries-1 {
			g.sleep(g.cfg.ReturnPollInterval)
		}
	}

	query.Del("paid")
	query.Del("session_id")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

type checkoutResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// StartCheckout begins a purchase: fetches a bearer token (refreshing it
// once if missing), asks the backend for a checkout session and hands the
// redirect URL to the browser
func (g *Gate) StartCheckout(ctx context.Context, plan string) error {
	if plan == "one_time" && g.eventID == "" {
		return ErrEventRequired
	}

	token, err := g.tokens.Token(ctx)
	if err != nil || token == "" {
		token, err = g.tokens.Refresh(ctx)
		if err != nil || token == "" {
			return ErrLoginRequired
		}
	}

	body, err := json.Marshal(map[string]string{
		"plan":      plan,
		"return_to": g.cfg.ReturnTo,
		"event_id":  g.eventID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.CheckoutURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK || out.URL == "" {
		if out.Error != "" {
			return fmt.Errorf("checkout failed: %s", out.Error)
		}
		return fmt.Errorf("checkout failed with status %d", resp.StatusCode)
	}

	g.redirect.Redirect(out.URL)
	return nil
}
