package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fightzone/backend/internal/access"
	"fightzone/backend/internal/models"
	"fightzone/backend/internal/stripe"
	"fightzone/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test"

type stubStripeAPI struct {
	sessions map[string]*stripe.CheckoutSession
	subs     map[string]*stripe.Subscription
}

func (s *stubStripeAPI) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("no such session %s", id)
}

func (s *stubStripeAPI) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if sub, ok := s.subs[id]; ok {
		return sub, nil
	}
	return nil, fmt.Errorf("no such subscription %s", id)
}

func (s *stubStripeAPI) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStripeAPI) CreateCheckoutSession(ctx context.Context, params stripe.CheckoutParams) (*stripe.CheckoutSession, error) {
	return nil, errors.New("not implemented")
}

func newWebhookTestServer(api stripe.API, store access.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)

	relay := stripe.NewRelay(api, store, 10*time.Minute, logger.GetGlobal())
	handler := NewWebhookHandler(relay, testWebhookSecret, 1<<20, logger.GetGlobal())

	r := gin.New()
	r.POST("/api/webhook", handler.HandleWebhook)
	r.GET("/api/verify", handler.HandleVerify)
	return r
}

func signedRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Stripe-Signature", stripe.SignHeader(payload, "1700000000", testWebhookSecret))
	return req
}

func TestWebhookStoresVIPCheckout(t *testing.T) {
	store := access.NewMemoryStore()
	r := newWebhookTestServer(&stubStripeAPI{}, store)

	payload := []byte(`{
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_vip",
			"mode": "payment",
			"amount_total": 2500,
			"currency": "eur",
			"customer_email": "Vip@Example.com"
		}}
	}`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, signedRequest(t, payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "received")

	rec, err := store.GetByEmail(context.Background(), "vip@example.com")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.TierVIP, rec.Tier)
	assert.Nil(t, rec.ExpiresAt)
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	store := access.NewMemoryStore()
	r := newWebhookTestServer(&stubStripeAPI{}, store)

	payload := []byte(`{"type":"checkout.session.completed","data":{"object":{"id":"cs_1","amount_total":500,"currency":"eur","customer_email":"fan@example.com"}}}`)

	// Body altered after signing: 500 cents becomes a VIP amount
	tampered := bytes.Replace(payload, []byte("500"), []byte("2500"), 1)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(tampered))
	req.Header.Set("Stripe-Signature", stripe.SignHeader(payload, "1700000000", testWebhookSecret))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	rec, err := store.GetByEmail(context.Background(), "fan@example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	r := newWebhookTestServer(&stubStripeAPI{}, access.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyReturnsStoredSession(t *testing.T) {
	store := access.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "cs_77", "fan@example.com", models.AccessRecord{
		Tier:      models.TierPremium,
		ExpiresAt: models.ExpiryAt(time.Now().Add(time.Hour).Unix()),
	}))

	r := newWebhookTestServer(&stubStripeAPI{}, store)

	req := httptest.NewRequest(http.MethodGet, "/api/verify?session_id=cs_77", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":true`)
	assert.Contains(t, w.Body.String(), `"tier":"premium"`)
	assert.Contains(t, w.Body.String(), "fan@example.com")
}

func TestVerifyUnknownSessionReportsInactive(t *testing.T) {
	r := newWebhookTestServer(&stubStripeAPI{}, access.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/verify?session_id=cs_missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Lookup failure keeps the poller going rather than erroring out
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":false`)
}

func TestVerifyRequiresSessionID(t *testing.T) {
	r := newWebhookTestServer(&stubStripeAPI{}, access.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/verify", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
