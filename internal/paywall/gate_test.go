package paywall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	results []bool
	err     error
	calls   int
}

func (f *fakeChecker) HasAccess(ctx context.Context, eventID string) (bool, error) {
	idx := f.calls
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if idx >= len(f.results) {
		return f.results[len(f.results)-1], nil
	}
	return f.results[idx], nil
}

type fakeOverlay struct {
	visible bool
	toggles int
}

func (f *fakeOverlay) Show() { f.visible = true; f.toggles++ }
func (f *fakeOverlay) Hide() { f.visible = false; f.toggles++ }

type fakeTokens struct {
	token      string
	refreshed  string
	refreshErr error
	refreshes  int
}

func (f *fakeTokens) Token(ctx context.Context) (string, error) {
	return f.token, nil
}

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.refreshes++
	return f.refreshed, f.refreshErr
}

type fakeRedirector struct {
	target string
}

func (f *fakeRedirector) Redirect(url string) { f.target = url }

func newTestGate(eventID string, checker *fakeChecker, tokens *fakeTokens, cfg Config) (*Gate, *fakeOverlay, *fakeRedirector, *[]time.Duration) {
	overlay := &fakeOverlay{}
	redirect := &fakeRedirector{}
	gate := NewGate(eventID, checker, overlay, tokens, redirect, cfg, nil)

	var sleeps []time.Duration
	gate.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return gate, overlay, redirect, &sleeps
}

func TestRefreshTogglesOverlay(t *testing.T) {
	ctx := context.Background()
	checker := &fakeChecker{results: []bool{false, true}}
	gate, overlay, _, _ := newTestGate("event-1", checker, &fakeTokens{}, Config{})

	assert.False(t, gate.Refresh(ctx))
	assert.True(t, overlay.visible)

	assert.True(t, gate.Refresh(ctx))
	assert.False(t, overlay.visible)
}

func TestRefreshErrorMeansNoAccess(t *testing.T) {
	checker := &fakeChecker{err: errors.New("rpc failed")}
	gate, overlay, _, _ := newTestGate("event-1", checker, &fakeTokens{}, Config{})

	assert.False(t, gate.Refresh(context.Background()))
	assert.True(t, overlay.visible)
}

func TestHandleReturnPollsUntilAccess(t *testing.T) {
	checker := &fakeChecker{results: []bool{false, false, true}}
	gate, overlay, _, sleeps := newTestGate("event-1", checker, &fakeTokens{}, Config{
		ReturnPollTries:    12,
		ReturnPollInterval: time.Second,
	})

	cleaned, err := gate.HandleReturn(context.Background(), "https://fightzone.tv/event?paid=1&session_id=cs_1&v=2")
	require.NoError(t, err)

	// Stopped early on the third check, sleeping between attempts
	assert.Equal(t, 3, checker.calls)
	assert.Len(t, *sleeps, 2)
	assert.False(t, overlay.visible)

	// The checkout markers are stripped, other params survive
	assert.NotContains(t, cleaned, "paid=1")
	assert.NotContains(t, cleaned, "session_id")
	assert.Contains(t, cleaned, "v=2")
}

func TestHandleReturnGivesUpAfterBoundedTries(t *testing.T) {
	checker := &fakeChecker{results: []bool{false}}
	gate, overlay, _, sleeps := newTestGate("event-1", checker, &fakeTokens{}, Config{
		ReturnPollTries:    12,
		ReturnPollInterval: time.Second,
	})

	_, err := gate.HandleReturn(context.Background(), "https://fightzone.tv/event?paid=1")
	require.NoError(t, err)

	assert.Equal(t, 12, checker.calls)
	assert.Len(t, *sleeps, 11)
	assert.True(t, overlay.visible)
}

func TestHandleReturnWithoutMarkerChecksOnce(t *testing.T) {
	checker := &fakeChecker{results: []bool{true}}
	gate, _, _, sleeps := newTestGate("event-1", checker, &fakeTokens{}, Config{})

	cleaned, err := gate.HandleReturn(context.Background(), "https://fightzone.tv/event")
	require.NoError(t, err)
	assert.Equal(t, "https://fightzone.tv/event", cleaned)
	assert.Equal(t, 1, checker.calls)
	assert.Empty(t, *sleeps)
}

func TestStartCheckoutRedirects(t *testing.T) {
	var gotAuth, gotPlan, gotEvent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotPlan = body["plan"]
		gotEvent = body["event_id"]
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"https://checkout.example/session/cs_1"}`))
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "tok_live"}
	gate, _, redirect, _ := newTestGate("event-1", &fakeChecker{results: []bool{false}}, tokens, Config{
		CheckoutURL: server.URL,
		ReturnTo:    "https://fightzone.tv/event",
	})

	require.NoError(t, gate.StartCheckout(context.Background(), "premium"))
	assert.Equal(t, "Bearer tok_live", gotAuth)
	assert.Equal(t, "premium", gotPlan)
	assert.Equal(t, "event-1", gotEvent)
	assert.Equal(t, "https://checkout.example/session/cs_1", redirect.target)
}

func TestStartCheckoutRefreshesTokenOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"https://checkout.example/session/cs_2"}`))
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "", refreshed: "tok_refreshed"}
	gate, _, redirect, _ := newTestGate("event-1", &fakeChecker{results: []bool{false}}, tokens, Config{
		CheckoutURL: server.URL,
	})

	require.NoError(t, gate.StartCheckout(context.Background(), "basic"))
	assert.Equal(t, 1, tokens.refreshes)
	assert.NotEmpty(t, redirect.target)
}

func TestStartCheckoutLoginRequired(t *testing.T) {
	tokens := &fakeTokens{token: "", refreshed: ""}
	gate, _, _, _ := newTestGate("event-1", &fakeChecker{results: []bool{false}}, tokens, Config{
		CheckoutURL: "http://localhost:0",
	})

	err := gate.StartCheckout(context.Background(), "basic")
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.Equal(t, 1, tokens.refreshes)
}

func TestStartCheckoutOneTimeRequiresEvent(t *testing.T) {
	gate, _, _, _ := newTestGate("", &fakeChecker{results: []bool{false}}, &fakeTokens{token: "tok"}, Config{})

	err := gate.StartCheckout(context.Background(), "one_time")
	assert.ErrorIs(t, err, ErrEventRequired)
}
