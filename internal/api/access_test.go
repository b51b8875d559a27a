package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fightzone/backend/internal/access"
	"fightzone/backend/internal/models"
	"fightzone/backend/pkg/cache"
	"fightzone/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a Store and counts email lookups so tests can tell
// a cache hit from a store read
type countingStore struct {
	access.Store
	emailReads int
}

func (s *countingStore) GetByEmail(ctx context.Context, email string) (*models.AccessRecord, error) {
	s.emailReads++
	return s.Store.GetByEmail(ctx, email)
}

func newAccessTestServer(store access.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)

	handler := NewAccessHandler(store, &stubStripeAPI{}, cache.NewCache(30*time.Second, 0, 100), logger.GetGlobal())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", uint(7))
		c.Set("userEmail", "fan@example.com")
	})
	r.GET("/api/v1/access/:event_id", handler.CheckAccess)
	return r
}

func TestCheckAccessSeesGrantAfterDenial(t *testing.T) {
	store := access.NewMemoryStore()
	r := newAccessTestServer(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/access/evt_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":false`)

	// The payment webhook settles between two polls of the return page
	require.NoError(t, store.Put(context.Background(), "cs_1", "fan@example.com", models.AccessRecord{
		Tier:      models.TierPremium,
		ExpiresAt: models.ExpiryAt(time.Now().Add(time.Hour).Unix()),
	}))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/access/evt_1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":true`)
	assert.Contains(t, w.Body.String(), `"tier":"premium"`)
}

func TestCheckAccessCachesGrants(t *testing.T) {
	store := &countingStore{Store: access.NewMemoryStore()}
	require.NoError(t, store.Put(context.Background(), "cs_1", "fan@example.com", models.AccessRecord{
		Tier: models.TierVIP,
	}))

	r := newAccessTestServer(store)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/access/evt_1", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"active":true`)
	}

	assert.Equal(t, 1, store.emailReads)
}

func TestCheckAccessEventGrant(t *testing.T) {
	store := access.NewMemoryStore()
	require.NoError(t, store.PutEventGrant(context.Background(), "fan@example.com", "evt_9"))

	r := newAccessTestServer(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/access/evt_9", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":true`)

	// The single-event purchase unlocks only its own event
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/access/evt_other", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":false`)
}
