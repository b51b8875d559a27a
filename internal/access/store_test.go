package access

import (
	"context"
	"testing"

	"fightzone/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec := models.AccessRecord{Tier: models.TierPremium, ExpiresAt: models.ExpiryAt(1900000000)}
	require.NoError(t, store.Put(ctx, "cs_test_123", "  Fan@Example.COM ", rec))

	// Email lookup is normalized and does not carry the email field
	byEmail, err := store.GetByEmail(ctx, "fan@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, models.TierPremium, byEmail.Tier)
	assert.Empty(t, byEmail.Email)

	// Session lookup carries the normalized email
	bySession, err := store.GetBySession(ctx, "cs_test_123")
	require.NoError(t, err)
	require.NotNil(t, bySession)
	assert.Equal(t, "fan@example.com", bySession.Email)
	assert.Equal(t, models.TierPremium, bySession.Tier)
}

func TestMemoryStoreMissingRecords(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec, err := store.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = store.GetBySession(ctx, "cs_missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStoreIgnoresEmptyEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "cs_test_1", "   ", models.AccessRecord{Tier: models.TierVIP}))

	rec, err := store.GetBySession(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStoreEventGrants(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.PutEventGrant(ctx, "Fan@Example.com", "event-42"))

	ok, err := store.HasEventGrant(ctx, "fan@example.com", "event-42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasEventGrant(ctx, "fan@example.com", "event-43")
	require.NoError(t, err)
	assert.False(t, ok)
}
