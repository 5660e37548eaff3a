package repository

import (
	"context"
	"testing"
	"time"

	"flexsearch-service/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFareCache_PutGetExpire(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryFareCache()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })

	miss, err := cache.Get(ctx, "OTP:BCN:2024-03-15:5:2:0")
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, cache.Put(ctx, "OTP:BCN:2024-03-15:5:2:0", entity.FareQuote{Price: 149, Currency: "EUR"}, 10*time.Minute))

	now = now.Add(9 * time.Minute)
	hit, err := cache.Get(ctx, "OTP:BCN:2024-03-15:5:2:0")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 149.0, hit.Price)

	now = now.Add(time.Minute)
	expired, err := cache.Get(ctx, "OTP:BCN:2024-03-15:5:2:0")
	require.NoError(t, err)
	assert.Nil(t, expired)
	assert.Zero(t, cache.Len())
}

func TestMemoryFareCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryFareCache()

	require.NoError(t, cache.Put(ctx, "k", entity.FareQuote{Price: 100}, time.Minute))
	require.NoError(t, cache.Put(ctx, "k", entity.FareQuote{Price: 90}, time.Minute))

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.Price)
	assert.Equal(t, 1, cache.Len())
}
