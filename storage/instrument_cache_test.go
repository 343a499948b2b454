package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
	"github.com/EggysOnCode/stackex/storage/memstore"
)

// Test_CachedInstruments_Invalidation: catalog writes drop the cached
// entry so the next read sees the change immediately.
func Test_CachedInstruments_Invalidation(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New().Instruments()
	cache := NewCachedInstruments(inner, zap.NewNop())

	// Unknown ticker gets a negative entry.
	active, err := cache.ActiveByTicker(ctx, "MEM")
	require.NoError(t, err)
	assert.False(t, active)

	// Listing through the cache invalidates the negative entry.
	require.NoError(t, cache.Insert(ctx, &engine.Instrument{Ticker: "MEM", Name: "Mem Corp", Active: true}))
	active, err = cache.ActiveByTicker(ctx, "MEM")
	require.NoError(t, err)
	assert.True(t, active)

	// Delisting through the cache shows up immediately too.
	require.NoError(t, cache.Delist(ctx, "MEM"))
	active, err = cache.ActiveByTicker(ctx, "MEM")
	require.NoError(t, err)
	assert.False(t, active)

	// The synthetic cash ticker never touches the catalog.
	active, err = cache.ActiveByTicker(ctx, engine.CashTicker)
	require.NoError(t, err)
	assert.True(t, active)
}
