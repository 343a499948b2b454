package engine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EggysOnCode/stackex/core/engine"
)

// Test_Book_Aggregation groups resting orders into price levels with
// bids descending and asks ascending.
func Test_Book_Aggregation(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	seedInstrument(t, st, "MEM")

	alice, bob := uuid.New(), uuid.New()
	deposit(t, eng, alice, engine.CashTicker, 100000)
	deposit(t, eng, bob, "MEM", 100)

	// Two asks on the same level, one deeper; two bid levels.
	_, _, err := eng.SubmitLimit(ctx, bob, "MEM", engine.Sell, 3, 110)
	require.NoError(t, err)
	_, _, err = eng.SubmitLimit(ctx, bob, "MEM", engine.Sell, 2, 110)
	require.NoError(t, err)
	_, _, err = eng.SubmitLimit(ctx, bob, "MEM", engine.Sell, 4, 120)
	require.NoError(t, err)
	_, _, err = eng.SubmitLimit(ctx, alice, "MEM", engine.Buy, 5, 100)
	require.NoError(t, err)
	_, _, err = eng.SubmitLimit(ctx, alice, "MEM", engine.Buy, 1, 90)
	require.NoError(t, err)

	book, err := eng.Book(ctx, "MEM", 25)
	require.NoError(t, err)

	require.Len(t, book.Asks, 2)
	assert.Equal(t, engine.Level{Price: 110, Qty: 5}, book.Asks[0])
	assert.Equal(t, engine.Level{Price: 120, Qty: 4}, book.Asks[1])

	require.Len(t, book.Bids, 2)
	assert.Equal(t, engine.Level{Price: 100, Qty: 5}, book.Bids[0])
	assert.Equal(t, engine.Level{Price: 90, Qty: 1}, book.Bids[1])
}

// Test_Book_ReflectsFillsAndCancels: level quantities are unfilled
// remainders; cancelled orders drop out.
func Test_Book_ReflectsFillsAndCancels(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	seedInstrument(t, st, "MEM")

	alice, bob := uuid.New(), uuid.New()
	deposit(t, eng, alice, engine.CashTicker, 100000)
	deposit(t, eng, bob, "MEM", 100)

	s1, _, err := eng.SubmitLimit(ctx, bob, "MEM", engine.Sell, 5, 110)
	require.NoError(t, err)
	s2, _, err := eng.SubmitLimit(ctx, bob, "MEM", engine.Sell, 5, 120)
	require.NoError(t, err)

	// Partially fill the 110 level.
	_, _, err = eng.SubmitMarket(ctx, alice, "MEM", engine.Buy, 2)
	require.NoError(t, err)

	book, err := eng.Book(ctx, "MEM", 25)
	require.NoError(t, err)
	require.Len(t, book.Asks, 2)
	assert.Equal(t, engine.Level{Price: 110, Qty: 3}, book.Asks[0])

	_, err = eng.Cancel(ctx, bob, s1.ID)
	require.NoError(t, err)
	_, err = eng.Cancel(ctx, bob, s2.ID)
	require.NoError(t, err)

	book, err = eng.Book(ctx, "MEM", 25)
	require.NoError(t, err)
	assert.Empty(t, book.Asks)
	assert.Empty(t, book.Bids)
}

// Test_Book_DepthTruncation truncates the ask side to the requested
// depth, keeping the best levels.
func Test_Book_DepthTruncation(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	seedInstrument(t, st, "MEM")

	bob := uuid.New()
	deposit(t, eng, bob, "MEM", 100)

	for price := int64(100); price < 110; price++ {
		_, _, err := eng.SubmitLimit(ctx, bob, "MEM", engine.Sell, 1, price)
		require.NoError(t, err)
	}

	book, err := eng.Book(ctx, "MEM", 3)
	require.NoError(t, err)
	require.Len(t, book.Asks, 3)
	assert.Equal(t, int64(100), book.Asks[0].Price)
	assert.Equal(t, int64(102), book.Asks[2].Price)
}

// Test_Book_Validation rejects bad depths and unknown tickers.
func Test_Book_Validation(t *testing.T) {
	eng, st := newEngine(t)
	ctx := context.Background()
	seedInstrument(t, st, "MEM")

	_, err := eng.Book(ctx, "MEM", 0)
	require.ErrorIs(t, err, engine.ErrBadRequest)
	_, err = eng.Book(ctx, "MEM", 26)
	require.ErrorIs(t, err, engine.ErrBadRequest)
	_, err = eng.Book(ctx, engine.CashTicker, 10)
	require.ErrorIs(t, err, engine.ErrBadRequest)
	_, err = eng.Book(ctx, "GONE", 10)
	require.ErrorIs(t, err, engine.ErrUnknownInstrument)

	book, err := eng.Book(ctx, "MEM", 10)
	require.NoError(t, err)
	assert.Empty(t, book.Bids)
	assert.Empty(t, book.Asks)
}
