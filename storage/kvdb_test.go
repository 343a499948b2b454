package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

func newTestKvDB(t *testing.T) *KvDB {
	kv, err := NewKvDB("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func mirroredTrade(ticker string, seq, price int64) *engine.Trade {
	return &engine.Trade{
		ID:       uuid.New(),
		Seq:      seq,
		Ticker:   ticker,
		Price:    price,
		Quantity: 1,
	}
}

// Test_KvDB_RecentTrades_NewestFirst: the mirror iterates newest-first
// and respects the limit and the ticker prefix.
func Test_KvDB_RecentTrades_NewestFirst(t *testing.T) {
	kv := newTestKvDB(t)

	require.NoError(t, kv.PutTrade(mirroredTrade("MEM", 1, 100)))
	require.NoError(t, kv.PutTrade(mirroredTrade("MEM", 2, 110)))
	require.NoError(t, kv.PutTrade(mirroredTrade("MEM", 3, 120)))
	require.NoError(t, kv.PutTrade(mirroredTrade("OTHER", 4, 999)))

	trades, err := kv.RecentTrades("MEM", 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(3), trades[0].Seq)
	assert.Equal(t, int64(2), trades[1].Seq)

	all, err := kv.RecentTrades("MEM", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// Test_KvDB_Validation rejects malformed trades and tickers.
func Test_KvDB_Validation(t *testing.T) {
	kv := newTestKvDB(t)

	require.ErrorIs(t, kv.PutTrade(nil), ErrInvalidTrade)
	require.ErrorIs(t, kv.PutTrade(mirroredTrade("mem", 1, 100)), ErrInvalidTicker)
	require.ErrorIs(t, kv.PutTrade(mirroredTrade("MEM", 0, 100)), ErrInvalidTrade)

	bad := mirroredTrade("MEM", 1, 0)
	require.ErrorIs(t, kv.PutTrade(bad), ErrInvalidTrade)

	_, err := kv.RecentTrades("not-a-ticker", 5)
	require.ErrorIs(t, err, ErrInvalidTicker)
}
