package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EggysOnCode/stackex/core/engine"
)

// Test_RunInTx_RollsBackOnError: a failing transaction leaves no trace.
func Test_RunInTx_RollsBackOnError(t *testing.T) {
	st := New()
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, st.Ledger().Credit(ctx, user, "MEM", 10))

	boom := errors.New("boom")
	err := st.RunInTx(ctx, func(ctx context.Context, tx engine.Tx) error {
		if err := tx.Ledger().Credit(ctx, user, "MEM", 5); err != nil {
			return err
		}
		if err := tx.Orders().Insert(ctx, &engine.Order{
			ID:        uuid.New(),
			UserID:    user,
			Ticker:    "MEM",
			Direction: engine.Sell,
			Type:      engine.Limit,
			Price:     100,
			Quantity:  1,
			Status:    engine.StatusNew,
		}); err != nil {
			return err
		}
		if err := tx.Trades().Append(ctx, &engine.Trade{
			ID:       uuid.New(),
			Ticker:   "MEM",
			Price:    100,
			Quantity: 1,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := st.Ledger().Read(ctx, user, "MEM")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Total)

	orders, err := st.Orders().ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, orders)

	trades, err := st.Trades().ListByTicker(ctx, "MEM", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

// Test_Ledger_Invariants: reserve/release/settle keep 0 <= reserved <= total.
func Test_Ledger_Invariants(t *testing.T) {
	st := New()
	ctx := context.Background()
	ledger := st.Ledger()
	user := uuid.New()

	// Reserving against a missing row fails without creating it.
	ok, err := ledger.Reserve(ctx, user, "MEM", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ledger.Credit(ctx, user, "MEM", 10))

	ok, err = ledger.Reserve(ctx, user, "MEM", 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// Over-reserving the remainder fails and changes nothing.
	ok, err = ledger.Reserve(ctx, user, "MEM", 4)
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := ledger.Read(ctx, user, "MEM")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Total)
	assert.Equal(t, int64(7), b.Reserved)
	assert.Equal(t, int64(3), b.Available())

	// Debit cannot touch the reserved part.
	require.ErrorIs(t, ledger.Debit(ctx, user, "MEM", 4), engine.ErrInsufficientFunds)
	require.NoError(t, ledger.Debit(ctx, user, "MEM", 3))

	// Settle part, release the rest.
	require.NoError(t, ledger.SettleOut(ctx, user, "MEM", 5))
	require.ErrorIs(t, ledger.Release(ctx, user, "MEM", 3), engine.ErrInsufficientFunds)
	require.NoError(t, ledger.Release(ctx, user, "MEM", 2))

	b, err = ledger.Read(ctx, user, "MEM")
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Total)
	assert.Equal(t, int64(0), b.Reserved)

	// Amounts must be positive everywhere.
	require.ErrorIs(t, ledger.Credit(ctx, user, "MEM", 0), engine.ErrBadRequest)
	_, err = ledger.Reserve(ctx, user, "MEM", -1)
	require.ErrorIs(t, err, engine.ErrBadRequest)
}

// Test_TradeSeq_Monotonic: the store assigns a strictly increasing seq.
func Test_TradeSeq_Monotonic(t *testing.T) {
	st := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr := &engine.Trade{ID: uuid.New(), Ticker: "MEM", Price: 100, Quantity: 1}
		require.NoError(t, st.Trades().Append(ctx, tr))
		assert.Equal(t, int64(i+1), tr.Seq)
	}

	trades, err := st.Trades().ListByTicker(ctx, "MEM", 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(3), trades[0].Seq)
	assert.Equal(t, int64(2), trades[1].Seq)
}
