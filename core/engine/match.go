package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// lockCandidates acquires, under row locks, the resting orders a taker
// may cross against: active limit orders on the opposite side of the
// ticker with a compatible price, sorted best-price-first with
// created_at then order-id tiebreaks.
func lockCandidates(ctx context.Context, tx Tx, taker *Order) ([]Order, error) {
	all, err := tx.Orders().ListActiveForUpdate(ctx, taker.Ticker, taker.Direction.Opposite())
	if err != nil {
		return nil, err
	}

	cands := all[:0]
	for _, c := range all {
		if c.Type != Limit || !c.Active() || c.ID == taker.ID {
			continue
		}
		if taker.Type == Limit {
			if taker.Direction == Buy && c.Price > taker.Price {
				continue
			}
			if taker.Direction == Sell && c.Price < taker.Price {
				continue
			}
		}
		cands = append(cands, c)
	}

	sortCandidates(cands, taker.Direction)
	return cands, nil
}

// sortCandidates orders resting candidates by price-time priority:
// best price for the taker first, then oldest, then lexicographic id
// for determinism.
func sortCandidates(cands []Order, takerDir Direction) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Price != b.Price {
			if takerDir == Buy {
				return a.Price < b.Price
			}
			return a.Price > b.Price
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// preWalk proves a market order fully fillable against the locked depth
// and returns the reservation it needs: the worst-case cash cost for a
// BUY, the order quantity itself for a SELL. ErrNoLiquidity if the book
// runs out first.
func preWalk(taker *Order, cands []Order) (int64, error) {
	remaining := taker.Remaining()
	var cost int64
	for _, c := range cands {
		if remaining <= 0 {
			break
		}
		qty := min64(remaining, c.Remaining())
		levelCost := qty * c.Price
		if cost > math.MaxInt64-levelCost {
			return 0, ErrBadRequest
		}
		cost += levelCost
		remaining -= qty
	}
	if remaining > 0 {
		return 0, ErrNoLiquidity
	}
	if taker.Direction == Sell {
		return taker.Quantity, nil
	}
	return cost, nil
}

// match runs the taker against the locked candidates, settling each
// cross atomically and appending it to the tape. Each cross persists
// the updated fill and status of both sides, so an unfilled taker
// simply keeps the NEW status it was inserted with and rests.
func (e *Engine) match(ctx context.Context, tx Tx, taker *Order, cands []Order) ([]Trade, error) {
	var trades []Trade
	for i := range cands {
		if taker.Remaining() <= 0 {
			break
		}
		trade, err := e.cross(ctx, tx, taker, &cands[i])
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	return trades, nil
}

// cross executes one (taker, maker) pair at the maker's price. Both
// balance legs settle inside the caller's transaction, with the four
// touched rows locked in the global (user_id, ticker) order first.
func (e *Engine) cross(ctx context.Context, tx Tx, taker, maker *Order) (*Trade, error) {
	execQty := min64(taker.Remaining(), maker.Remaining())
	execPrice := maker.Price
	cash := execQty * execPrice

	buyer, seller := taker, maker
	if taker.Direction == Sell {
		buyer, seller = maker, taker
	}

	ledger := tx.Ledger()
	if err := ledger.LockRows(ctx,
		BalanceKey{UserID: seller.UserID, Ticker: taker.Ticker},
		BalanceKey{UserID: buyer.UserID, Ticker: taker.Ticker},
		BalanceKey{UserID: buyer.UserID, Ticker: CashTicker},
		BalanceKey{UserID: seller.UserID, Ticker: CashTicker},
	); err != nil {
		return nil, err
	}

	// Asset leg: seller's reserved instruments move to the buyer.
	if err := ledger.SettleOut(ctx, seller.UserID, taker.Ticker, execQty); err != nil {
		return nil, err
	}
	if err := ledger.CreditIn(ctx, buyer.UserID, taker.Ticker, execQty); err != nil {
		return nil, err
	}

	// Cash leg: buyer's reserved cash moves to the seller.
	if err := ledger.SettleOut(ctx, buyer.UserID, CashTicker, cash); err != nil {
		return nil, err
	}
	if err := ledger.CreditIn(ctx, seller.UserID, CashTicker, cash); err != nil {
		return nil, err
	}

	// A limit buy taker reserved at its own price but fills at the
	// maker's. Hand the per-fill difference back so the remainder's
	// reservation stays exactly (quantity-filled)*price.
	if taker == buyer && taker.Type == Limit && taker.Price > execPrice {
		if err := ledger.Release(ctx, buyer.UserID, CashTicker, execQty*(taker.Price-execPrice)); err != nil {
			return nil, err
		}
	}

	maker.Filled += execQty
	makerStatus := StatusPartiallyExecuted
	if maker.Remaining() == 0 {
		makerStatus = StatusExecuted
	}
	if err := tx.Orders().UpdateFill(ctx, maker.ID, maker.Filled, makerStatus); err != nil {
		return nil, err
	}
	maker.Status = makerStatus

	taker.Filled += execQty
	takerStatus := StatusPartiallyExecuted
	if taker.Remaining() == 0 {
		takerStatus = StatusExecuted
	}
	if err := tx.Orders().UpdateFill(ctx, taker.ID, taker.Filled, takerStatus); err != nil {
		return nil, err
	}
	taker.Status = takerStatus

	trade := &Trade{
		ID:            uuid.New(),
		Ticker:        taker.Ticker,
		BuyerOrderID:  buyer.ID,
		SellerOrderID: seller.ID,
		Price:         execPrice,
		Quantity:      execQty,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.Trades().Append(ctx, trade); err != nil {
		return nil, err
	}
	return trade, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
