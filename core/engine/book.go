package engine

import (
	"context"

	"github.com/tidwall/btree"
)

const (
	// MinDepth and MaxDepth bound the per-side level count of an L2
	// snapshot.
	MinDepth = 1
	MaxDepth = 25
)

// Book produces the depth-aggregated L2 snapshot for a ticker: active
// resting limit orders grouped by price, per-level qty summed over the
// unfilled remainders, truncated to depth levels per side.
func (e *Engine) Book(ctx context.Context, ticker string, depth int) (*L2Book, error) {
	if !ValidTicker(ticker) || ticker == CashTicker {
		return nil, ErrBadRequest
	}
	if depth < MinDepth || depth > MaxDepth {
		return nil, ErrBadRequest
	}

	active, err := e.store.Instruments().ActiveByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrUnknownInstrument
	}

	orders, err := e.store.Orders().ListActiveByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return aggregate(orders, depth), nil
}

// aggregate folds resting limit orders into per-price levels. Bids are
// keyed descending so both trees iterate best-price-first.
func aggregate(orders []Order, depth int) *L2Book {
	bids := btree.NewBTreeG(func(a, b Level) bool { return a.Price > b.Price })
	asks := btree.NewBTreeG(func(a, b Level) bool { return a.Price < b.Price })

	for _, o := range orders {
		if o.Type != Limit || !o.Active() || o.Remaining() <= 0 {
			continue
		}
		tree := asks
		if o.Direction == Buy {
			tree = bids
		}
		level := Level{Price: o.Price}
		if existing, ok := tree.Get(level); ok {
			level.Qty = existing.Qty
		}
		level.Qty += o.Remaining()
		tree.Set(level)
	}

	book := &L2Book{
		Bids: make([]Level, 0, depth),
		Asks: make([]Level, 0, depth),
	}
	bids.Scan(func(l Level) bool {
		book.Bids = append(book.Bids, l)
		return len(book.Bids) < depth
	})
	asks.Scan(func(l Level) bool {
		book.Asks = append(book.Asks, l)
		return len(book.Asks) < depth
	})
	return book
}
