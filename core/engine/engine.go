package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine is the matching core. It owns no state of its own: every
// admission composes ledger, order-store and trade-store operations
// inside a single substrate transaction.
type Engine struct {
	store   Store
	metrics *Metrics
	logger  *zap.Logger
}

func New(store Store, metrics *Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// SubmitLimit admits a limit order: validate, reserve, persist, match.
// The order id is returned whether or not the order filled immediately.
func (e *Engine) SubmitLimit(ctx context.Context, userID uuid.UUID, ticker string, dir Direction, qty, price int64) (*Order, []Trade, error) {
	if err := validateLimit(ticker, dir, qty, price); err != nil {
		e.metrics.rejected(err)
		return nil, nil, err
	}

	order := &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Direction: dir,
		Type:      Limit,
		Price:     price,
		Quantity:  qty,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}

	var trades []Trade
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := requireActiveInstrument(ctx, tx, ticker); err != nil {
			return err
		}

		resTicker, resAmount := reservationFor(order)
		ok, err := tx.Ledger().Reserve(ctx, userID, resTicker, resAmount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}

		if err := tx.Orders().Insert(ctx, order); err != nil {
			return err
		}

		cands, err := lockCandidates(ctx, tx, order)
		if err != nil {
			return err
		}
		trades, err = e.match(ctx, tx, order, cands)
		return err
	})
	if err != nil {
		e.metrics.rejected(err)
		return nil, nil, err
	}

	e.metrics.submitted(Limit, dir)
	e.metrics.traded(len(trades))
	e.logger.Info("limit order admitted",
		zap.String("order", order.ID.String()),
		zap.String("ticker", ticker),
		zap.String("direction", string(dir)),
		zap.Int64("qty", qty),
		zap.Int64("price", price),
		zap.Int("trades", len(trades)),
	)
	return order, trades, nil
}

// SubmitMarket admits a market order. Market orders are all-or-nothing:
// the pre-walk over the locked opposing depth either proves the order
// fully fillable or rejects it with ErrNoLiquidity, and the order never
// rests on the book.
func (e *Engine) SubmitMarket(ctx context.Context, userID uuid.UUID, ticker string, dir Direction, qty int64) (*Order, []Trade, error) {
	if err := validateMarket(ticker, dir, qty); err != nil {
		e.metrics.rejected(err)
		return nil, nil, err
	}

	order := &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Ticker:    ticker,
		Direction: dir,
		Type:      Market,
		Quantity:  qty,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}

	var trades []Trade
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := requireActiveInstrument(ctx, tx, ticker); err != nil {
			return err
		}

		cands, err := lockCandidates(ctx, tx, order)
		if err != nil {
			return err
		}

		resAmount, err := preWalk(order, cands)
		if err != nil {
			return err
		}
		resTicker := ticker
		if dir == Buy {
			resTicker = CashTicker
		}

		ok, err := tx.Ledger().Reserve(ctx, userID, resTicker, resAmount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}

		if err := tx.Orders().Insert(ctx, order); err != nil {
			return err
		}

		trades, err = e.match(ctx, tx, order, cands)
		if err != nil {
			return err
		}
		// The pre-walk ran against the same locked snapshot, so a partial
		// fill here means the snapshot was invalidated underneath us.
		if order.Remaining() > 0 {
			return ErrNoLiquidity
		}
		return nil
	})
	if err != nil {
		e.metrics.rejected(err)
		return nil, nil, err
	}

	e.metrics.submitted(Market, dir)
	e.metrics.traded(len(trades))
	e.logger.Info("market order executed",
		zap.String("order", order.ID.String()),
		zap.String("ticker", ticker),
		zap.String("direction", string(dir)),
		zap.Int64("qty", qty),
		zap.Int("trades", len(trades)),
	)
	return order, trades, nil
}

// Cancel marks a non-terminal order CANCELLED and releases the residual
// reservation. Safe to re-issue: a second attempt fails with ErrConflict
// and changes nothing.
func (e *Engine) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	var cancelled *Order
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrForbidden
		}
		if !o.Active() {
			return ErrConflict
		}

		if remaining := o.Remaining(); remaining > 0 {
			ticker, amount := o.Ticker, remaining
			if o.Direction == Buy {
				ticker, amount = CashTicker, remaining*o.Price
			}
			if amount > 0 {
				if err := tx.Ledger().Release(ctx, o.UserID, ticker, amount); err != nil {
					return err
				}
			}
		}

		if err := tx.Orders().UpdateFill(ctx, o.ID, o.Filled, StatusCancelled); err != nil {
			return err
		}
		o.Status = StatusCancelled
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.cancelled()
	e.logger.Info("order cancelled",
		zap.String("order", orderID.String()),
		zap.String("user", userID.String()),
	)
	return cancelled, nil
}

// GetOrder returns one order by id.
func (e *Engine) GetOrder(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return e.store.Orders().Get(ctx, orderID)
}

// ListOrders returns every order of one user.
func (e *Engine) ListOrders(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	return e.store.Orders().ListByUser(ctx, userID)
}

// Tape returns up to limit trades for a ticker, newest first.
func (e *Engine) Tape(ctx context.Context, ticker string, limit int) ([]Trade, error) {
	if !ValidTicker(ticker) || ticker == CashTicker {
		return nil, ErrBadRequest
	}
	if limit < 1 || limit > 100 {
		return nil, ErrBadRequest
	}
	return e.store.Trades().ListByTicker(ctx, ticker, limit)
}

// Balances returns every ledger row of one user.
func (e *Engine) Balances(ctx context.Context, userID uuid.UUID) ([]Balance, error) {
	return e.store.Ledger().ListByUser(ctx, userID)
}

// Deposit credits a user's balance. Administrative.
func (e *Engine) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if err := validateTransfer(ticker, amount); err != nil {
		return err
	}
	return e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Ledger().Credit(ctx, userID, ticker, amount)
	})
}

// Withdraw debits a user's balance, never touching reserved funds.
// Administrative.
func (e *Engine) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	if err := validateTransfer(ticker, amount); err != nil {
		return err
	}
	return e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Ledger().Debit(ctx, userID, ticker, amount)
	})
}

func validateLimit(ticker string, dir Direction, qty, price int64) error {
	if err := validateCommon(ticker, dir, qty); err != nil {
		return err
	}
	if price <= 0 {
		return ErrBadRequest
	}
	// qty*price is settled through the 64-bit ledger; reject anything
	// that cannot be represented.
	if qty > math.MaxInt64/price {
		return ErrBadRequest
	}
	return nil
}

func validateMarket(ticker string, dir Direction, qty int64) error {
	return validateCommon(ticker, dir, qty)
}

func validateCommon(ticker string, dir Direction, qty int64) error {
	if !ValidTicker(ticker) || ticker == CashTicker {
		return ErrBadRequest
	}
	if dir != Buy && dir != Sell {
		return ErrBadRequest
	}
	if qty <= 0 {
		return ErrBadRequest
	}
	return nil
}

func validateTransfer(ticker string, amount int64) error {
	if !ValidTicker(ticker) && ticker != CashTicker {
		return ErrBadRequest
	}
	if amount <= 0 {
		return ErrBadRequest
	}
	return nil
}

// reservationFor computes the reservation a resting-capable order needs
// at submit time.
func reservationFor(o *Order) (string, int64) {
	if o.Direction == Buy {
		return CashTicker, o.Quantity * o.Price
	}
	return o.Ticker, o.Quantity
}

func requireActiveInstrument(ctx context.Context, tx Tx, ticker string) error {
	active, err := tx.Instruments().ActiveByTicker(ctx, ticker)
	if err != nil {
		return err
	}
	if !active {
		return ErrUnknownInstrument
	}
	return nil
}
