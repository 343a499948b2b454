package engine

import "errors"

// Engine error kinds. Handlers map these to transport codes with
// errors.Is; anything else is an internal substrate failure.
var (
	// ErrBadRequest rejects malformed amounts, prices, quantities and
	// tickers, including qty*price overflowing 64 bits.
	ErrBadRequest = errors.New("bad request")

	// ErrUnknownInstrument rejects tickers with no active instrument.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrInsufficientFunds signals a reservation or withdrawal shortfall.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoLiquidity rejects a market order the book cannot fully fill.
	ErrNoLiquidity = errors.New("not enough liquidity")

	// ErrNotFound signals an absent order id.
	ErrNotFound = errors.New("not found")

	// ErrForbidden rejects cancellation by a non-owner.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict signals a terminal-state mutation or a substrate lock
	// timeout / serialization failure. Callers may retry the latter.
	ErrConflict = errors.New("conflict")
)
